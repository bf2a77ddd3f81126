// Package email defines the outbound email contract used by the digest
// job and provides two senders: a Postmark-backed client for deployed
// environments and a file sender that writes emails to disk for local
// development, where sending real mail is never wanted.
package email

// Package notices stores in-app notifications and exposes the digest
// queries the daily summary email is built from. Notices are written by
// the lifecycle jobs (user activation, unban) and read back grouped by
// category for the mailer.
package notices

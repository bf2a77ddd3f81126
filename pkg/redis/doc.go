// Package redis establishes the shared Redis connection the job broker
// runs on. Connect retries until the server answers a ping or the
// configured attempts are exhausted, which keeps worker startup resilient
// to Redis coming up slightly later during a deploy.
package redis

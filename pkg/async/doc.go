// Package async provides small structured-concurrency helpers for job
// handlers that fan work out over many items.
//
// Each runs one function per item with bounded concurrency and waits for
// every item before returning, collecting per-item errors. Fan-out job
// handlers use it so a job never reports completion while item work is
// still in flight, and so one failing item cannot abort its siblings.
package async

// Package queue is the job execution engine behind the publishing
// platform's background work: scheduled publication scans, materialized
// view refreshes, digest emails and user lifecycle maintenance.
//
// The package is organised around four pieces:
//
//   - Broker: persistence contract (enqueue, atomic claim with a lease,
//     progress, completion/failure, delayed-job listing and removal,
//     recurring registration)
//   - Queue: a named channel binding job types to handlers and recurring
//     definitions, with an idempotent Start boot routine
//   - Worker: claims ready jobs and dispatches them to handlers with
//     bounded concurrency
//   - Schedule: interval and fixed-time (timezone-pinned) recurrence
//
// Two brokers ship with the package: MemoryBroker for tests and local
// development, and RedisBroker for deployed workers. Both guarantee that
// a job is claimed by at most one worker at a time, order ready jobs by
// priority then insertion, never surface a delayed job before its ready
// time, and keep at most one upcoming instance per recurring definition
// so process restarts cannot stack duplicate schedules.
//
// Delivery is at-least-once: a worker crash mid-execution leaves the job
// claimable again after its lease expires, so handlers must tolerate
// re-execution by checking persisted state before acting.
//
// A minimal producer/consumer pair:
//
//	broker := queue.NewMemoryBroker()
//	q, _ := queue.NewQueue("user", broker)
//	q.MustRegister(queue.NewHandler("archive_user",
//	    func(ctx context.Context, job *queue.JobContext, p ArchiveUserPayload) (any, error) {
//	        // ...
//	        return map[string]string{"user_id": p.UserID}, nil
//	    }))
//
//	w := queue.NewWorker()
//	_ = w.Attach(q)
//	_ = w.Start(ctx)
package queue

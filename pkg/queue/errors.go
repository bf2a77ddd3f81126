package queue

import "errors"

var (
	// ErrBrokerNil is returned when a constructor receives a nil broker.
	ErrBrokerNil = errors.New("queue: broker cannot be nil")

	// ErrQueueNameEmpty is returned when a queue is created without a name.
	ErrQueueNameEmpty = errors.New("queue: queue name cannot be empty")

	// ErrPayloadNil is returned when enqueueing a nil payload.
	ErrPayloadNil = errors.New("queue: payload cannot be nil")

	// ErrInvalidPriority is returned for priorities outside the ordinal scale.
	ErrInvalidPriority = errors.New("queue: invalid priority")

	// ErrJobTypeEmpty is returned when a job type is missing.
	ErrJobTypeEmpty = errors.New("queue: job type cannot be empty")

	// ErrNoJobReady signals that no claimable job exists right now.
	ErrNoJobReady = errors.New("queue: no job ready to claim")

	// ErrJobNotFound is returned for operations on unknown job ids.
	ErrJobNotFound = errors.New("queue: job not found")

	// ErrJobNotActive is returned when progress or a terminal signal is
	// reported for a job that is not being executed.
	ErrJobNotActive = errors.New("queue: job is not active")

	// ErrJobNotRemovable is returned when removing a job that already
	// started executing; only waiting and delayed jobs can be removed.
	ErrJobNotRemovable = errors.New("queue: only waiting or delayed jobs can be removed")

	// ErrHandlerNil is returned when registering a nil handler.
	ErrHandlerNil = errors.New("queue: handler cannot be nil")

	// ErrHandlerAlreadyRegistered is returned when a second handler is
	// bound to a job type; a type has exactly one handler per queue.
	ErrHandlerAlreadyRegistered = errors.New("queue: handler already registered for job type")

	// ErrHandlerNotFound is returned when a claimed job has no handler.
	ErrHandlerNotFound = errors.New("queue: no handler registered for job type")

	// ErrNoHandlers is returned when a worker starts with nothing attached.
	ErrNoHandlers = errors.New("queue: no queues attached to worker")

	// ErrScheduleNil is returned when a recurring definition has no schedule.
	ErrScheduleNil = errors.New("queue: recurring definition requires a schedule")
)

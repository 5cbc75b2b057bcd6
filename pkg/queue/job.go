package queue

import "context"

// Job defines a queue job handler.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type routed to this job.
	Type() string

	// Handle processes one message. payload is the raw JSON the producer enqueued;
	// use ParsePayload to decode it.
	Handle(ctx context.Context, payload interface{}) error
}

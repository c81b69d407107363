package queue

import "context"

// DispatchQueue is the work queue carrying run-now dispatch requests from the
// API to the worker.
const DispatchQueue = "campaign.dispatch"

// DispatchDLQ receives requests rejected as malformed.
const DispatchDLQ = "dlq.campaign.dispatch"

// Publisher publishes dispatch requests to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DispatchRequest) error
	Close() error
}

// MessageHandler handles a consumed dispatch request.
type MessageHandler func(ctx context.Context, msg DispatchRequest) error

// Consumer consumes dispatch requests from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

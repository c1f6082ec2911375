package queue

import (
	"context"
	"time"
)

const (
	// DueQueueName carries "a note is due now" hints from the api to the workers.
	DueQueueName = "notes.due"

	// dueMessageTTL drops hints nobody consumed in time; polling covers them anyway.
	dueMessageTTL = 5 * time.Minute
)

// Publisher publishes due-note hints.
type Publisher interface {
	Publish(ctx context.Context, msg DueMessage) error
	Close() error
}

// MessageHandler handles a consumed due-note hint.
type MessageHandler func(ctx context.Context, msg DueMessage) error

// Consumer consumes due-note hints.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

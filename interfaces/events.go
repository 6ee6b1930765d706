package interfaces

import "context"

// EventPublisher publishes run lifecycle events to the message broker.
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, entityID string, payload interface{}) error
	Close() error
}

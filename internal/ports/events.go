package ports

import (
	"context"

	"github.com/weftworks/weft/internal/domain"
)

// EventManager is the pub/sub channel for execution lifecycle events.
// Delivery is ordered per subscriber and isolated: a slow subscriber
// drops (never blocks the publisher), a panicking handler is recovered.
type EventManager interface {
	Publish(event domain.Event)

	// Subscribe returns an ordered channel of events filtered by name
	// (no names = all events) and a cancel func that closes it.
	Subscribe(names ...string) (<-chan domain.Event, func())

	OnExecutionStarted(handler func(domain.ExecutionStartedEvent)) error
	OnNodeStarted(handler func(domain.NodeStartedEvent)) error
	OnNodeCompleted(handler func(domain.NodeCompletedEvent)) error
	OnNodeError(handler func(domain.NodeErrorEvent)) error
	OnNodeErrorHelp(handler func(domain.NodeErrorHelpEvent)) error
	OnExecutionCompleted(handler func(domain.ExecutionCompletedEvent)) error
	OnExecutionFailed(handler func(domain.ExecutionFailedEvent)) error
	OnExecutionCancelled(handler func(domain.ExecutionCancelledEvent)) error

	Dropped() int64
	Close() error
}

// EventJournal persists published events so a run's history outlives the
// channel.
type EventJournal interface {
	Append(ctx context.Context, event domain.Event) error
	History(ctx context.Context, runID string) ([]domain.EventRecord, error)
	Close() error
}

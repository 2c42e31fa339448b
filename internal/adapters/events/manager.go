package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// Manager fans lifecycle events out to subscribers. Each subscriber owns
// a buffered queue drained in publish order, so one slow or panicking
// subscriber never blocks the publisher or its peers; when a queue is
// full the event is dropped for that subscriber and counted.
type Manager struct {
	logger     *slog.Logger
	bufferSize int

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool

	dropped int64
}

type subscriber struct {
	id      string
	names   map[string]struct{}
	queue   chan domain.Event
	handler func(domain.Event)
}

func (s *subscriber) wants(name string) bool {
	if len(s.names) == 0 {
		return true
	}
	_, ok := s.names[name]
	return ok
}

func NewManager(config domain.EventsConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}

	return &Manager{
		logger:      logger.With("component", "event-manager"),
		bufferSize:  bufferSize,
		subscribers: make(map[string]*subscriber),
	}
}

func (m *Manager) Publish(event domain.Event) {
	if event == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}

	name := event.EventName()
	for _, sub := range m.subscribers {
		if !sub.wants(name) {
			continue
		}
		select {
		case sub.queue <- event:
		default:
			atomic.AddInt64(&m.dropped, 1)
			m.logger.Warn("subscriber queue full, dropping event",
				"subscriber", sub.id,
				"event", name)
		}
	}
}

// Subscribe returns an ordered event channel filtered by name (no names
// subscribes to everything) and a cancel func. The channel is closed on
// cancel and on manager Close.
func (m *Manager) Subscribe(names ...string) (<-chan domain.Event, func()) {
	sub := m.addSubscriber(names, nil)
	return sub.queue, func() { m.removeSubscriber(sub.id) }
}

func (m *Manager) addSubscriber(names []string, handler func(domain.Event)) *subscriber {
	sub := &subscriber{
		id:      uuid.New().String(),
		queue:   make(chan domain.Event, m.bufferSize),
		handler: handler,
	}
	if len(names) > 0 {
		sub.names = make(map[string]struct{}, len(names))
		for _, n := range names {
			sub.names[n] = struct{}{}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		close(sub.queue)
		return sub
	}

	m.subscribers[sub.id] = sub
	if handler != nil {
		go m.drain(sub)
	}

	m.logger.Debug("subscriber added", "subscriber", sub.id, "events", names)
	return sub
}

func (m *Manager) removeSubscriber(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, exists := m.subscribers[id]
	if !exists {
		return
	}
	delete(m.subscribers, id)
	close(sub.queue)
}

// drain delivers a handler subscriber's queue in order.
func (m *Manager) drain(sub *subscriber) {
	for event := range sub.queue {
		m.safeCall(sub.handler, event)
	}
}

func (m *Manager) safeCall(handler func(domain.Event), event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panicked", "panic", r, "event", event.EventName())
		}
	}()
	handler(event)
}

func (m *Manager) on(name string, handler func(domain.Event)) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return domain.ErrClosed
	}

	m.addSubscriber([]string{name}, handler)
	return nil
}

func (m *Manager) OnExecutionStarted(handler func(domain.ExecutionStartedEvent)) error {
	return m.on(domain.EventExecutionStarted, func(e domain.Event) {
		if ev, ok := e.(domain.ExecutionStartedEvent); ok {
			handler(ev)
		}
	})
}

func (m *Manager) OnNodeStarted(handler func(domain.NodeStartedEvent)) error {
	return m.on(domain.EventNodeStarted, func(e domain.Event) {
		if ev, ok := e.(domain.NodeStartedEvent); ok {
			handler(ev)
		}
	})
}

func (m *Manager) OnNodeCompleted(handler func(domain.NodeCompletedEvent)) error {
	return m.on(domain.EventNodeCompleted, func(e domain.Event) {
		if ev, ok := e.(domain.NodeCompletedEvent); ok {
			handler(ev)
		}
	})
}

func (m *Manager) OnNodeError(handler func(domain.NodeErrorEvent)) error {
	return m.on(domain.EventNodeError, func(e domain.Event) {
		if ev, ok := e.(domain.NodeErrorEvent); ok {
			handler(ev)
		}
	})
}

func (m *Manager) OnNodeErrorHelp(handler func(domain.NodeErrorHelpEvent)) error {
	return m.on(domain.EventNodeErrorHelp, func(e domain.Event) {
		if ev, ok := e.(domain.NodeErrorHelpEvent); ok {
			handler(ev)
		}
	})
}

func (m *Manager) OnExecutionCompleted(handler func(domain.ExecutionCompletedEvent)) error {
	return m.on(domain.EventExecutionCompleted, func(e domain.Event) {
		if ev, ok := e.(domain.ExecutionCompletedEvent); ok {
			handler(ev)
		}
	})
}

func (m *Manager) OnExecutionFailed(handler func(domain.ExecutionFailedEvent)) error {
	return m.on(domain.EventExecutionFailed, func(e domain.Event) {
		if ev, ok := e.(domain.ExecutionFailedEvent); ok {
			handler(ev)
		}
	})
}

func (m *Manager) OnExecutionCancelled(handler func(domain.ExecutionCancelledEvent)) error {
	return m.on(domain.EventExecutionCancelled, func(e domain.Event) {
		if ev, ok := e.(domain.ExecutionCancelledEvent); ok {
			handler(ev)
		}
	})
}

func (m *Manager) Dropped() int64 {
	return atomic.LoadInt64(&m.dropped)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for id, sub := range m.subscribers {
		close(sub.queue)
		delete(m.subscribers, id)
	}

	m.logger.Debug("event manager closed")
	return nil
}

var _ ports.EventManager = (*Manager)(nil)

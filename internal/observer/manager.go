package observer

import (
	"context"
	"fmt"
	"sync"

	"github.com/agenticaivc/intentgraph/internal/platformlog"
)

// Manager fans an Event out to every registered Observer on its own
// goroutine, non-blocking relative to the caller and isolated from any one
// observer panicking or erroring.
type Manager struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *platformlog.Logger
}

// NewManager constructs an empty Manager.
func NewManager(logger *platformlog.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds an observer. Duplicate names are rejected.
func (m *Manager) Register(obs Observer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.observers {
		if existing.Name() == obs.Name() {
			return fmt.Errorf("observer %q already registered", obs.Name())
		}
	}
	m.observers = append(m.observers, obs)
	return nil
}

// Unregister removes an observer by name.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, obs := range m.observers {
		if obs.Name() == name {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("observer %q not found", name)
}

// Count returns the number of registered observers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers)
}

// Notify dispatches event to every observer whose filter admits it, each
// on its own goroutine. ctx is stripped of cancellation (via
// context.WithoutCancel) so an observer's work — e.g. a delayed execution
// write — survives the caller's own context being cancelled.
func (m *Manager) Notify(ctx context.Context, event Event) {
	m.mu.RLock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()

	notifyCtx := context.WithoutCancel(ctx)
	for _, obs := range observers {
		go m.notifyOne(notifyCtx, obs, event)
	}
}

func (m *Manager) notifyOne(ctx context.Context, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil && m.logger != nil {
			m.logger.Error("observer panic recovered",
				"observer", obs.Name(),
				"eventType", string(event.Type),
				"panic", r,
			)
		}
	}()

	if filter := obs.Filter(); filter != nil && !filter.ShouldNotify(event) {
		return
	}

	if err := obs.OnEvent(ctx, event); err != nil && m.logger != nil {
		m.logger.Error("observer notification failed",
			"observer", obs.Name(),
			"eventType", string(event.Type),
			"error", err,
		)
	}
}

package observer

import (
	"context"

	"github.com/agenticaivc/intentgraph/pkg/graph"
)

// ExecutionStore is the durable-persistence hook spec.md §4.9/§6 describes:
// three callbacks invoked outside any scheduler critical section, so a
// slow or failing store can never stall node dispatch.
type ExecutionStore interface {
	OnExecutionStart(ctx context.Context, record graph.ExecutionRecord)
	OnExecutionComplete(ctx context.Context, record graph.ExecutionRecord)
	OnExecutionFailed(ctx context.Context, record graph.ExecutionRecord)
}

// StoreHook adapts an ExecutionStore into an Observer subscribed only to
// execution-level events, translating each Event into the ExecutionRecord
// shape the store persists.
type StoreHook struct {
	name  string
	store ExecutionStore
}

// NewStoreHook constructs a StoreHook delegating to store.
func NewStoreHook(name string, store ExecutionStore) *StoreHook {
	return &StoreHook{name: name, store: store}
}

func (h *StoreHook) Name() string { return h.name }

func (h *StoreHook) Filter() EventFilter {
	return NewEventTypeFilter(EventTypeExecutionStarted, EventTypeExecutionCompleted, EventTypeExecutionFailed)
}

func (h *StoreHook) OnEvent(ctx context.Context, event Event) error {
	record := graph.ExecutionRecord{
		ID:        event.ExecutionID,
		CreatedAt: event.Timestamp,
		GraphID:   event.GraphID,
	}

	switch event.Type {
	case EventTypeExecutionStarted:
		record.Status = graph.RecordRunning
		h.store.OnExecutionStart(ctx, record)
	case EventTypeExecutionCompleted:
		record.Status = graph.RecordCompleted
		if event.Duration > 0 {
			ms := event.Duration.Milliseconds()
			record.DurationMs = &ms
		}
		h.store.OnExecutionComplete(ctx, record)
	case EventTypeExecutionFailed:
		record.Status = graph.RecordFailed
		if event.Error != nil {
			record.Error = event.Error.Error()
		}
		h.store.OnExecutionFailed(ctx, record)
	}
	return nil
}

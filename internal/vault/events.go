package vault

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/whackrock/fund/internal/logger"
	"github.com/whackrock/fund/internal/types"
)

// LogSink writes every event to the log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{logger: logger.GetForComponent("fund_events")}
}

func (s *LogSink) Publish(_ context.Context, ev types.Event) error {
	s.logger.Info().
		Str("event_id", ev.ID).
		Str("operation_id", ev.OperationID).
		Str("type", string(ev.Type)).
		Time("timestamp", ev.Timestamp).
		Interface("payload", ev.Payload).
		Msg("Fund event")
	return nil
}

// Recorder keeps published events in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.RWMutex
	events []types.Event
	limit  int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// NewBoundedRecorder keeps only the newest limit events.
func NewBoundedRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Publish(_ context.Context, ev types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]types.Event(nil), r.events[len(r.events)-r.limit:]...)
	}
	return nil
}

// Events returns a copy of every recorded event, oldest first.
func (r *Recorder) Events() []types.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.Event(nil), r.events...)
}

// OfType returns the recorded events of one type, oldest first.
func (r *Recorder) OfType(typ types.EventType) []types.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Recent returns up to n of the newest events, newest first.
func (r *Recorder) Recent(n int) []types.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.events) {
		n = len(r.events)
	}
	out := make([]types.Event, 0, n)
	for i := len(r.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.events[i])
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// MultiSink publishes to every sink in order and joins their errors.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, ev types.Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecentEvents lists up to limit recorded events of eventType, newest first. An empty eventType
// matches every type.
func (r *Recorder) RecentEvents(_ context.Context, limit int, eventType types.EventType) ([]types.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = len(r.events)
	}
	out := make([]types.Event, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if eventType == "" || r.events[i].Type == eventType {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

// OperationEvents returns the recorded events of one operation, oldest first.
func (r *Recorder) OperationEvents(_ context.Context, operationID string) ([]types.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Event
	for _, ev := range r.events {
		if ev.OperationID == operationID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// EventCounts counts the recorded events per type.
func (r *Recorder) EventCounts(_ context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, ev := range r.events {
		counts[string(ev.Type)]++
	}
	return counts, nil
}

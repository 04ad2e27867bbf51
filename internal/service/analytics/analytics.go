package analytics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vetlink/companion/backend/internal/store"
)

// Event names recorded by the conversation engine.
const (
	EventChatOpened         = "chat_opened"
	EventMessageSent        = "message_sent"
	EventReplyFlagged       = "reply_flagged"
	EventCrisisDetected     = "crisis_detected"
	EventGatewayFailed      = "gateway_failed"
	EventEscalationOffered  = "escalation_offered"
	EventEscalationAccepted = "escalation_accepted"
	EventEscalationDeclined = "escalation_declined"
)

// Sink receives fire-and-forget analytics events. Record must never block.
type Sink interface {
	Record(name string, attrs map[string]string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(string, map[string]string) {}

// Persister stores events durably.
type Persister interface {
	AppendEvent(ctx context.Context, event store.Event) error
}

// Recorder logs events and optionally persists them from a single
// background goroutine. Events are dropped when the queue is full.
type Recorder struct {
	logger  *zap.Logger
	persist Persister
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	events chan store.Event
	done   chan struct{}

	dropped atomic.Int64
}

// NewRecorder starts the recorder. persist may be nil.
func NewRecorder(logger *zap.Logger, persist Persister, queueSize int) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &Recorder{
		logger:  logger.Named("analytics"),
		persist: persist,
		now:     time.Now,
		events:  make(chan store.Event, queueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an event without blocking.
func (r *Recorder) Record(name string, attrs map[string]string) {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	ev := store.Event{ID: uuid.NewString(), Name: name, Attrs: copied, CreatedAt: r.now().UTC()}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close flushes queued events.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush analytics: %w", ctx.Err())
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.events {
		r.handle(ev)
	}
}

func (r *Recorder) handle(ev store.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("analytics handler panicked", zap.Any("panic", rec))
		}
	}()

	fields := make([]zap.Field, 0, len(ev.Attrs)+1)
	fields = append(fields, zap.String("event", ev.Name))
	for k, v := range ev.Attrs {
		fields = append(fields, zap.String(k, v))
	}
	r.logger.Info("analytics", fields...)

	if r.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.persist.AppendEvent(ctx, ev); err != nil {
		r.logger.Warn("persist analytics event failed", zap.String("event", ev.Name), zap.Error(err))
	}
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/raphaelgruber/aiact-go/internal/metrics"
	"github.com/raphaelgruber/aiact-go/internal/models"
)

// Instrumented records the duration and errors of every store call.
type Instrumented struct {
	next    Store
	metrics *metrics.Collector
}

var _ Store = (*Instrumented)(nil)

// WithMetrics wraps s so reads and writes are observed by c.
func WithMetrics(s Store, c *metrics.Collector) *Instrumented {
	return &Instrumented{next: s, metrics: c}
}

func (s *Instrumented) Create(ctx context.Context, name string) (conv models.Conversation, err error) {
	defer s.observe(metrics.OpStoreWrite, time.Now(), &err)
	return s.next.Create(ctx, name)
}

func (s *Instrumented) Get(ctx context.Context, id string) (conv models.Conversation, err error) {
	defer s.observe(metrics.OpStoreRead, time.Now(), &err)
	return s.next.Get(ctx, id)
}

func (s *Instrumented) List(ctx context.Context) (convs []models.Conversation, err error) {
	defer s.observe(metrics.OpStoreRead, time.Now(), &err)
	return s.next.List(ctx)
}

func (s *Instrumented) Rename(ctx context.Context, id, name string) (n int, err error) {
	defer s.observe(metrics.OpStoreWrite, time.Now(), &err)
	return s.next.Rename(ctx, id, name)
}

func (s *Instrumented) Delete(ctx context.Context, id string) (err error) {
	defer s.observe(metrics.OpStoreWrite, time.Now(), &err)
	return s.next.Delete(ctx, id)
}

func (s *Instrumented) History(ctx context.Context, conversationID string) (msgs []models.Message, err error) {
	defer s.observe(metrics.OpStoreRead, time.Now(), &err)
	return s.next.History(ctx, conversationID)
}

func (s *Instrumented) Append(ctx context.Context, conversationID string, msgs ...models.Message) (err error) {
	defer s.observe(metrics.OpStoreWrite, time.Now(), &err)
	return s.next.Append(ctx, conversationID, msgs...)
}

func (s *Instrumented) DeleteHistory(ctx context.Context, conversationID string) (err error) {
	defer s.observe(metrics.OpStoreWrite, time.Now(), &err)
	return s.next.DeleteHistory(ctx, conversationID)
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}

// observe treats ErrNotFound as a normal outcome rather than a failure.
func (s *Instrumented) observe(op string, start time.Time, err *error) {
	e := *err
	if errors.Is(e, ErrNotFound) {
		e = nil
	}
	s.metrics.Observe(op, start, e)
}

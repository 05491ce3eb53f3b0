package email

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	block chan struct{}
	err   error
}

func (r *recordingSender) SendLoginOTP(ctx context.Context, toEmail, code string, _ time.Time) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, toEmail+":"+code)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestDispatcher_DeliversQueuedMessages(t *testing.T) {
	next := &recordingSender{}
	d := NewDispatcher(zap.NewNop(), next, 2, 8, time.Second)

	for i := 0; i < 5; i++ {
		if err := d.SendLoginOTP(context.Background(), "user@example.com", "123456", time.Now()); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	d.Close()

	if next.count() != 5 {
		t.Fatalf("expected 5 deliveries, got %d", next.count())
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	next := &recordingSender{block: make(chan struct{})}
	d := NewDispatcher(zap.NewNop(), next, 1, 1, 10*time.Second)

	// El worker toma el primero y se bloquea; el segundo llena la cola.
	_ = d.SendLoginOTP(context.Background(), "a@example.com", "1", time.Now())
	deadline := time.Now().Add(time.Second)
	for len(d.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := d.SendLoginOTP(context.Background(), "b@example.com", "2", time.Now()); err != nil {
		t.Fatalf("expected second enqueue to succeed, got %v", err)
	}
	if err := d.SendLoginOTP(context.Background(), "c@example.com", "3", time.Now()); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(next.block)
	d.Close()
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), &recordingSender{}, 1, 1, time.Second)
	d.Close()
	d.Close()

	if err := d.SendLoginOTP(context.Background(), "a@example.com", "1", time.Now()); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestDispatcher_SenderErrorsAreLoggedNotReturned(t *testing.T) {
	next := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(zap.NewNop(), next, 1, 1, time.Second)

	if err := d.SendLoginOTP(context.Background(), "a@example.com", "1", time.Now()); err != nil {
		t.Fatalf("enqueue should not surface delivery errors, got %v", err)
	}
	d.Close()
	if next.count() != 1 {
		t.Fatalf("expected delivery attempt")
	}
}

package email

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull se devuelve cuando el dispatcher no acepta mas mensajes.
var ErrQueueFull = errors.New("email queue full")

// ErrDispatcherClosed se devuelve al encolar despues de Close.
var ErrDispatcherClosed = errors.New("email dispatcher closed")

type job struct {
	to        string
	code      string
	expiresAt time.Time
}

// Dispatcher desacopla el envio de correos del request: SendLoginOTP solo
// encola y un pool de workers entrega con timeout propio. Implementa Sender.
type Dispatcher struct {
	logger  *zap.Logger
	next    Sender
	timeout time.Duration
	queue   chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(logger *zap.Logger, next Sender, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := &Dispatcher{
		logger:  logger,
		next:    next,
		timeout: timeout,
		queue:   make(chan job, queueSize),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

func (d *Dispatcher) SendLoginOTP(_ context.Context, toEmail string, code string, expiresAt time.Time) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- job{to: toEmail, code: code, expiresAt: expiresAt}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close deja de aceptar mensajes y espera a que se vacie la cola.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.SendLoginOTP(ctx, j.to, j.code, j.expiresAt); err != nil {
			d.logger.Warn("send login otp failed", zap.Error(err), zap.String("email", j.to))
		}
		cancel()
	}
}

package booking

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// dispatcher hands events to the notifier on one background goroutine in the order they
// were queued. Each delivery gets its own timeout, measured from when it starts.
type dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	log      *slog.Logger

	mu     sync.RWMutex // held for writing only while closing the queue
	closed bool
	queue  chan delivery
	done   chan struct{}
}

type delivery struct {
	ctx     context.Context
	ev      Event
	flushed chan struct{} // set on flush markers only
}

func newDispatcher(notifier Notifier, timeout time.Duration, size int, log *slog.Logger) *dispatcher {
	d := &dispatcher{
		notifier: notifier,
		timeout:  timeout,
		log:      log,
		queue:    make(chan delivery, size),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// enqueue never blocks; when the queue is full or closed the event is dropped and logged.
func (d *dispatcher) enqueue(ctx context.Context, ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	attrs := []any{
		slog.String("event_type", string(ev.Type)),
		slog.String("appointment_id", ev.Appointment.ID.String()),
	}
	if d.closed {
		d.log.WarnContext(ctx, "notification dropped after shutdown", attrs...)
		return
	}
	select {
	case d.queue <- delivery{ctx: context.WithoutCancel(ctx), ev: ev}:
	default:
		d.log.WarnContext(ctx, "notification queue full; event dropped", attrs...)
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for job := range d.queue {
		if job.flushed != nil {
			close(job.flushed)
			continue
		}
		d.deliver(job)
	}
}

func (d *dispatcher) deliver(job delivery) {
	ctx, cancel := context.WithTimeout(job.ctx, d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, job.ev); err != nil {
		d.log.WarnContext(ctx, "appointment notification failed",
			slog.String("event_type", string(job.ev.Type)),
			slog.String("appointment_id", job.ev.Appointment.ID.String()),
			slog.Any("err", err),
		)
	}
}

// flush returns once every event queued before the call has been delivered.
func (d *dispatcher) flush(ctx context.Context) error {
	marker := delivery{flushed: make(chan struct{})}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return d.wait(ctx)
	}
	select {
	case d.queue <- marker:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting events and waits for the queued ones to be delivered.
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	return d.wait(ctx)
}

func (d *dispatcher) wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

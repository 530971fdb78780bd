package loanGuard

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands audit events to the sink on its own goroutine, so a slow
// sink never holds up a login or a gate check.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	dropOnFull bool

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	closing  atomic.Bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// newAuditDispatcher returns nil when auditing is off; every method accepts a nil
// receiver.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, max(cfg.BufferSize, 1)),
		dropOnFull: cfg.DropIfFull,
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush delivers what was queued before Close.
func (d *auditDispatcher) flush() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

// deliver counts a panicking sink as a failure and keeps the loop alive.
func (d *auditDispatcher) deliver(ev AuditEvent) {
	defer func() {
		if recover() != nil {
			d.failed.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. With DropIfFull a full queue drops and counts ev. Otherwise Emit
// waits for room until ctx ends or the dispatcher closes.
func (d *auditDispatcher) Emit(ctx context.Context, ev AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}

	if d.dropOnFull {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}

	var cancelled <-chan struct{}
	if ctx != nil {
		cancelled = ctx.Done()
	}
	select {
	case d.queue <- ev:
	case <-cancelled:
	case <-d.stop:
	}
}

// Close rejects new events, flushes the queue and returns once the sink has seen
// every queued event.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
	})
	<-d.stopped
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed counts events whose sink panicked.
func (d *auditDispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

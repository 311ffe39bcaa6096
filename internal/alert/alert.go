// Package alert delivers operational notifications (key throttling, key
// invalidation, pool exhaustion) as a best-effort side channel. Delivery
// never blocks the pipeline and delivery failures are never propagated.
package alert

import (
	"sync"

	"github.com/rs/zerolog"
)

// Notifier sends one structured notification.
type Notifier interface {
	Notify(subject, body string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(subject, body string) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(subject, body string) error {
	return f(subject, body)
}

type message struct {
	subject string
	body    string
}

// Dispatcher wraps a Notifier in a bounded asynchronous queue. Enqueueing
// never blocks: when the queue is full the message is dropped and counted.
type Dispatcher struct {
	notifier Notifier
	queue    chan message
	log      zerolog.Logger

	mu      sync.Mutex
	dropped int64
	closed  bool
	done    chan struct{}
}

// NewDispatcher creates and starts a dispatcher with the given queue size.
// A nil notifier yields a dispatcher that discards everything, which keeps
// call sites free of nil checks.
func NewDispatcher(n Notifier, queueSize int, log zerolog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		notifier: n,
		queue:    make(chan message, queueSize),
		log:      log,
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues a notification without blocking. The lock is held across
// the send so a concurrent Close cannot close the queue in between the
// closed check and the enqueue.
func (d *Dispatcher) Notify(subject, body string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	select {
	case d.queue <- message{subject: subject, body: body}:
		d.mu.Unlock()
	default:
		d.dropped++
		d.mu.Unlock()
		d.log.Warn().Str("subject", subject).Msg("alert queue full, dropping notification")
	}
}

// Dropped returns the number of notifications dropped due to a full queue.
func (d *Dispatcher) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops the dispatcher after draining queued notifications.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		if d.notifier == nil {
			continue
		}
		if err := d.notifier.Notify(msg.subject, msg.body); err != nil {
			// Best effort only. Failures are logged and swallowed.
			d.log.Warn().Err(err).Str("subject", msg.subject).Msg("alert delivery failed")
		}
	}
}

// README: Async dispatcher fanning events out to publishers from a bounded queue.
package notify

import (
	"context"
	"sync"
	"time"

	"vrent/internal/logger"
)

const publishTimeout = 5 * time.Second

type Dispatcher struct {
	queue      chan Event
	publishers []Publisher
	wg         sync.WaitGroup
	once       sync.Once
}

func NewDispatcher(queueSize int, publishers ...Publisher) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		queue:      make(chan Event, queueSize),
		publishers: publishers,
	}
}

// Notify enqueues e without blocking; a full queue drops the event.
func (d *Dispatcher) Notify(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case d.queue <- e:
	default:
		logger.WarnContext(ctx, "notification queue full, dropping event",
			"kind", e.Kind, "booking_id", e.BookingID)
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued.
func (d *Dispatcher) Run(ctx context.Context) {
	d.wg.Add(1)
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case e := <-d.queue:
			d.deliver(e)
		}
	}
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain() {
	d.once.Do(func() {
		for {
			select {
			case e := <-d.queue:
				d.deliver(e)
			default:
				return
			}
		}
	})
}

func (d *Dispatcher) deliver(e Event) {
	for _, p := range d.publishers {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := p.Publish(ctx, e)
		cancel()
		if err != nil {
			logger.Warn("notification delivery failed",
				"kind", e.Kind, "booking_id", e.BookingID, "error", err)
		}
	}
}

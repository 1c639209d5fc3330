// Package notification fans session events out to users after the state
// change that produced them has been committed.
package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saeid-a/MentorHubBack/internal/models"
)

const (
	DefaultQueueSize = 256
	DefaultWorkers   = 2

	deliveryTimeout = 10 * time.Second
)

type Event struct {
	UserID       int64               `json:"user_id"`
	Notification models.Notification `json:"notification"`
}

// Sink delivers one event to one channel. Errors are logged and dropped.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Dispatcher is a bounded in-process queue drained by worker goroutines.
// NotifyUser never blocks; events are dropped when the queue is full.
type Dispatcher struct {
	queue   chan Event
	sinks   []Sink
	workers int
	dropped atomic.Int64
}

func NewDispatcher(queueSize, workers int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Dispatcher{
		queue:   make(chan Event, queueSize),
		sinks:   sinks,
		workers: workers,
	}
}

func (d *Dispatcher) NotifyUser(_ context.Context, userID int64, notification models.Notification) {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	select {
	case d.queue <- Event{UserID: userID, Notification: notification}:
	default:
		d.dropped.Add(1)
		log.Warn().
			Int64("user_id", userID).
			Str("type", notification.Type).
			Msg("notification queue full, dropping event")
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run drains the queue until ctx is cancelled, then delivers whatever is
// still buffered and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().Int("workers", d.workers).Int("sinks", len(d.sinks)).Msg("notification dispatcher started")

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()

	d.drain()
	log.Info().Msg("notification dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx := context.Background()
	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	for _, sink := range d.sinks {
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		err := sink.Deliver(deliverCtx, event)
		cancel()
		if err != nil {
			log.Error().Err(err).
				Str("sink", sink.Name()).
				Int64("user_id", event.UserID).
				Str("type", event.Notification.Type).
				Msg("notification delivery failed")
		}
	}
}

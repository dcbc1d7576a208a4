package journal

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hakimelghazi/quoter/internal/engine"
)

// flushTimeout bounds the final flush after Run's context is cancelled.
const flushTimeout = 5 * time.Second

// maxBatch caps how many queued events are handed to the sinks at once.
const maxBatch = 256

// Sink consumes batches of engine events. A failing sink is logged and
// skipped; it never holds back the other sinks.
type Sink interface {
	Name() string
	Write(ctx context.Context, events []engine.Event) error
}

// Journal decouples the engine from slow consumers: Publish enqueues
// without blocking and a single Run goroutine fans events out to sinks.
type Journal struct {
	events  chan engine.Event
	sinks   []Sink
	log     *zap.Logger
	dropped atomic.Uint64
	done    chan struct{}
}

func New(buffer int, log *zap.Logger, sinks ...Sink) *Journal {
	if log == nil {
		log = zap.NewNop()
	}
	return &Journal{
		events: make(chan engine.Event, buffer),
		sinks:  sinks,
		log:    log.Named("journal"),
		done:   make(chan struct{}),
	}
}

// Publish implements engine.Publisher. Events are dropped, and counted,
// when the buffer is full.
func (j *Journal) Publish(ev engine.Event) {
	select {
	case j.events <- ev:
	default:
		n := j.dropped.Add(1)
		j.log.Warn("journal full, event dropped",
			zap.Stringer("type", ev.Type),
			zap.String("symbol", ev.Symbol),
			zap.Uint64("dropped_total", n),
		)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Done is closed once Run has returned.
func (j *Journal) Done() <-chan struct{} {
	return j.done
}

// Run drains the buffer until ctx is cancelled, then flushes whatever is
// still queued.
func (j *Journal) Run(ctx context.Context) error {
	defer close(j.done)

	for {
		select {
		case ev := <-j.events:
			j.write(ctx, j.collect(ev))

		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			for {
				select {
				case ev := <-j.events:
					j.write(flushCtx, j.collect(ev))
				default:
					return nil
				}
			}
		}
	}
}

// collect returns first plus whatever else is already queued.
func (j *Journal) collect(first engine.Event) []engine.Event {
	batch := []engine.Event{first}
	for len(batch) < maxBatch {
		select {
		case ev := <-j.events:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (j *Journal) write(ctx context.Context, batch []engine.Event) {
	for _, s := range j.sinks {
		if err := s.Write(ctx, batch); err != nil {
			j.log.Error("sink write failed",
				zap.String("sink", s.Name()),
				zap.Int("events", len(batch)),
				zap.Error(err),
			)
		}
	}
}

package ratelimit

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flightontime/flightontime/internal/core"
	"github.com/flightontime/flightontime/internal/metrics"
	"github.com/flightontime/flightontime/internal/observability"
)

// StatsSink persists aggregated admission counts. Counts are deltas to be
// added to whatever the sink already holds.
type StatsSink interface {
	RecordAdmissions(ctx context.Context, batch []core.AdmissionStats) error
}

// Recorder buffers admission events and flushes per-client aggregates to a
// sink from a single worker. Observing never blocks: when the buffer is full
// the event is dropped and counted.
type Recorder struct {
	sink          StatsSink
	events        chan core.AdmissionEvent
	flushInterval time.Duration
	maxBatch      int

	dropped atomic.Int64
	done    chan struct{}
}

// NewRecorder creates a recorder with the given buffer size and flush period.
func NewRecorder(sink StatsSink, buffer int, flushInterval time.Duration) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Recorder{
		sink:          sink,
		events:        make(chan core.AdmissionEvent, buffer),
		flushInterval: flushInterval,
		maxBatch:      buffer,
		done:          make(chan struct{}),
	}
}

// ObserveAdmission implements Observer.
func (r *Recorder) ObserveAdmission(_ context.Context, event core.AdmissionEvent) {
	select {
	case r.events <- event:
	default:
		r.dropped.Add(1)
		metrics.RecordAdmissionLogDropped()
	}
}

// Dropped returns how many events were discarded.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Run consumes events until ctx is cancelled, then drains the buffer and
// performs a final flush.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	pending := make(map[core.ClientKey]*core.AdmissionStats)
	count := 0

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case event := <-r.events:
					fold(pending, event)
				default:
					r.flush(context.WithoutCancel(ctx), pending)
					return
				}
			}
		case event := <-r.events:
			fold(pending, event)
			count++
			if count >= r.maxBatch {
				r.flush(ctx, pending)
				count = 0
			}
		case <-ticker.C:
			r.flush(ctx, pending)
			count = 0
		}
	}
}

func fold(pending map[core.ClientKey]*core.AdmissionStats, event core.AdmissionEvent) {
	stats, ok := pending[event.Key]
	if !ok {
		stats = &core.AdmissionStats{Key: event.Key}
		pending[event.Key] = stats
	}
	stats.Add(event)
}

func (r *Recorder) flush(ctx context.Context, pending map[core.ClientKey]*core.AdmissionStats) {
	if len(pending) == 0 {
		return
	}

	batch := make([]core.AdmissionStats, 0, len(pending))
	for _, stats := range pending {
		batch = append(batch, *stats)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Key < batch[j].Key })
	clear(pending)

	err := r.sink.RecordAdmissions(ctx, batch)
	metrics.RecordAdmissionLogFlush(err == nil)
	if err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Error("Failed to persist admission stats",
			zap.Int("clients", len(batch)),
			zap.Error(err))
	}
}

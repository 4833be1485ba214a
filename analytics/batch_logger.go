package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spenselabs/partnersdk/api"
	"github.com/spenselabs/partnersdk/device"
)

const (
	maxBatchSize  = 100
	flushInterval = 10 * time.Minute
	queueCapacity = 256
)

// Poster is the slice of the API client the logger needs.
type Poster interface {
	PostAnalytics(ctx context.Context, events []api.AnalyticsEvent) error
}

var _ Sink = (*BatchLogger)(nil)

// BatchLogger buffers events and uploads them when the batch fills or the
// flush interval elapses. Events are dropped, with a log line, when the queue
// is full; upload failures keep the batch for the next attempt.
type BatchLogger struct {
	poster      Poster
	fingerprint device.Fingerprint
	log         zerolog.Logger
	nowTime     func() time.Time

	queue  chan api.AnalyticsEvent
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// BatchLoggerOption configures a BatchLogger.
type BatchLoggerOption func(*BatchLogger)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) BatchLoggerOption {
	return func(bl *BatchLogger) { bl.nowTime = nowFunc }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) BatchLoggerOption {
	return func(bl *BatchLogger) { bl.log = log }
}

// NewBatchLogger starts the upload loop. Call Close to flush and stop it.
func NewBatchLogger(poster Poster, fingerprint device.Fingerprint, options ...BatchLoggerOption) *BatchLogger {
	bl := &BatchLogger{
		poster:      poster,
		fingerprint: fingerprint,
		log:         zerolog.Nop(),
		nowTime:     time.Now,
		queue:       make(chan api.AnalyticsEvent, queueCapacity),
	}
	for _, opt := range options {
		opt(bl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bl.cancel = cancel
	bl.done.Add(1)
	go bl.run(ctx)
	return bl
}

// LogEvent enqueues an event. Never blocks; the event is dropped if the queue
// is full.
func (bl *BatchLogger) LogEvent(name string, attrs map[string]any) {
	info := map[string]any{"event": name, "framework": "GO"}
	for key, value := range attrs {
		info[key] = value
	}
	event := api.AnalyticsEvent{
		Time: bl.nowTime().UTC().Format(time.RFC3339),
		Event: map[string]any{
			"info":   info,
			"device": bl.fingerprint,
		},
	}
	select {
	case bl.queue <- event:
	default:
		bl.log.Debug().Str("event", name).Msg("analytics queue full, dropping event")
	}
}

// Close flushes pending events and stops the upload loop.
func (bl *BatchLogger) Close() {
	bl.cancel()
	bl.done.Wait()
}

func (bl *BatchLogger) run(ctx context.Context) {
	defer bl.done.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []api.AnalyticsEvent
	for {
		select {
		case event := <-bl.queue:
			pending = append(pending, event)
			if len(pending) >= maxBatchSize {
				pending = bl.post(ctx, pending)
			}
		case <-ticker.C:
			pending = bl.post(ctx, pending)
		case <-ctx.Done():
			bl.drain(&pending)
			bl.post(context.Background(), pending)
			return
		}
	}
}

func (bl *BatchLogger) drain(pending *[]api.AnalyticsEvent) {
	for {
		select {
		case event := <-bl.queue:
			*pending = append(*pending, event)
		default:
			return
		}
	}
}

// post uploads the batch, returning the events to retry on failure.
func (bl *BatchLogger) post(ctx context.Context, events []api.AnalyticsEvent) []api.AnalyticsEvent {
	if len(events) == 0 {
		return nil
	}
	if err := bl.poster.PostAnalytics(ctx, events); err != nil {
		bl.log.Debug().Err(err).Int("events", len(events)).Msg("analytics upload failed, retrying later")
		return events
	}
	return nil
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telemetry emits product analytics events off the message handling
// path. Emission is best-effort: events never block the caller and failures
// never affect user-visible behavior.
package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.astrophena.name/bots/internal/api/amplitude"
)

// Sink is the destination of analytics events. [amplitude.Client]
// implements it.
type Sink interface {
	LogEvents(ctx context.Context, events []amplitude.Event) error
}

const (
	defaultWorkers   = 5
	defaultQueueSize = 64
	sendTimeout      = 10 * time.Second
)

// Recorder dispatches events to a sink through a fixed-size worker pool with
// a bounded queue. When the queue is full, events are dropped and the drop is
// logged.
type Recorder struct {
	sink  Sink
	slog  *slog.Logger
	queue chan amplitude.Event

	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// New returns a started Recorder. If workers or queueSize are zero, defaults
// of 5 and 64 are used.
func New(sink Sink, logger *slog.Logger, workers, queueSize int) *Recorder {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	r := &Recorder{
		sink:  sink,
		slog:  logger,
		queue: make(chan amplitude.Event, queueSize),
	}
	for range workers {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Record enqueues an event. It never blocks: if the queue is saturated, the
// event is dropped.
func (r *Recorder) Record(userID, chatID int64, eventType string, properties map[string]any) {
	evt := amplitude.Event{
		UserID:     strconv.FormatInt(userID, 10),
		DeviceID:   strconv.FormatInt(chatID, 10),
		Type:       eventType,
		Properties: properties,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- evt:
	default:
		r.slog.Warn("telemetry: queue saturated, event dropped", "event_type", eventType)
	}
}

// Close stops accepting events and waits until queued ones are flushed.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for evt := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := r.sink.LogEvents(ctx, []amplitude.Event{evt}); err != nil {
			r.slog.Error("telemetry: failed to log event", "event_type", evt.Type, "err", err)
		}
		cancel()
	}
}

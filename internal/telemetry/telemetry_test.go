// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.astrophena.name/bots/internal/api/amplitude"
	"go.astrophena.name/bots/internal/testutil"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []amplitude.Event
	release chan struct{} // if non-nil, LogEvents blocks until closed
}

func (s *recordingSink) LogEvents(ctx context.Context, events []amplitude.Event) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecord(t *testing.T) {
	sink := new(recordingSink)
	r := New(sink, discardLogger(), 2, 8)

	r.Record(1, 2, "TextMessage", map[string]any{"likes": true})
	r.Record(1, 2, "VoiceMessage", nil)
	r.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	testutil.AssertEqual(t, len(sink.events), 2)
	testutil.AssertEqual(t, sink.events[0].UserID, "1")
	testutil.AssertEqual(t, sink.events[0].DeviceID, "2")
}

func TestRecordDropsOnSaturation(t *testing.T) {
	sink := &recordingSink{release: make(chan struct{})}
	r := New(sink, discardLogger(), 1, 1)

	// First event occupies the single worker, second fills the queue, the
	// rest must be dropped without blocking.
	done := make(chan struct{})
	go func() {
		for range 10 {
			r.Record(1, 2, "TextMessage", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked on a saturated queue")
	}

	close(sink.release)
	r.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) > 2+1 {
		t.Fatalf("got %d events, want at most 3 (worker + queue)", len(sink.events))
	}
}

func TestRecordAfterClose(t *testing.T) {
	sink := new(recordingSink)
	r := New(sink, discardLogger(), 1, 1)
	r.Close()

	// Must not panic or block.
	r.Record(1, 2, "TextMessage", nil)
}

package expiry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/roomie/internal/metrics"
)

// --- モック定義 ---

type mockSweeper struct {
	mu            sync.Mutex
	deactivateFn  func(ctx context.Context, now time.Time) (int64, error)
	clearBoostsFn func(ctx context.Context, now time.Time) (int64, error)
	calls         int
	lastNow       time.Time
}

func (m *mockSweeper) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	m.calls++
	m.lastNow = now
	m.mu.Unlock()
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, now)
	}
	return 0, nil
}

func (m *mockSweeper) ClearLapsedBoosts(ctx context.Context, now time.Time) (int64, error) {
	if m.clearBoostsFn != nil {
		return m.clearBoostsFn(ctx, now)
	}
	return 0, nil
}

func (m *mockSweeper) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordingCollector struct {
	metrics.Nop
	expired int64
	cleared int64
}

func (c *recordingCollector) RecordListingsExpired(count int64) { c.expired += count }
func (c *recordingCollector) RecordBoostsCleared(count int64)   { c.cleared += count }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// --- テスト ---

func TestJob_Run_ReportsCounts(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := &mockSweeper{
		deactivateFn:  func(context.Context, time.Time) (int64, error) { return 3, nil },
		clearBoostsFn: func(context.Context, time.Time) (int64, error) { return 2, nil },
	}
	collector := &recordingCollector{}
	job := NewJob(sweeper, collector, newTestLogger(&buf))
	job.now = func() time.Time { return fixed }

	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if res.Expired != 3 || res.BoostsCleared != 2 {
		t.Errorf("result = %+v, want {3 2}", res)
	}
	if !sweeper.lastNow.Equal(fixed) {
		t.Errorf("now = %v, want %v", sweeper.lastNow, fixed)
	}
	if collector.expired != 3 || collector.cleared != 2 {
		t.Errorf("metrics = expired %d cleared %d", collector.expired, collector.cleared)
	}

	found := false
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) != nil {
			continue
		}
		if entry["expired_count"] == float64(3) && entry["boosts_cleared"] == float64(2) {
			found = true
		}
	}
	if !found {
		t.Errorf("counts not logged: %s", buf.String())
	}
}

func TestJob_Run_ContinuesAfterPartialFailure(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("connection reset")
	sweeper := &mockSweeper{
		deactivateFn:  func(context.Context, time.Time) (int64, error) { return 0, boom },
		clearBoostsFn: func(context.Context, time.Time) (int64, error) { return 4, nil },
	}
	collector := &recordingCollector{}
	job := NewJob(sweeper, collector, newTestLogger(&buf))

	res, err := job.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if res.BoostsCleared != 4 || collector.cleared != 4 {
		t.Errorf("boost clearing must still run: res=%+v metrics=%d", res, collector.cleared)
	}
	if collector.expired != 0 {
		t.Errorf("expired metric must not be recorded on failure, got %d", collector.expired)
	}
}

func TestJob_Run_IdempotentWhenNothingToDo(t *testing.T) {
	job := NewJob(&mockSweeper{}, nil, nil)
	for i := 0; i < 2; i++ {
		res, err := job.Run(context.Background())
		if err != nil || res != (Result{}) {
			t.Fatalf("run %d: res=%+v err=%v", i, res, err)
		}
	}
}

func TestJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	sweeper := &mockSweeper{}
	job := NewJob(sweeper, nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sweeper.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("job ran %d times, want at least 2", sweeper.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

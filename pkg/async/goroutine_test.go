package async

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestSafeGo_Success(t *testing.T) {
	executed := make(chan struct{})

	SafeGo(context.Background(), nil, time.Second, "test task", func(ctx context.Context) error {
		close(executed)
		return nil
	})

	select {
	case <-executed:
	case <-time.After(time.Second):
		t.Fatal("SafeGo did not execute function")
	}
}

func TestSafeGo_LogsErrorsAndPanics(t *testing.T) {
	logger, hook := test.NewNullLogger()

	SafeGo(context.Background(), logger, time.Second, "failing task", func(ctx context.Context) error {
		return errors.New("test error")
	})
	SafeGo(context.Background(), logger, time.Second, "panicking task", func(ctx context.Context) error {
		panic("test panic")
	})

	deadline := time.Now().Add(time.Second)
	for len(hook.AllEntries()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Level != logrus.ErrorLevel {
			t.Errorf("expected error level, got %s", entry.Level)
		}
	}
}

func TestSafeGo_Timeout(t *testing.T) {
	done := make(chan error, 1)

	SafeGo(context.Background(), nil, 50*time.Millisecond, "slow task", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			done <- nil
		case <-ctx.Done():
			done <- ctx.Err()
		}
		return nil
	})

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled")
	}
}

func TestBatch_CollectsAllErrors(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}
	var processed atomic.Int32

	errs := Batch(context.Background(), items, 2, time.Second, func(ctx context.Context, n int) error {
		processed.Add(1)
		if n%2 == 0 {
			return errors.New("even")
		}
		if n == 5 {
			panic("five")
		}
		return nil
	})

	if processed.Load() != 6 {
		t.Errorf("expected all 6 items processed, got %d", processed.Load())
	}
	if len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %d", len(errs))
	}

	panics := 0
	for _, err := range errs {
		if strings.HasPrefix(err.Error(), "panic: five") {
			panics++
		}
	}
	if panics != 1 {
		t.Errorf("expected one recovered panic, got %d", panics)
	}
}

func TestBatch_RespectsWorkerLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 20)

	Batch(context.Background(), items, 3, time.Second, func(ctx context.Context, _ int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	if peak.Load() > 3 {
		t.Errorf("expected at most 3 concurrent workers, saw %d", peak.Load())
	}
}

func TestBatch_Empty(t *testing.T) {
	if errs := Batch(context.Background(), []string{}, 4, time.Second, func(context.Context, string) error {
		return errors.New("unreachable")
	}); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

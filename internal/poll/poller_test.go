package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollerFirstCycleIsImmediate(t *testing.T) {
	fired := make(chan time.Time, 1)
	p := New(time.Hour, func(ctx context.Context) error {
		select {
		case fired <- time.Now():
		default:
		}
		return nil
	})

	start := time.Now()
	p.Start(context.Background())
	defer p.Stop()

	select {
	case at := <-fired:
		if at.Sub(start) > 500*time.Millisecond {
			t.Errorf("first cycle fired after %v, want immediate", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never fired")
	}
}

func TestPollerReschedulesAfterCompletion(t *testing.T) {
	var count atomic.Int32
	done := make(chan struct{})
	p := New(10*time.Millisecond, func(ctx context.Context) error {
		if count.Add(1) == 3 {
			close(done)
		}
		return nil
	})

	p.Start(context.Background())
	defer p.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("only %d cycles ran, want 3", count.Load())
	}
}

func TestPollerSwallowsFailures(t *testing.T) {
	var count atomic.Int32
	var mu sync.Mutex
	var observed []error
	done := make(chan struct{})

	p := New(10*time.Millisecond, func(ctx context.Context) error {
		n := count.Add(1)
		if n == 3 {
			close(done)
		}
		if n == 1 {
			return errors.New("transient")
		}
		return nil
	}, WithErrorObserver(func(err error) {
		mu.Lock()
		observed = append(observed, err)
		mu.Unlock()
	}))

	p.Start(context.Background())
	defer p.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a failing cycle halted the loop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 1 || observed[0].Error() != "transient" {
		t.Errorf("observed errors = %v", observed)
	}
}

func TestPollerStopCancelsPendingCycle(t *testing.T) {
	var count atomic.Int32
	first := make(chan struct{})
	p := New(50*time.Millisecond, func(ctx context.Context) error {
		if count.Add(1) == 1 {
			close(first)
		}
		return nil
	})

	p.Start(context.Background())
	<-first
	// Give the completion handler time to arm the next timer, then stop
	time.Sleep(10 * time.Millisecond)
	p.Stop()

	time.Sleep(150 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("cycles after stop = %d, want 1", got)
	}
	if p.Running() {
		t.Error("poller still reports running after Stop")
	}
}

func TestPollerStopWhenIdleIsNoop(t *testing.T) {
	p := New(time.Second, func(ctx context.Context) error { return nil })
	p.Stop()
	p.Stop()
	if p.Running() {
		t.Error("idle poller reports running")
	}
}

func TestPollerStartTwiceRunsOneLoop(t *testing.T) {
	var count atomic.Int32
	p := New(time.Hour, func(ctx context.Context) error {
		count.Add(1)
		return nil
	})

	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("cycles = %d, want 1", got)
	}
}

func TestPollerContextCancellationStopsLoop(t *testing.T) {
	var count atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan struct{})
	p := New(20*time.Millisecond, func(ctx context.Context) error {
		if count.Add(1) == 1 {
			close(first)
		}
		return nil
	})

	p.Start(ctx)
	<-first
	cancel()

	time.Sleep(150 * time.Millisecond)
	final := count.Load()
	time.Sleep(100 * time.Millisecond)
	if count.Load() != final {
		t.Error("cycles kept firing after context cancellation")
	}
}

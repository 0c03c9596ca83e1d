package looper

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ramses-go/renderer/internal/event"
)

func TestStartRenderingCallsDoOneLoopRepeatedly(t *testing.T) {
	var calls int32
	c := New(func() {
		atomic.AddInt32(&calls, 1)
	}, nil, nil, nil, 0, 0)

	c.StartRendering()
	time.Sleep(20 * time.Millisecond)
	c.StopRendering()

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatalf("expected doOneLoop to have been called at least once")
	}
	if c.State() != StateIdle {
		t.Fatalf("expected Idle state after StopRendering, got %v", c.State())
	}
}

func TestStartRenderingIsANoOpWhenAlreadyRunning(t *testing.T) {
	c := New(func() { time.Sleep(time.Millisecond) }, nil, nil, nil, 0, 0)
	c.StartRendering()
	c.StartRendering()
	if c.State() != StateRunning {
		t.Fatalf("expected Running state, got %v", c.State())
	}
	c.StopRendering()
}

func TestWatchdogNotifiedEachIteration(t *testing.T) {
	var woken int32
	c := New(func() {}, nil, func() {
		atomic.AddInt32(&woken, 1)
	}, nil, 0, 0)

	c.StartRendering()
	time.Sleep(10 * time.Millisecond)
	c.StopRendering()

	if atomic.LoadInt32(&woken) == 0 {
		t.Fatalf("expected watchdog to be notified at least once")
	}
}

func TestDestroyRendererReleasesBackendOnLoopGoroutine(t *testing.T) {
	loopGoroutine := make(chan struct{}, 1)
	released := make(chan struct{})

	c := New(func() {
		select {
		case loopGoroutine <- struct{}{}:
		default:
		}
	}, func() {
		close(released)
	}, nil, nil, 0, 0)

	c.StartRendering()
	time.Sleep(5 * time.Millisecond)
	c.DestroyRenderer()

	select {
	case <-released:
	default:
		t.Fatalf("expected releaseBackend to have run")
	}
	if c.State() != StateIdle {
		t.Fatalf("expected Idle state after DestroyRenderer, got %v", c.State())
	}
}

func TestDestroyRendererReleasesBackendDirectlyWhenLoopNeverStarted(t *testing.T) {
	released := make(chan struct{})
	c := New(func() {}, func() {
		close(released)
	}, nil, nil, 0, 0)

	done := make(chan struct{})
	go func() {
		c.DestroyRenderer()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("DestroyRenderer deadlocked when the loop goroutine was never started")
	}

	select {
	case <-released:
	default:
		t.Fatalf("expected releaseBackend to have run even though StartRendering was never called")
	}
	if c.State() != StateIdle {
		t.Fatalf("expected Idle state after DestroyRenderer, got %v", c.State())
	}
}

func TestPeriodicLoopTimesEventEmittedAfterLoopCountPeriod(t *testing.T) {
	events := event.NewCollector()
	c := New(func() {}, nil, nil, events, 0, 3)

	c.StartRendering()
	time.Sleep(20 * time.Millisecond)
	c.StopRendering()

	var found bool
	for _, e := range events.Drain() {
		if e.Kind == event.KindRenderThreadPeriodicLoopTimes {
			found = true
			if e.LoopTimeAvgMicros < 0 {
				t.Fatalf("expected non-negative average loop time")
			}
		}
	}
	if !found {
		t.Fatalf("expected at least one RenderThreadPeriodicLoopTimes event")
	}
}

func TestMaximumFramerateCapsLoopRate(t *testing.T) {
	var calls int32
	c := New(func() {
		atomic.AddInt32(&calls, 1)
	}, nil, nil, nil, 20, 0)

	c.StartRendering()
	time.Sleep(110 * time.Millisecond)
	c.StopRendering()

	n := atomic.LoadInt32(&calls)
	if n > 5 {
		t.Fatalf("expected about 3 iterations at 20fps over 110ms, got %d", n)
	}
}

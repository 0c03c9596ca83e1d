// Package looper implements the Loop Controller (C9): the
// ticker-driven goroutine that repeatedly calls a display bundle's
// per-iteration work function, caps its rate to a configured
// framerate, notifies a watchdog callback every iteration, and reports
// windowed loop-duration statistics. Grounded on the teacher engine's
// render goroutine (frame-limit sleep around a per-frame callback) and
// on engine/profiler.Profiler's windowed-reset accounting pattern,
// generalized here from FPS/heap stats to loop-time max/average.
package looper

import (
	"sync"
	"time"

	"github.com/ramses-go/renderer/internal/event"
)

// State is the controller's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// Controller drives one display bundle's loop on its own goroutine.
// Grounded on the teacher's handleRender ticker goroutine and
// original_source's watchdog/quitChannel split, but using a
// sync.Cond instead of a channel close for DestroyRenderer: the
// backend's GPU context must be released synchronously on the loop
// goroutine itself (thread affinity), not racily via a channel signal
// observed from whichever goroutine gets scheduled next.
type Controller struct {
	doOneLoop     func()
	releaseBackend func()
	watchdog      func()
	events        *event.Collector

	minFrameDuration time.Duration
	loopCountPeriod  int

	mu             sync.Mutex
	state          State
	cond           *sync.Cond
	stop           bool
	pendingRelease bool
	everStarted    bool

	wg sync.WaitGroup

	loopCount   int
	maxMicros   float64
	sumMicros   float64
}

// New creates a Controller. doOneLoop is called once per iteration to
// advance the bundle's state/render work. releaseBackend is called on
// the loop goroutine itself, after the loop exits, to release the
// backend's GPU context under its own thread affinity before
// DestroyRenderer returns — mirroring original_source's requirement
// that context teardown happen on the thread that owns it. watchdog is
// notified once per iteration for liveness tracking; maximumFramerate
// <= 0 means unbounded (no inter-iteration sleep); loopCountPeriod <=
// 0 defaults to 120 iterations between periodic stats events.
func New(doOneLoop func(), releaseBackend func(), watchdog func(), events *event.Collector, maximumFramerate float64, loopCountPeriod int) *Controller {
	if loopCountPeriod <= 0 {
		loopCountPeriod = 120
	}
	var minFrame time.Duration
	if maximumFramerate > 0 {
		minFrame = time.Duration(float64(time.Second) / maximumFramerate)
	}

	c := &Controller{
		doOneLoop:        doOneLoop,
		releaseBackend:   releaseBackend,
		watchdog:         watchdog,
		events:           events,
		minFrameDuration: minFrame,
		loopCountPeriod:  loopCountPeriod,
		state:            StateIdle,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartRendering transitions the controller to Running and spawns the
// loop goroutine. A no-op if already running.
func (c *Controller) StartRendering() {
	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateRunning
	c.stop = false
	c.everStarted = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()
}

// StopRendering sets the stop flag and blocks until the loop goroutine
// observes it and exits. Grounded on the teacher's quitChannel pattern,
// generalized to a mutex-guarded flag so it composes with the same
// sync.Cond DestroyRenderer uses.
func (c *Controller) StopRendering() {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	c.stop = true
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}

// DestroyRenderer stops the loop (if running) and signals the loop
// goroutine to release the backend under its own thread affinity, then
// waits for that release to complete before returning. If no loop
// goroutine is running (already stopped, or never started: doOneLoop mode, spec §8 scenario 1's
// create-then-destroy-display path: the caller drives everything on
// its own goroutine and never calls StartRendering), there is no loop
// goroutine to hand the release to and nothing will ever signal the
// cond — releaseBackend runs synchronously on the caller's goroutine
// instead, mirroring original_source's guard that only invokes the
// loop-thread controller's destroy path in threaded mode.
func (c *Controller) DestroyRenderer() {
	if c.releaseBackend == nil {
		c.StopRendering()
		return
	}

	c.mu.Lock()
	running := c.state == StateRunning
	if running {
		c.pendingRelease = true
		c.cond.Signal()
	}
	c.mu.Unlock()

	c.StopRendering()

	if !running {
		c.releaseBackend()
		return
	}

	c.mu.Lock()
	for c.pendingRelease {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

func (c *Controller) run() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		if c.stop {
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		start := time.Now()

		if c.watchdog != nil {
			c.watchdog()
		}
		c.doOneLoop()

		elapsed := time.Since(start)
		c.recordLoopDuration(elapsed)

		if c.minFrameDuration > 0 {
			if sleepFor := c.minFrameDuration - elapsed; sleepFor > 0 {
				time.Sleep(sleepFor)
			}
		}
	}

	c.mu.Lock()
	release := c.pendingRelease
	c.mu.Unlock()
	if release && c.releaseBackend != nil {
		c.releaseBackend()
	}

	c.mu.Lock()
	c.pendingRelease = false
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Controller) recordLoopDuration(d time.Duration) {
	micros := float64(d.Microseconds())

	c.mu.Lock()
	c.loopCount++
	c.sumMicros += micros
	if micros > c.maxMicros {
		c.maxMicros = micros
	}

	var report *event.Event
	if c.loopCount >= c.loopCountPeriod {
		avg := c.sumMicros / float64(c.loopCount)
		report = &event.Event{
			Kind:              event.KindRenderThreadPeriodicLoopTimes,
			LoopTimeMaxMicros: c.maxMicros,
			LoopTimeAvgMicros: avg,
		}
		c.loopCount, c.sumMicros, c.maxMicros = 0, 0, 0
	}
	c.mu.Unlock()

	if report != nil && c.events != nil {
		c.events.Push(*report)
	}
}

// Package event defines the tagged Event variants the renderer core
// reports back to the user (spec §3/§6's Event API) and a thread-safe
// collector for them. Grounded on the teacher engine's plain-struct
// event-ish types passed out of engine/profiler, generalized into a
// discriminated union the way spec §3 requires ("tagged variant
// returned to the user"); kept as concrete structs with a Kind
// discriminant rather than interface{} to stay allocation-free on the
// hot per-frame path, matching the Command design in internal/command.
package event

import (
	"sync"

	"github.com/ramses-go/renderer/internal/ids"
)

// Kind discriminates the Event union.
type Kind int

const (
	KindDisplayCreated Kind = iota
	KindDisplayCreateFailed
	KindDisplayDestroyed
	KindDisplayDestroyFailed
	KindOffscreenBufferCreated
	KindOffscreenBufferCreateFailed
	KindOffscreenBufferDestroyed
	KindOffscreenBufferDestroyFailed
	KindReadPixelsDone
	KindReadPixelsFailed
	KindWindowKeyEvent
	KindScenePublished
	KindSceneStateChanged
	KindSceneFlushed
	KindSceneFlushFailed
	KindResourceBroken
	KindRenderThreadPeriodicLoopTimes
	KindConfirmationEchoed
)

// Event is a concrete tagged union: only the field(s) relevant to Kind
// are populated. A single struct (instead of one type per Kind) lets
// the collector stay allocation-free: Event values are pushed by
// value, never boxed.
type Event struct {
	Kind Kind

	Display       ids.DisplayHandle
	DisplayBuffer ids.DisplayBufferHandle
	Scene         ids.SceneId
	Resource      ids.ResourceContentHash

	Success bool
	Message string

	// State is the scene's new achieved state for KindSceneStateChanged,
	// using the same ordinal values as scenecontrol.State /
	// command.SceneState (Unavailable=0 .. Rendered=3). Kept as a plain
	// int rather than importing either package, since both already
	// import ids and neither should depend on event.
	State int

	KeyCode   int
	KeyAction int

	Pixels []byte
	Width  int
	Height int

	LoopTimeMaxMicros float64
	LoopTimeAvgMicros float64
}

// Collector is the single-producer/single-consumer event queue owned
// by one DisplayBundle (producer, the bundle's thread) and drained by
// the Dispatcher (consumer, any user thread calling DrainEvents).
// Grounded on spec §5's "Event buffer: single-producer (bundle) /
// single-consumer (dispatcher); mutex protected."
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Push appends an event. Safe to call from the owning bundle's thread
// only (single producer).
func (c *Collector) Push(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// Drain removes and returns every event queued since the last Drain,
// in push order.
func (c *Collector) Drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	out := c.events
	c.events = nil
	return out
}

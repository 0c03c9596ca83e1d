package dispatch

import (
	"sync"

	"github.com/ramses-go/renderer/internal/command"
	"github.com/ramses-go/renderer/internal/config"
	"github.com/ramses-go/renderer/internal/event"
	"github.com/ramses-go/renderer/internal/ids"
	"github.com/ramses-go/renderer/internal/looper"
	"github.com/ramses-go/renderer/internal/rlog"
	"github.com/ramses-go/renderer/internal/shadercache"
)

// Dispatcher is the Display Dispatcher (C8). It owns the shared
// incoming command buffer user threads enqueue into, a
// display-handle-keyed map of DisplayBundles, and the dispatcher-level
// event staging buffer for events that outlive a bundle (destroy
// confirmations, create failures with no bundle to own them). Grounded
// on spec §4.8: "Maintains display -> DisplayBundle map"; "dispatch
// partitions the queue by display handle"; "Aggregates events from
// all bundles under a single mutex."
type Dispatcher struct {
	log *rlog.Logger

	mu      sync.RWMutex
	bundles map[ids.DisplayHandle]*DisplayBundle

	incoming *command.Queue
	pending  *event.Collector

	displayGen ids.Generator

	cfg         *config.RendererConfig
	shaderCache *shadercache.FileCache
	watchdog    func()
}

// New creates a Dispatcher with no displays yet. cfg supplies the
// renderer-wide configuration surface (framerate cap, loop mode, byte
// budget, pending-flush limits) every DisplayBundle is constructed
// with; shaderCache and watchdog may be nil.
func New(cfg *config.RendererConfig, shaderCache *shadercache.FileCache, watchdog func()) *Dispatcher {
	return &Dispatcher{
		log:         rlog.New("DISPATCH"),
		bundles:     make(map[ids.DisplayHandle]*DisplayBundle),
		incoming:    command.NewQueue(),
		pending:     event.NewCollector(),
		cfg:         cfg,
		shaderCache: shaderCache,
		watchdog:    watchdog,
	}
}

// AllocateDisplayHandle returns the next display handle from the
// per-renderer monotonic counter (spec §6), without creating the
// display itself — actual creation happens when the corresponding
// KindCreateDisplay command is later dispatched, mirroring testable
// scenario 1's "push CreateDisplay(h=1, cfg); after doOneLoop, event
// queue contains DisplayCreated(1, OK)."
func (d *Dispatcher) AllocateDisplayHandle() ids.DisplayHandle {
	return ids.DisplayHandle(d.displayGen.Next())
}

// Push enqueues cmd into the shared incoming buffer. Safe to call from
// any user thread (spec §5's "any thread pushing commands: only brief
// mutex acquisition").
func (d *Dispatcher) Push(cmd command.Command) { d.incoming.Enqueue(cmd) }

// Dispatch drains the incoming buffer and routes each command to its
// owning display bundle (or handles it directly, for the display
// lifecycle commands and no-display broadcasts). Grounded on spec
// §4.8's dispatch(cmds) contract.
func (d *Dispatcher) Dispatch() {
	for _, cmd := range d.incoming.Drain() {
		d.route(cmd)
	}
}

func (d *Dispatcher) route(cmd command.Command) {
	switch cmd.Kind {
	case command.KindCreateDisplay:
		d.handleCreateDisplay(cmd)
	case command.KindDestroyDisplay:
		d.handleDestroyDisplay(cmd)
	case command.KindLogRendererInfo:
		d.broadcast(cmd)
	default:
		d.mu.RLock()
		b, ok := d.bundles[cmd.Display]
		d.mu.RUnlock()
		if !ok {
			// The public command-API layer validates the display handle
			// synchronously before a command is ever pushed (spec §7
			// kind 2: unknown entity). Reaching here means the display
			// was destroyed in the race window between that validation
			// and this command's turn to dispatch; drop it rather than
			// misreport it as some other command's failure event.
			d.log.Error("dispatch: dropping %v for destroyed display %s", cmd.Kind, cmd.Display)
			return
		}
		b.Enqueue(cmd)
	}
}

func (d *Dispatcher) broadcast(cmd command.Command) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, b := range d.bundles {
		b.Enqueue(cmd)
	}
}

func (d *Dispatcher) handleCreateDisplay(cmd command.Command) {
	bundleCfg := Config{
		Width:       cmd.DisplayWidth,
		Height:      cmd.DisplayHeight,
		Title:       cmd.DisplayTitle,
		MSAASamples: cmd.DisplayMSAASamples,
		Renderer:    d.cfg,
		ShaderCache: d.shaderCache,
		Watchdog:    d.watchdog,
	}

	b, err := newBundle(cmd.Display, bundleCfg)
	if err != nil {
		d.log.Error("dispatch: create display %s failed: %v", cmd.Display, err)
		d.pending.Push(event.Event{Kind: event.KindDisplayCreateFailed, Display: cmd.Display, Success: false, Message: err.Error()})
		return
	}

	d.mu.Lock()
	d.bundles[cmd.Display] = b
	d.mu.Unlock()

	b.events.Push(event.Event{Kind: event.KindDisplayCreated, Display: cmd.Display, Success: true})
}

func (d *Dispatcher) handleDestroyDisplay(cmd command.Command) {
	d.mu.Lock()
	b, ok := d.bundles[cmd.Display]
	if ok {
		delete(d.bundles, cmd.Display)
	}
	d.mu.Unlock()

	if !ok {
		d.pending.Push(event.Event{Kind: event.KindDisplayDestroyFailed, Display: cmd.Display, Success: false, Message: "unknown display"})
		return
	}

	b.loop.DestroyRenderer()
	for _, e := range b.events.Drain() {
		d.pending.Push(e)
	}
	d.pending.Push(event.Event{Kind: event.KindDisplayDestroyed, Display: cmd.Display, Success: true})
}

// DoOneLoop drives every display bundle by one iteration. In
// single-threaded mode (threaded=false) it dispatches pending commands
// and then runs each bundle's doOneLoop sequentially on the calling
// thread; in threaded mode it dispatches commands and ensures each
// bundle's own Loop Controller goroutine is running, returning
// immediately. Grounded on spec §4.8.
func (d *Dispatcher) DoOneLoop(threaded bool) {
	d.Dispatch()

	d.mu.RLock()
	bundles := make([]*DisplayBundle, 0, len(d.bundles))
	for _, b := range d.bundles {
		bundles = append(bundles, b)
	}
	d.mu.RUnlock()

	for _, b := range bundles {
		if threaded {
			if b.loop.State() != looper.StateRunning {
				b.loop.StartRendering()
			}
			continue
		}
		b.doOneLoop()
	}
}

// DrainEvents aggregates every bundle's pending events plus the
// dispatcher-level staging buffer (destroy confirmations and
// bundle-less create failures) under Dispatcher's single mutex, per
// spec §4.8's "Aggregates events from all bundles under a single
// mutex before exposing them to the user." Cross-display ordering is
// intentionally left unspecified (spec §9 Open Questions); within one
// display, order is preserved.
func (d *Dispatcher) DrainEvents() []event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := d.pending.Drain()
	for _, b := range d.bundles {
		out = append(out, b.events.Drain()...)
	}
	return out
}

// Bundle returns the display bundle for handle, for callers (the
// public renderer package) that need to validate a handle or reach a
// bundle's Registry/Updater directly for synchronous queries.
func (d *Dispatcher) Bundle(handle ids.DisplayHandle) (*DisplayBundle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.bundles[handle]
	return b, ok
}

// Handles returns every display handle that currently owns a bundle,
// for a caller (the public renderer package's DestroyRenderer) that
// needs to tear every display down without otherwise tracking the set
// itself.
func (d *Dispatcher) Handles() []ids.DisplayHandle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ids.DisplayHandle, 0, len(d.bundles))
	for h := range d.bundles {
		out = append(out, h)
	}
	return out
}

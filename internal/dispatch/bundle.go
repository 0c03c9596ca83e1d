// Package dispatch implements the Display Dispatcher (C8): it owns one
// DisplayBundle per display, each with its own backend, registry,
// uploader, updater, scene-control state machines, and command/event
// queues; routes commands by display handle; and aggregates events
// from every bundle under a single mutex before exposing them to the
// user. Grounded on original_source's RendererSceneControlLogic /
// DisplayBundle pairing (one bundle owns everything touched by its own
// thread) and on the teacher engine's renderer package for the
// create-backend-then-drive-loop sequencing
// (engine/renderer/renderer_builder.go's builder-then-render flow,
// generalized from one process-wide renderer to N independently
// threaded display bundles).
package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ramses-go/renderer/internal/backend"
	"github.com/ramses-go/renderer/internal/command"
	"github.com/ramses-go/renderer/internal/config"
	"github.com/ramses-go/renderer/internal/event"
	"github.com/ramses-go/renderer/internal/frametime"
	"github.com/ramses-go/renderer/internal/ids"
	"github.com/ramses-go/renderer/internal/looper"
	"github.com/ramses-go/renderer/internal/resource"
	"github.com/ramses-go/renderer/internal/rlog"
	"github.com/ramses-go/renderer/internal/scenecontrol"
	"github.com/ramses-go/renderer/internal/sceneupdate"
	"github.com/ramses-go/renderer/internal/shadercache"
	"github.com/ramses-go/renderer/internal/upload"
	"github.com/ramses-go/renderer/internal/window"
)

// mappedScene is one scene currently mapped onto this bundle's
// display, kept sorted by RenderOrder for RenderDisplay's pass-order
// walk (spec §4.6's "render-order assignment").
type mappedScene struct {
	id    ids.SceneId
	order int32
}

// DisplayBundle is the per-display aggregate from spec §3: render
// backend (C1), scene set, event collector, command queue slice, and
// (via its Controller) an optional dedicated render thread. Its GPU
// context is touched only by the bundle's own thread, per spec §5.
type DisplayBundle struct {
	log *rlog.Logger

	handle ids.DisplayHandle
	win    *window.Window
	be     backend.Backend

	queue  *command.Queue
	events *event.Collector

	registry  *resource.Registry
	updater   *sceneupdate.Updater
	uploader  *upload.AsyncUploader
	uploadMgr *upload.Manager
	timer     *frametime.Timer

	control  map[ids.SceneId]*scenecontrol.Scene
	refs     *scenecontrol.ReferenceTracker
	bufferOf map[ids.SceneId]ids.DisplayBufferHandle

	mu     sync.Mutex
	mapped []mappedScene

	loop *looper.Controller

	cfg *config.RendererConfig

	// obSizes records each live offscreen buffer's (width, height);
	// populated on HandleBufferCreateRequest success, cleared on
	// destroy. Neither LogRendererInfo nor RenderDisplay reads it.
	obSizes map[ids.DisplayBufferHandle][2]int
}

// Config bundles the dependencies newBundle needs beyond the display's
// own size/title, kept together so Dispatcher.handleCreateDisplay reads as a
// single call instead of a long positional argument list.
type Config struct {
	Width, Height int
	Title         string
	MSAASamples   uint32

	Renderer     *config.RendererConfig
	ShaderCache  *shadercache.FileCache
	Watchdog     func()
	SharedDevice upload.SharedContextFactory
}

func newBundle(handle ids.DisplayHandle, cfg Config) (*DisplayBundle, error) {
	events := event.NewCollector()
	win := window.New(cfg.Width, cfg.Height, cfg.Title, events)

	be, err := backend.NewWGPUBackend(win.SurfaceDescriptor(), false, cfg.MSAASamples)
	if err != nil {
		win.Close()
		return nil, fmt.Errorf("dispatch: create backend for display %s: %w", handle, err)
	}
	if err := be.ConfigureSurface(cfg.Width, cfg.Height); err != nil {
		win.Close()
		return nil, fmt.Errorf("dispatch: configure surface for display %s: %w", handle, err)
	}

	registry := resource.New()
	timer := frametime.New(cfg.Renderer.FrameTimerLimits)

	sharedFactory := cfg.SharedDevice
	if sharedFactory == nil {
		sharedFactory = func() (backend.Backend, error) {
			return backend.NewWGPUBackend(win.SurfaceDescriptor(), false, cfg.MSAASamples)
		}
	}
	asyncUploader := upload.NewAsyncUploader(sharedFactory)

	var shaderCache upload.ShaderCache
	if cfg.ShaderCache != nil {
		shaderCache = cfg.ShaderCache
	}
	uploadMgr := upload.NewManager(registry, be.Device(), asyncUploader, shaderCache, timer, cfg.Renderer.KeepEffects, cfg.Renderer.GPUCacheSizeBytes)

	updater := sceneupdate.New(registry, be, events)
	updater.SetLimitFlushesForceApply(cfg.Renderer.PendingFlushLimits.ForceApply)
	updater.SetLimitFlushesForceUnsubscribe(cfg.Renderer.PendingFlushLimits.ForceUnsubscribe)

	b := &DisplayBundle{
		log:      rlog.New(fmt.Sprintf("DISPLAY%d", handle)),
		handle:   handle,
		win:      win,
		be:       be,
		queue:    command.NewQueue(),
		events:   events,
		registry: registry,
		updater:  updater,
		uploader: asyncUploader,
		uploadMgr: uploadMgr,
		timer:    timer,
		control:  make(map[ids.SceneId]*scenecontrol.Scene),
		refs:     scenecontrol.NewReferenceTracker(),
		bufferOf: make(map[ids.SceneId]ids.DisplayBufferHandle),
		cfg:      cfg.Renderer,
		obSizes:  make(map[ids.DisplayBufferHandle][2]int),
	}

	// Shared-context handshake (spec §4.3/§9): the async uploader's
	// context must be created on its own thread only after the render
	// thread's own context has been explicitly disabled.
	if err := be.Surface().Disable(); err != nil {
		win.Close()
		return nil, fmt.Errorf("dispatch: disable primary context for display %s: %w", handle, err)
	}
	if err := asyncUploader.Start(); err != nil {
		win.Close()
		return nil, fmt.Errorf("dispatch: start async uploader for display %s: %w", handle, err)
	}
	if err := be.Surface().Enable(); err != nil {
		win.Close()
		return nil, fmt.Errorf("dispatch: re-enable primary context for display %s: %w", handle, err)
	}

	b.loop = looper.New(b.doOneLoop, b.releaseBackend, cfg.Watchdog, events, cfg.Renderer.MaximumFramerate, 120)

	return b, nil
}

// Enqueue appends cmd to this bundle's command queue.
func (b *DisplayBundle) Enqueue(cmd command.Command) { b.queue.Enqueue(cmd) }

// mapScene inserts or repositions scene in the render-order list.
func (b *DisplayBundle) mapScene(id ids.SceneId, order int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.mapped {
		if m.id == id {
			b.mapped[i].order = order
			b.sortMappedLocked()
			return
		}
	}
	b.mapped = append(b.mapped, mappedScene{id: id, order: order})
	b.sortMappedLocked()
}

// unmapScene removes scene from the render-order list.
func (b *DisplayBundle) unmapScene(id ids.SceneId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.mapped {
		if m.id == id {
			b.mapped = append(b.mapped[:i], b.mapped[i+1:]...)
			return
		}
	}
}

func (b *DisplayBundle) sortMappedLocked() {
	sort.SliceStable(b.mapped, func(i, j int) bool { return b.mapped[i].order < b.mapped[j].order })
}

func (b *DisplayBundle) mappedSceneIDs() []ids.SceneId {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ids.SceneId, len(b.mapped))
	for i, m := range b.mapped {
		out[i] = m.id
	}
	return out
}

// doOneLoop advances this bundle by one frame: drain and execute
// queued commands, poll native window events, run C4's upload/evict
// pass, then render every mapped scene in order. Matches spec §4.9
// step 2's "Calls bundle doOneLoop(mode, sleepTime)" contract, with
// mode threaded in via the cfg captured at construction (spec §6's
// LoopMode: UpdateOnly skips the render/swap step for headless
// displays driven externally).
func (b *DisplayBundle) doOneLoop() {
	for _, cmd := range b.queue.Drain() {
		b.execute(cmd)
	}

	if !b.win.PollEvents() {
		b.loop.StopRendering()
		return
	}

	b.timer.StartFrame()
	b.uploadMgr.UploadAndUnloadPendingResources()

	if b.cfg.LoopMode == config.LoopUpdateOnly {
		return
	}

	if _, err := b.updater.RenderDisplay(b.mappedSceneIDs()); err != nil {
		b.log.Error("dispatch: render display %s: %v", b.handle, err)
	}
}

// releaseBackend tears down this bundle's GPU context on the loop
// goroutine itself, per C9's DestroyRenderer contract (spec §4.9):
// context teardown must happen on the thread that owns it.
func (b *DisplayBundle) releaseBackend() {
	b.uploader.Stop()
	b.uploadMgr.Teardown()
	b.win.Close()
}

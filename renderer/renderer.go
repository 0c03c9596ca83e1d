// Package renderer is the renderer core's public entry point: the
// Command API and Event API from spec §6, sitting in front of
// internal/dispatch's Display Dispatcher (C8). It owns the per-renderer
// monotonic id counters (spec §6), validates arguments synchronously
// (spec §7 kinds 1-3) before a command ever reaches the shared command
// buffer, and drives either a single-threaded doOneLoop or per-display
// render threads via C9's Loop Controller. Grounded on the teacher
// engine's renderer_builder.go (a builder that validates options, then
// owns the object lifecycle it constructs), generalized from one
// process-wide renderer to a renderer-core facade over N display
// bundles.
package renderer

import (
	"fmt"
	"sync"

	"github.com/ramses-go/renderer/internal/command"
	"github.com/ramses-go/renderer/internal/config"
	"github.com/ramses-go/renderer/internal/dispatch"
	"github.com/ramses-go/renderer/internal/ids"
	"github.com/ramses-go/renderer/internal/rerrors"
	"github.com/ramses-go/renderer/internal/rlog"
	"github.com/ramses-go/renderer/internal/shadercache"
)

// MaxOffscreenBufferDimension is the inclusive upper bound on an
// offscreen buffer's width/height (spec §8's boundary behaviour: "OB
// dimensions of 0, 1, 4096, 4097: reject 0 and >4096").
const MaxOffscreenBufferDimension = 4096

// Renderer is the renderer core's top-level handle: one process-wide
// Command/Event API in front of every display the process owns.
type Renderer struct {
	log *rlog.Logger

	dispatcher *dispatch.Dispatcher

	displayBufferGen ids.Generator
	sceneGen         ids.Generator

	mu                  sync.Mutex
	loopStartedDirectly bool
}

// New creates a Renderer from cfg (use config.Default() or
// config.LoadFile to obtain one). shaderCache and watchdog may be nil.
func New(cfg *config.RendererConfig, shaderCache *shadercache.FileCache, watchdog func()) *Renderer {
	return &Renderer{
		log:        rlog.New("RENDERER"),
		dispatcher: dispatch.New(cfg, shaderCache, watchdog),
	}
}

// AllocateSceneHandle returns the next scene id from the per-renderer
// counter (spec §6), for a caller that needs to mint one before
// issuing ReceiveScene (scene authoring itself is out of scope, spec
// §1, but something in this process still has to hand out the id the
// renderer core will track).
func (r *Renderer) AllocateSceneHandle() ids.SceneId {
	return ids.SceneId(r.sceneGen.Next())
}

// ---- Display lifecycle ----

// CreateDisplay allocates a display handle and enqueues its creation.
// The handle is valid immediately (spec §6); the corresponding
// DisplayCreated/DisplayCreateFailed event arrives asynchronously once
// a render loop iteration processes the command (spec §8 scenario 1).
func (r *Renderer) CreateDisplay(width, height int, title string, msaaSamples uint32) (ids.DisplayHandle, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("renderer: create display: %dx%d: %w", width, height, rerrors.ErrInvalidArgument)
	}

	handle := r.dispatcher.AllocateDisplayHandle()
	r.log.Debug("renderer: queued create display %s (%dx%d %q)", handle, width, height, title)
	r.dispatcher.Push(command.Command{
		Kind:               command.KindCreateDisplay,
		Display:            handle,
		DisplayWidth:       width,
		DisplayHeight:      height,
		DisplayTitle:       title,
		DisplayMSAASamples: msaaSamples,
	})
	return handle, nil
}

// DestroyDisplay enqueues destruction of display. Returns
// rerrors.ErrUnknownEntity synchronously if display does not exist.
func (r *Renderer) DestroyDisplay(display ids.DisplayHandle) error {
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: destroy display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(command.Command{Kind: command.KindDestroyDisplay, Display: display})
	return nil
}

// ---- Offscreen buffers ----

// CreateOffscreenBuffer allocates a display buffer handle and enqueues
// its creation on display. Rejects width/height outside [1,
// MaxOffscreenBufferDimension] and unknown displays synchronously,
// without enqueuing anything (spec §8 scenario 2).
func (r *Renderer) CreateOffscreenBuffer(display ids.DisplayHandle, width, height int, sampleCount uint32, interruptible bool) (ids.DisplayBufferHandle, error) {
	if width < 1 || width > MaxOffscreenBufferDimension || height < 1 || height > MaxOffscreenBufferDimension {
		return 0, fmt.Errorf("renderer: create offscreen buffer %dx%d: %w", width, height, rerrors.ErrInvalidArgument)
	}
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return 0, fmt.Errorf("renderer: create offscreen buffer on display %s: %w", display, rerrors.ErrUnknownEntity)
	}

	handle := ids.DisplayBufferHandle(r.displayBufferGen.Next())
	r.dispatcher.Push(command.Command{
		Kind:          command.KindCreateOffscreenBuffer,
		Display:       display,
		DisplayBuffer: handle,
		BufferWidth:   width,
		BufferHeight:  height,
		SampleCount:   sampleCount,
		Interruptible: interruptible,
	})
	return handle, nil
}

// DestroyOffscreenBuffer enqueues destruction of buffer on display.
func (r *Renderer) DestroyOffscreenBuffer(display ids.DisplayHandle, buffer ids.DisplayBufferHandle) error {
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: destroy offscreen buffer on display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(command.Command{Kind: command.KindDestroyOffscreenBuffer, Display: display, DisplayBuffer: buffer})
	return nil
}

// SetClearColor enqueues a clear-color change for display/buffer.
// buffer of 0 addresses the display's default framebuffer.
func (r *Renderer) SetClearColor(display ids.DisplayHandle, buffer ids.DisplayBufferHandle, red, green, blue, alpha float32) error {
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: set clear color on display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(command.Command{Kind: command.KindSetClearColor, Display: display, DisplayBuffer: buffer, ClearColor: [4]float32{red, green, blue, alpha}})
	return nil
}

// ReadPixels enqueues a pixel readback from display/buffer. Rejects a
// zero-area rect and unknown displays synchronously (spec §8 scenario
// 6); the pixel data itself arrives asynchronously as a ReadPixelsDone
// event.
func (r *Renderer) ReadPixels(display ids.DisplayHandle, buffer ids.DisplayBufferHandle, x, y, w, h int, filename string, sendViaDLT, fullScreen bool) error {
	if w == 0 || h == 0 {
		return fmt.Errorf("renderer: read pixels %dx%d: %w", w, h, rerrors.ErrInvalidArgument)
	}
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: read pixels on display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(command.Command{
		Kind:          command.KindReadPixels,
		Display:       display,
		DisplayBuffer: buffer,
		PixelRect:     command.Rect{X: x, Y: y, Width: w, Height: h},
		Filename:      filename,
		SendViaDLT:    sendViaDLT,
		FullScreen:    fullScreen,
	})
	return nil
}

// ---- Data links ----

// LinkData enqueues a buffer-to-scene data-slot link on display.
func (r *Renderer) LinkData(display ids.DisplayHandle, providerBuffer ids.DisplayBufferHandle, consumerScene ids.SceneId, consumerData ids.DataSlotHandle) error {
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: link data on display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(command.Command{Kind: command.KindLinkData, Display: display, ProviderBuffer: providerBuffer, ConsumerScene: consumerScene, ConsumerData: consumerData})
	return nil
}

// UnlinkData enqueues removal of a previously established data link.
func (r *Renderer) UnlinkData(display ids.DisplayHandle, consumerData ids.DataSlotHandle) error {
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: unlink data on display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(command.Command{Kind: command.KindUnlinkData, Display: display, ConsumerData: consumerData})
	return nil
}

// ---- Scenes ----

// PublishScene enqueues ScenePublished for scene, routed via display
// (the display the scene will eventually be mapped to, per this
// module's per-display command-queue/thread-affinity model, spec §5).
func (r *Renderer) PublishScene(display ids.DisplayHandle, scene ids.SceneId) error {
	return r.pushSceneCmd(display, command.Command{Kind: command.KindScenePublished, Display: display, Scene: scene})
}

// UnpublishScene enqueues SceneUnpublished for scene.
func (r *Renderer) UnpublishScene(display ids.DisplayHandle, scene ids.SceneId) error {
	return r.pushSceneCmd(display, command.Command{Kind: command.KindSceneUnpublished, Display: display, Scene: scene})
}

// ReceiveScene enqueues ReceiveScene for scene, marking its initial
// subscription as satisfied.
func (r *Renderer) ReceiveScene(display ids.DisplayHandle, scene ids.SceneId) error {
	return r.pushSceneCmd(display, command.Command{Kind: command.KindReceiveScene, Display: display, Scene: scene})
}

// UpdateScene enqueues a serialized scene delta for scene.
func (r *Renderer) UpdateScene(display ids.DisplayHandle, scene ids.SceneId, delta []byte) error {
	return r.pushSceneCmd(display, command.Command{Kind: command.KindUpdateScene, Display: display, Scene: scene, SceneBytes: delta})
}

// SceneState mirrors command.SceneState for callers that don't want to
// import the command package directly.
type SceneState = command.SceneState

const (
	SceneStateUnavailable = command.SceneStateUnavailable
	SceneStateAvailable   = command.SceneStateAvailable
	SceneStateReady       = command.SceneStateReady
	SceneStateRendered    = command.SceneStateRendered
)

// SetSceneState enqueues a target control-state change for scene.
func (r *Renderer) SetSceneState(display ids.DisplayHandle, scene ids.SceneId, target SceneState) error {
	return r.pushSceneCmd(display, command.Command{Kind: command.KindSetSceneState, Display: display, Scene: scene, TargetState: target})
}

// SetSceneMapping enqueues a target display/render-order assignment
// for scene.
func (r *Renderer) SetSceneMapping(display ids.DisplayHandle, scene ids.SceneId, targetDisplay ids.DisplayHandle, renderOrder int32) error {
	return r.pushSceneCmd(display, command.Command{Kind: command.KindSetSceneMapping, Display: display, Scene: scene, TargetDisplay: targetDisplay, RenderOrder: renderOrder})
}

// SetSceneDisplayBufferAssignment enqueues a target offscreen-buffer
// assignment for scene's render output.
func (r *Renderer) SetSceneDisplayBufferAssignment(display ids.DisplayHandle, scene ids.SceneId, targetBuffer ids.DisplayBufferHandle) error {
	return r.pushSceneCmd(display, command.Command{Kind: command.KindSetSceneDisplayBufferAssignment, Display: display, Scene: scene, TargetDisplayBuffer: targetBuffer})
}

// SetSceneReferenceMaster records that referencingScene should resolve
// its data links through masterScene instead of itself (e.g. a scene
// that references another scene's render target). Passing the zero
// SceneId as masterScene clears any previously recorded relationship.
func (r *Renderer) SetSceneReferenceMaster(display ids.DisplayHandle, referencingScene, masterScene ids.SceneId) error {
	return r.pushSceneCmd(display, command.Command{Kind: command.KindSetSceneReferenceMaster, Display: display, Scene: referencingScene, MasterScene: masterScene})
}

// PickEvent enqueues a pick query against scene's last known camera
// matrix at the given normalized device coordinates.
func (r *Renderer) PickEvent(display ids.DisplayHandle, scene ids.SceneId, ndcX, ndcY float32) error {
	return r.pushSceneCmd(display, command.Command{Kind: command.KindPickEvent, Display: display, Scene: scene, NormalizedX: ndcX, NormalizedY: ndcY})
}

func (r *Renderer) pushSceneCmd(display ids.DisplayHandle, cmd command.Command) error {
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: scene command on display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(cmd)
	return nil
}

// ---- Limits & diagnostics ----

// SetLimitFlushesForceApply enqueues a new forceApply deferred-flush
// threshold for display (spec §4.5).
func (r *Renderer) SetLimitFlushesForceApply(display ids.DisplayHandle, n uint32) error {
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: set limit flushes force apply on display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(command.Command{Kind: command.KindSetLimitsFlushesForceApply, Display: display, FlushLimit: n})
	return nil
}

// SetLimitFlushesForceUnsubscribe enqueues a new forceUnsubscribe
// deferred-flush threshold for display.
func (r *Renderer) SetLimitFlushesForceUnsubscribe(display ids.DisplayHandle, n uint32) error {
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: set limit flushes force unsubscribe on display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(command.Command{Kind: command.KindSetLimitsFlushesForceUnsubscribe, Display: display, FlushLimit: n})
	return nil
}

// SetIviSurfaceVisibility enqueues a system-compositor (IVI) surface
// visibility request for display.
func (r *Renderer) SetIviSurfaceVisibility(display ids.DisplayHandle, visible bool) error {
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: set ivi surface visibility on display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(command.Command{Kind: command.KindSCSetIviSurfaceVisibility, Display: display, Visible: visible})
	return nil
}

// LogRendererInfo enqueues a diagnostic dump, broadcast to every
// display bundle (spec §4.8: "Commands that name no display ...
// broadcast").
func (r *Renderer) LogRendererInfo(topic string, verbose bool, nodeFilter string) {
	r.dispatcher.Push(command.Command{Kind: command.KindLogRendererInfo, LogTopic: topic, LogVerbose: verbose, NodeFilter: nodeFilter})
}

// ConfirmationEcho enqueues a confirmation-echo barrier on display,
// surfaced back to the caller as a ConfirmationEchoed event once the
// display's queue has drained up to this point.
func (r *Renderer) ConfirmationEcho(display ids.DisplayHandle, name string) error {
	if _, ok := r.dispatcher.Bundle(display); !ok {
		return fmt.Errorf("renderer: confirmation echo on display %s: %w", display, rerrors.ErrUnknownEntity)
	}
	r.dispatcher.Push(command.Command{Kind: command.KindConfirmationEcho, Display: display, EchoName: name})
	return nil
}

// ---- Loop lifecycle ----

// DoOneLoop drives every display bundle through one iteration on the
// calling thread (single-threaded mode). Precludes a later StartThread
// call (spec §7 kind 3: "precondition violation ... startThread after
// doOneLoop was called").
func (r *Renderer) DoOneLoop() {
	r.mu.Lock()
	r.loopStartedDirectly = true
	r.mu.Unlock()
	r.dispatcher.DoOneLoop(false)
}

// StartThread switches every display bundle to its own Loop
// Controller goroutine (threaded mode). Returns rerrors.ErrPrecondition
// if DoOneLoop was already called directly on this Renderer.
func (r *Renderer) StartThread() error {
	r.mu.Lock()
	if r.loopStartedDirectly {
		r.mu.Unlock()
		return fmt.Errorf("renderer: start thread: %w", rerrors.ErrPrecondition)
	}
	r.mu.Unlock()

	r.log.Info("renderer: starting per-display render threads")
	r.dispatcher.DoOneLoop(true)
	return nil
}

// DestroyRenderer tears down every display bundle, stopping its loop
// and releasing its GPU context on the bundle's own thread (spec
// §4.9's DestroyRenderer contract), dispatching the queued destroy
// commands immediately. The resulting destroy events stay queued
// until the next DispatchEvents call.
func (r *Renderer) DestroyRenderer() {
	handles := r.dispatcher.Handles()
	r.log.Info("renderer: destroying %d display(s)", len(handles))
	for _, h := range handles {
		_ = r.DestroyDisplay(h)
	}
	r.dispatcher.Dispatch()
}

// DispatchEvents drains every pending event across all display
// bundles and invokes the matching EventHandler method synchronously
// on the caller's thread (spec §6's Event API).
func (r *Renderer) DispatchEvents(h EventHandler) {
	for _, e := range r.dispatcher.DrainEvents() {
		dispatchOne(h, e)
	}
}

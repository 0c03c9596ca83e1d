// Package sceneupdate implements the Scene Renderer & Updater (C5):
// the operation set spec §4.5 exposes to the Command Executor (C7),
// plus the rendering walk that resolves pass order per display and
// skips any scene whose resources aren't fully Uploaded. Grounded on
// the teacher's scene.Scene.DrawCalls/PrepareCompute pair (walk the
// animator pool, skip anything not upload-ready) and on
// original_source's pending-flush deferral policy (forceApply /
// forceUnsubscribe counters), which has no direct teacher analogue and
// is built from the spec text alone.
package sceneupdate

import (
	"fmt"
	"io"

	"github.com/ramses-go/renderer/internal/backend"
	"github.com/ramses-go/renderer/internal/event"
	"github.com/ramses-go/renderer/internal/geom"
	"github.com/ramses-go/renderer/internal/ids"
	"github.com/ramses-go/renderer/internal/readback"
	"github.com/ramses-go/renderer/internal/resource"
	"github.com/ramses-go/renderer/internal/rlog"
	"github.com/ramses-go/renderer/internal/scenefile"

	"github.com/go-gl/mathgl/mgl32"
)

// sceneEntry is the per-scene bookkeeping the Updater keeps: which
// resources it references (so they can be unregistered on unpublish),
// any deltas waiting on resources that aren't Uploaded yet, and the
// deferred-flush counters from spec §4.5's pending-flush policy.
type sceneEntry struct {
	resources map[ids.ResourceContentHash]struct{}

	pendingFlushes   [][]byte
	deferredCount    uint32
	unsubscribed     bool
	viewProjection   mgl32.Mat4
	haveViewProj     bool
}

func newSceneEntry() *sceneEntry {
	return &sceneEntry{resources: make(map[ids.ResourceContentHash]struct{})}
}

// bufferEntry tracks one offscreen buffer's device handle and size.
// No clear color is recorded per buffer: WGPUBackend batches one clear
// color per Surface (see internal/backend), and only the default
// framebuffer's color is forwarded to the device.
type bufferEntry struct {
	handle backend.Handle
	width  int
	height int
}

// dataLink records a provider-buffer-to-scene-data-slot link from
// handleBufferToSceneDataLinkRequest.
type dataLink struct {
	provider ids.DisplayBufferHandle
	scene    ids.SceneId
	data     ids.DataSlotHandle
}

// Updater implements the C5 operation set against one display bundle's
// Registry and Backend. Not safe for concurrent use; owned by the
// bundle thread that also drives C6/C7 for this display, per spec §5.
type Updater struct {
	log      *rlog.Logger
	registry *resource.Registry
	be       backend.Backend
	events   *event.Collector

	scenes  map[ids.SceneId]*sceneEntry
	buffers map[ids.DisplayBufferHandle]*bufferEntry
	links   map[ids.DataSlotHandle]dataLink

	forceApplyLimit       uint32
	forceUnsubscribeLimit uint32
}

// New creates an Updater bound to registry, be, and events. The
// forceApply and forceUnsubscribe pending-flush limits (spec §4.5)
// both start at 0, which disables them, until
// SetLimitFlushesForceApply/Unsubscribe is called.
func New(registry *resource.Registry, be backend.Backend, events *event.Collector) *Updater {
	return &Updater{
		log:      rlog.New("RENDERER"),
		registry: registry,
		be:       be,
		events:   events,
		scenes:   make(map[ids.SceneId]*sceneEntry),
		buffers:  make(map[ids.DisplayBufferHandle]*bufferEntry),
		links:    make(map[ids.DataSlotHandle]dataLink),
	}
}

// HandleScenePublished records that a client published id (becoming
// visible to subscription) and reports it to the user.
func (u *Updater) HandleScenePublished(id ids.SceneId, mode int) {
	if _, exists := u.scenes[id]; !exists {
		u.scenes[id] = newSceneEntry()
	}
	u.events.Push(event.Event{Kind: event.KindScenePublished, Scene: id, Success: true})
}

// HandleSceneUnpublished tears down a published scene's bookkeeping,
// releasing its resource references back to the registry.
func (u *Updater) HandleSceneUnpublished(id ids.SceneId) {
	se, ok := u.scenes[id]
	if !ok {
		return
	}
	for h := range se.resources {
		u.registry.Unregister(h, id)
	}
	delete(u.scenes, id)
}

// HandleSceneReceived allocates storage for a scene whose initial
// publish has just been subscribed to.
func (u *Updater) HandleSceneReceived(id ids.SceneId) {
	if _, exists := u.scenes[id]; !exists {
		u.scenes[id] = newSceneEntry()
	}
}

// HandleSceneUpdate applies a serialized delta to scene id. The delta
// is a persisted scene-file container (internal/scenefile): each TOC
// entry's Info tag is the resource.Type of its payload. Every resource
// named in the delta is registered against id and its bytes handed to
// the registry as a Provided payload for the Resource Uploading
// Manager (C4) to pick up next pass.
//
// If any referenced resource is not yet Uploaded the delta is deferred
// (spec §4.5's pending-flush policy): once the deferred queue exceeds
// forceApply it is applied anyway; once it exceeds forceUnsubscribe
// the scene is dropped from rendering and a SceneFlushFailed event is
// reported.
func (u *Updater) HandleSceneUpdate(id ids.SceneId, delta []byte) error {
	se, ok := u.scenes[id]
	if !ok {
		return fmt.Errorf("sceneupdate: scene %s not received", id)
	}
	if se.unsubscribed {
		return fmt.Errorf("sceneupdate: scene %s was dropped via forceUnsubscribe", id)
	}

	f, err := scenefile.Open(byteSeeker(delta))
	if err != nil {
		return fmt.Errorf("sceneupdate: parse delta for scene %s: %w", id, err)
	}

	ready := true
	for _, e := range f.Entries() {
		r, _, _ := f.GetEntry(e.Hash)
		payload := make([]byte, e.Size)
		if _, err := io.ReadFull(r, payload); err != nil && e.Size > 0 {
			return fmt.Errorf("sceneupdate: read payload for %s: %w", e.Hash, err)
		}

		u.registry.Register(e.Hash, resource.Type(e.Info), id)
		u.registry.SetProvidedPayload(e.Hash, payload)
		se.resources[e.Hash] = struct{}{}

		if d, ok := u.registry.Get(e.Hash); !ok || d.Status != resource.StatusUploaded {
			ready = false
		}
	}

	if ready {
		se.deferredCount = 0
		return nil
	}

	se.pendingFlushes = append(se.pendingFlushes, delta)
	se.deferredCount++

	if u.forceUnsubscribeLimit > 0 && se.deferredCount > u.forceUnsubscribeLimit {
		se.unsubscribed = true
		se.pendingFlushes = nil
		u.events.Push(event.Event{Kind: event.KindSceneFlushFailed, Scene: id, Success: false, Message: "forceUnsubscribe limit exceeded"})
		return nil
	}

	if u.forceApplyLimit > 0 && se.deferredCount > u.forceApplyLimit {
		u.log.Info("sceneupdate: scene %s applying delta eagerly past forceApply limit", id)
		se.deferredCount = 0
		se.pendingFlushes = nil
	}

	return nil
}

// HandleBufferCreateRequest creates an offscreen buffer of the given
// size and sample count on the display's device, reporting success or
// failure as an event.
func (u *Updater) HandleBufferCreateRequest(obHandle ids.DisplayBufferHandle, display ids.DisplayHandle, width, height int, sampleCount uint32, interruptible bool) bool {
	h := u.be.Device().CreateOffscreenBuffer(width, height, sampleCount)
	if !h.Valid() {
		u.events.Push(event.Event{Kind: event.KindOffscreenBufferCreateFailed, Display: display, DisplayBuffer: obHandle, Success: false})
		return false
	}
	u.buffers[obHandle] = &bufferEntry{handle: h, width: width, height: height}
	u.events.Push(event.Event{Kind: event.KindOffscreenBufferCreated, Display: display, DisplayBuffer: obHandle, Success: true})
	return true
}

// HandleBufferDestroyRequest releases an offscreen buffer previously
// created by HandleBufferCreateRequest.
func (u *Updater) HandleBufferDestroyRequest(obHandle ids.DisplayBufferHandle, display ids.DisplayHandle) bool {
	be, ok := u.buffers[obHandle]
	if !ok {
		u.events.Push(event.Event{Kind: event.KindOffscreenBufferDestroyFailed, Display: display, DisplayBuffer: obHandle, Success: false})
		return false
	}
	u.be.Device().DestroyOffscreenBuffer(be.handle)
	delete(u.buffers, obHandle)
	u.events.Push(event.Event{Kind: event.KindOffscreenBufferDestroyed, Display: display, DisplayBuffer: obHandle, Success: true})
	return true
}

// HandleSetClearColor sets the clear color used at the start of each
// frame for the display's default framebuffer, addressed by
// DisplayBufferHandle(0). A request naming any other buffer is ignored.
func (u *Updater) HandleSetClearColor(display ids.DisplayHandle, buffer ids.DisplayBufferHandle, rgba [4]float32) {
	if buffer.Invalid() {
		u.be.Surface().SetClearColor(float64(rgba[0]), float64(rgba[1]), float64(rgba[2]), float64(rgba[3]))
	}
	// Offscreen-buffer-specific clear colors aren't tracked separately
	// since the backend only batches one clear color per frame; the
	// default framebuffer color above is the one that actually applies.
}

// HandleBufferToSceneDataLinkRequest links providerBuffer's pixel
// stream into consumerScene's consumerData slot.
func (u *Updater) HandleBufferToSceneDataLinkRequest(providerBuffer ids.DisplayBufferHandle, consumerScene ids.SceneId, consumerData ids.DataSlotHandle) bool {
	if _, ok := u.buffers[providerBuffer]; !ok {
		return false
	}
	u.links[consumerData] = dataLink{provider: providerBuffer, scene: consumerScene, data: consumerData}
	return true
}

// HandleUnlinkData removes a previously established data link.
func (u *Updater) HandleUnlinkData(consumerData ids.DataSlotHandle) {
	delete(u.links, consumerData)
}

// SetSceneViewProjection records the combined view-projection matrix
// HandlePickEvent unprojects pick coordinates against. Not part of
// spec §4.5's named operation list directly, but required plumbing for
// handlePickEvent — the camera/projection pipeline that would normally
// supply this matrix is out of scope (scene-graph authoring, spec §1
// Non-goals), so callers set it directly from whatever camera state
// the client's scene delta carried.
func (u *Updater) SetSceneViewProjection(id ids.SceneId, vp mgl32.Mat4) {
	se, ok := u.scenes[id]
	if !ok {
		return
	}
	se.viewProjection, se.haveViewProj = vp, true
}

// HandlePickEvent unprojects normalized device coordinates against
// scene's last known view-projection matrix into a world-space ray.
func (u *Updater) HandlePickEvent(scene ids.SceneId, ndcX, ndcY float32) (geom.Ray, error) {
	se, ok := u.scenes[scene]
	if !ok {
		return geom.Ray{}, fmt.Errorf("sceneupdate: unknown scene %s", scene)
	}
	if !se.haveViewProj {
		return geom.Ray{}, fmt.Errorf("sceneupdate: scene %s has no camera matrix yet", scene)
	}
	return geom.UnprojectPickRay(ndcX, ndcY, se.viewProjection)
}

// HandleReadPixels reads back a rectangle of pixels from the given
// display buffer (DisplayBufferHandle(0) for the default framebuffer)
// and reports the PNG-encoded result as a ReadPixelsDone event, or
// ReadPixelsFailed on error. Writing to a file or forwarding over DLT
// is an external collaborator concern (spec §1 Non-goals): filename is
// only carried in the event's Message field, and sendViaDLT and
// fullScreen are not used.
func (u *Updater) HandleReadPixels(display ids.DisplayHandle, buffer ids.DisplayBufferHandle, rect backend.Rect, filename string, sendViaDLT, fullScreen bool) {
	target := backend.Handle(0)
	if be, ok := u.buffers[buffer]; ok {
		target = be.handle
	}

	pixels, err := u.be.Device().ReadPixels(target, rect)
	if err != nil {
		u.events.Push(event.Event{Kind: event.KindReadPixelsFailed, Display: display, DisplayBuffer: buffer, Success: false, Message: err.Error()})
		return
	}

	png, err := readback.EncodePNG(pixels, rect.Width, rect.Height)
	if err != nil {
		u.events.Push(event.Event{Kind: event.KindReadPixelsFailed, Display: display, DisplayBuffer: buffer, Success: false, Message: err.Error()})
		return
	}

	u.events.Push(event.Event{
		Kind: event.KindReadPixelsDone, Display: display, DisplayBuffer: buffer,
		Success: true, Message: filename,
		Pixels: png, Width: rect.Width, Height: rect.Height,
	})
}

// LogRendererInfo dumps diagnostic counts (scene/resource totals) at
// Info or Debug level depending on verbose. nodeFilter is echoed in
// the log line; no filtering is applied.
func (u *Updater) LogRendererInfo(topic string, verbose bool, nodeFilter string) {
	descriptors := u.registry.AllResourceDescriptors()
	logf := u.log.Info
	if verbose {
		logf = u.log.Debug
	}
	logf("sceneupdate: [%s] scenes=%d resources=%d filter=%q", topic, len(u.scenes), len(descriptors), nodeFilter)
}

// SetLimitFlushesForceApply sets the deferred-flush count above which
// a pending scene update is applied regardless of resource readiness.
// 0 disables the limit.
func (u *Updater) SetLimitFlushesForceApply(n uint32) { u.forceApplyLimit = n }

// SetLimitFlushesForceUnsubscribe sets the deferred-flush count above
// which a scene is dropped from rendering entirely. 0 disables the
// limit.
func (u *Updater) SetLimitFlushesForceUnsubscribe(n uint32) { u.forceUnsubscribeLimit = n }

// RenderResult reports, for one RenderDisplay call, which mapped
// scenes were actually drawn versus skipped for missing resources —
// useful both for tests and for C9's periodic statistics.
type RenderResult struct {
	Drawn   []ids.SceneId
	Skipped []ids.SceneId
}

// RenderDisplay walks mappedScenes in pass order (lowest render order
// first, as resolved by C6/C8's mapping), skipping any scene with an
// un-Uploaded resource dependency, and issues the frame's
// Begin/End/Present sequence on the display's surface. Grounded on
// scene.Scene.DrawCalls's walk-and-skip-unready shape, generalized
// from "per-animator mesh/pipeline readiness" to "per-scene resource
// readiness" since the teacher's locally-authored mesh/material
// pipeline is out of scope here (spec §1 Non-goals).
func (u *Updater) RenderDisplay(mappedScenesInOrder []ids.SceneId) (RenderResult, error) {
	var result RenderResult

	if err := u.be.Surface().BeginFrame(); err != nil {
		return result, fmt.Errorf("sceneupdate: BeginFrame: %w", err)
	}

	for _, id := range mappedScenesInOrder {
		se, ok := u.scenes[id]
		if !ok || se.unsubscribed {
			result.Skipped = append(result.Skipped, id)
			continue
		}

		allUploaded := true
		for h := range se.resources {
			d, ok := u.registry.Get(h)
			if !ok || d.Status != resource.StatusUploaded {
				allUploaded = false
				break
			}
		}

		if !allUploaded {
			result.Skipped = append(result.Skipped, id)
			continue
		}

		// Issuing the actual draw calls for a scene's content is out of
		// scope (spec §1 Non-goals: scene-graph authoring/rendering
		// pipeline); a fully wired Device would bind per-resource state
		// and draw here.
		result.Drawn = append(result.Drawn, id)
	}

	u.be.Surface().EndFrame()
	u.be.Surface().Present()

	return result, nil
}

// byteSeeker adapts a plain byte slice to io.ReadSeeker for
// scenefile.Open, which needs to seek back to the start after peeking
// at the header.
type byteSeekerT struct {
	b   []byte
	pos int64
}

func byteSeeker(b []byte) *byteSeekerT { return &byteSeekerT{b: b} }

func (s *byteSeekerT) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.pos >= int64(len(s.b)) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *byteSeekerT) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = s.pos
	case 2:
		base = int64(len(s.b))
	}
	s.pos = base + offset
	return s.pos, nil
}

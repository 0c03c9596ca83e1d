package sceneupdate

import (
	"testing"

	"github.com/ramses-go/renderer/internal/backend"
	"github.com/ramses-go/renderer/internal/event"
	"github.com/ramses-go/renderer/internal/ids"
	"github.com/ramses-go/renderer/internal/resource"
	"github.com/ramses-go/renderer/internal/scenefile"

	"github.com/go-gl/mathgl/mgl32"
)

type fakeDevice struct {
	nextHandle uint64
	readErr    error
	readPixels []byte
}

func (d *fakeDevice) alloc() backend.Handle {
	d.nextHandle++
	return backend.Handle(d.nextHandle)
}

func (d *fakeDevice) UploadTexture(resource.Type, resource.DecompressedPayload) backend.Handle {
	return d.alloc()
}
func (d *fakeDevice) UploadBuffer(backend.BufferUsage, []byte) backend.Handle { return d.alloc() }
func (d *fakeDevice) UploadShader([]byte) backend.Handle                     { return d.alloc() }
func (d *fakeDevice) UploadCompiledShader(backend.CompiledShader) backend.Handle {
	return d.alloc()
}
func (d *fakeDevice) CompileShader(source []byte) (backend.CompiledShader, error) {
	return string(source), nil
}
func (d *fakeDevice) Unload(resource.Type, backend.Handle) {}
func (d *fakeDevice) CreateOffscreenBuffer(width, height int, sampleCount uint32) backend.Handle {
	return d.alloc()
}
func (d *fakeDevice) DestroyOffscreenBuffer(backend.Handle) {}
func (d *fakeDevice) ReadPixels(target backend.Handle, rect backend.Rect) ([]byte, error) {
	if d.readErr != nil {
		return nil, d.readErr
	}
	if d.readPixels != nil {
		return d.readPixels, nil
	}
	return make([]byte, rect.Width*rect.Height*4), nil
}

type fakeSurface struct {
	clearR, clearG, clearB, clearA float64
	beginErr                       error
	frames                         int
}

func (s *fakeSurface) Enable() error    { return nil }
func (s *fakeSurface) Disable() error   { return nil }
func (s *fakeSurface) Resize(int, int)  {}
func (s *fakeSurface) SwapBuffers()     {}
func (s *fakeSurface) SetClearColor(r, g, b, a float64) {
	s.clearR, s.clearG, s.clearB, s.clearA = r, g, b, a
}
func (s *fakeSurface) BeginFrame() error {
	if s.beginErr != nil {
		return s.beginErr
	}
	s.frames++
	return nil
}
func (s *fakeSurface) EndFrame() {}
func (s *fakeSurface) Present()  {}

type fakeCompositor struct{}

func (fakeCompositor) HasUpdatedContent() bool { return false }

type fakeUploadAdapter struct{}

func (fakeUploadAdapter) UploadTextureData(backend.Handle, resource.DecompressedPayload) error {
	return nil
}

type fakeBackend struct {
	device  *fakeDevice
	surface *fakeSurface
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{device: &fakeDevice{}, surface: &fakeSurface{}}
}

func (b *fakeBackend) Device() backend.Device                             { return b.device }
func (b *fakeBackend) Surface() backend.Surface                          { return b.surface }
func (b *fakeBackend) EmbeddedCompositor() backend.EmbeddedCompositor     { return fakeCompositor{} }
func (b *fakeBackend) TextureUploadAdapter() backend.TextureUploadAdapter { return fakeUploadAdapter{} }

func hashOf(b byte) ids.ResourceContentHash {
	var h ids.ResourceContentHash
	h[0] = b
	return h
}

func deltaWith(hashes ...ids.ResourceContentHash) []byte {
	w := scenefile.NewWriter()
	for i, h := range hashes {
		w.Put(h, uint32(resource.TypeArrayBuffer), []byte{byte(i), byte(i + 1)})
	}
	data, _ := w.Bytes()
	return data
}

func TestHandleSceneUpdateRegistersResourcesAndDefersWhenNotUploaded(t *testing.T) {
	reg := resource.New()
	be := newFakeBackend()
	u := New(reg, be, event.NewCollector())

	scene := ids.SceneId(1)
	u.HandleScenePublished(scene, 0)
	u.HandleSceneReceived(scene)

	h := hashOf(1)
	if err := u.HandleSceneUpdate(scene, deltaWith(h)); err != nil {
		t.Fatalf("HandleSceneUpdate: %v", err)
	}

	if !reg.Contains(h) {
		t.Fatalf("expected resource to be registered")
	}
	d, _ := reg.Get(h)
	if d.Status != resource.StatusProvided {
		t.Fatalf("expected Provided status, got %v", d.Status)
	}

	result, err := u.RenderDisplay([]ids.SceneId{scene})
	if err != nil {
		t.Fatalf("RenderDisplay: %v", err)
	}
	if len(result.Drawn) != 0 || len(result.Skipped) != 1 {
		t.Fatalf("expected scene to be skipped before upload, got %+v", result)
	}

	reg.SetUploaded(h, resource.DeviceHandle(1), 2)
	result, err = u.RenderDisplay([]ids.SceneId{scene})
	if err != nil {
		t.Fatalf("RenderDisplay: %v", err)
	}
	if len(result.Drawn) != 1 || result.Drawn[0] != scene {
		t.Fatalf("expected scene to draw once uploaded, got %+v", result)
	}
}

func TestHandleSceneUpdateForceUnsubscribeDropsScene(t *testing.T) {
	reg := resource.New()
	be := newFakeBackend()
	u := New(reg, be, event.NewCollector())
	u.SetLimitFlushesForceUnsubscribe(2)

	scene := ids.SceneId(1)
	u.HandleScenePublished(scene, 0)
	u.HandleSceneReceived(scene)

	h := hashOf(2)
	for i := 0; i < 3; i++ {
		if err := u.HandleSceneUpdate(scene, deltaWith(h)); err != nil {
			t.Fatalf("HandleSceneUpdate iteration %d: %v", i, err)
		}
	}

	events := u.events.Drain()
	var sawFailed bool
	for _, e := range events {
		if e.Kind == event.KindSceneFlushFailed {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Fatalf("expected SceneFlushFailed event after forceUnsubscribe limit, got %+v", events)
	}

	if err := u.HandleSceneUpdate(scene, deltaWith(h)); err == nil {
		t.Fatalf("expected error applying delta to unsubscribed scene")
	}
}

func TestHandleSceneUnpublishedReleasesResourceUsage(t *testing.T) {
	reg := resource.New()
	be := newFakeBackend()
	u := New(reg, be, event.NewCollector())

	scene := ids.SceneId(1)
	u.HandleScenePublished(scene, 0)
	u.HandleSceneReceived(scene)

	h := hashOf(3)
	if err := u.HandleSceneUpdate(scene, deltaWith(h)); err != nil {
		t.Fatalf("HandleSceneUpdate: %v", err)
	}
	if d, _ := reg.Get(h); d.RefCount() != 1 {
		t.Fatalf("expected refcount 1 before unpublish")
	}

	u.HandleSceneUnpublished(scene)

	if d, _ := reg.Get(h); d.RefCount() != 0 {
		t.Fatalf("expected refcount 0 after unpublish, got %d", d.RefCount())
	}
}

func TestHandleBufferCreateAndDestroy(t *testing.T) {
	reg := resource.New()
	be := newFakeBackend()
	u := New(reg, be, event.NewCollector())

	display := ids.DisplayHandle(1)
	obHandle := ids.DisplayBufferHandle(1)

	if ok := u.HandleBufferCreateRequest(obHandle, display, 64, 64, 1, false); !ok {
		t.Fatalf("expected buffer create to succeed")
	}
	if ok := u.HandleBufferDestroyRequest(obHandle, display); !ok {
		t.Fatalf("expected buffer destroy to succeed")
	}
	if ok := u.HandleBufferDestroyRequest(obHandle, display); ok {
		t.Fatalf("expected destroying an already-destroyed buffer to fail")
	}
}

func TestHandleSetClearColorForwardsDefaultFramebuffer(t *testing.T) {
	reg := resource.New()
	be := newFakeBackend()
	u := New(reg, be, event.NewCollector())

	u.HandleSetClearColor(ids.DisplayHandle(1), 0, [4]float32{0.1, 0.2, 0.3, 1})

	if be.surface.clearR != float64(float32(0.1)) {
		t.Fatalf("expected clear color to be forwarded to the surface")
	}
}

func TestHandlePickEventRequiresCameraMatrix(t *testing.T) {
	reg := resource.New()
	be := newFakeBackend()
	u := New(reg, be, event.NewCollector())

	scene := ids.SceneId(1)
	u.HandleScenePublished(scene, 0)
	u.HandleSceneReceived(scene)

	if _, err := u.HandlePickEvent(scene, 0, 0); err == nil {
		t.Fatalf("expected error before a camera matrix is set")
	}

	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	u.SetSceneViewProjection(scene, proj.Mul4(view))

	ray, err := u.HandlePickEvent(scene, 0, 0)
	if err != nil {
		t.Fatalf("HandlePickEvent: %v", err)
	}
	if ray.Direction.Len() == 0 {
		t.Fatalf("expected non-zero ray direction")
	}
}

func TestHandleReadPixelsReportsDoneEvent(t *testing.T) {
	reg := resource.New()
	be := newFakeBackend()
	u := New(reg, be, event.NewCollector())

	u.HandleReadPixels(ids.DisplayHandle(1), 0, backend.Rect{Width: 2, Height: 2}, "out.png", false, false)

	events := u.events.Drain()
	if len(events) != 1 || events[0].Kind != event.KindReadPixelsDone {
		t.Fatalf("expected one ReadPixelsDone event, got %+v", events)
	}
	if len(events[0].Pixels) == 0 {
		t.Fatalf("expected encoded PNG bytes in event")
	}
}

func TestHandleReadPixelsReportsFailedEvent(t *testing.T) {
	reg := resource.New()
	be := newFakeBackend()
	be.device.readErr = errReadFailed
	u := New(reg, be, event.NewCollector())

	u.HandleReadPixels(ids.DisplayHandle(1), 0, backend.Rect{Width: 2, Height: 2}, "out.png", false, false)

	events := u.events.Drain()
	if len(events) != 1 || events[0].Kind != event.KindReadPixelsFailed {
		t.Fatalf("expected one ReadPixelsFailed event, got %+v", events)
	}
}

type readFailedError struct{}

func (readFailedError) Error() string { return "read failed" }

var errReadFailed = readFailedError{}

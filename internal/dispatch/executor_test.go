package dispatch

import (
	"testing"

	"github.com/ramses-go/renderer/internal/backend"
	"github.com/ramses-go/renderer/internal/command"
	"github.com/ramses-go/renderer/internal/event"
	"github.com/ramses-go/renderer/internal/ids"
	"github.com/ramses-go/renderer/internal/resource"
	"github.com/ramses-go/renderer/internal/rlog"
	"github.com/ramses-go/renderer/internal/scenecontrol"
	"github.com/ramses-go/renderer/internal/sceneupdate"
)

type fakeDevice struct{ nextHandle uint64 }

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
	return make([]byte, rect.Width*rect.Height*4), nil
}

type fakeSurface struct{ frames int }

func (s *fakeSurface) Enable() error                    { return nil }
func (s *fakeSurface) Disable() error                   { return nil }
func (s *fakeSurface) Resize(int, int)                  {}
func (s *fakeSurface) SwapBuffers()                     {}
func (s *fakeSurface) SetClearColor(r, g, b, a float64) {}
func (s *fakeSurface) BeginFrame() error                { s.frames++; return nil }
func (s *fakeSurface) EndFrame()                        {}
func (s *fakeSurface) Present()                         {}

type fakeCompositor struct{}

func (fakeCompositor) HasUpdatedContent() bool { return false }

type fakeUploadAdapter struct{}

type fakeBackend struct {
	device  *fakeDevice
	surface *fakeSurface
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{device: &fakeDevice{}, surface: &fakeSurface{}}
}

func (b *fakeBackend) Device() backend.Device                             { return b.device }
func (b *fakeBackend) Surface() backend.Surface                           { return b.surface }
func (b *fakeBackend) EmbeddedCompositor() backend.EmbeddedCompositor     { return fakeCompositor{} }
func (b *fakeBackend) TextureUploadAdapter() backend.TextureUploadAdapter { return fakeUploadAdapter{} }

// newTestBundle builds a DisplayBundle with a fake GPU backend, skipping
// newBundle's real window/WGPU construction and shared-context
// handshake (neither of which a unit test can exercise), so execute/
// reconcile can be tested against real sceneupdate/scenecontrol logic.
func newTestBundle() *DisplayBundle {
	reg := resource.New()
	be := newFakeBackend()
	events := event.NewCollector()
	return &DisplayBundle{
		log:      rlog.New("TEST"),
		handle:   ids.DisplayHandle(1),
		be:       be,
		queue:    command.NewQueue(),
		events:   events,
		registry: reg,
		updater:  sceneupdate.New(reg, be, events),
		control:  make(map[ids.SceneId]*scenecontrol.Scene),
		refs:     scenecontrol.NewReferenceTracker(),
		bufferOf: make(map[ids.SceneId]ids.DisplayBufferHandle),
		obSizes:  make(map[ids.DisplayBufferHandle][2]int),
	}
}

func TestExecuteScenePublishedEmitsEvent(t *testing.T) {
	b := newTestBundle()
	scene := ids.SceneId(5)

	b.execute(command.Command{Kind: command.KindScenePublished, Scene: scene})

	found := false
	for _, e := range b.events.Drain() {
		if e.Kind == event.KindScenePublished && e.Scene == scene {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected KindScenePublished event for scene %v", scene)
	}
	if b.controlFor(scene).CurrentState() != scenecontrol.StateAvailable {
		t.Fatalf("expected scene to reach StateAvailable after publish")
	}
}

func TestExecuteSetSceneStateDrivesToRenderedAndMaps(t *testing.T) {
	b := newTestBundle()
	scene := ids.SceneId(9)

	b.execute(command.Command{Kind: command.KindScenePublished, Scene: scene})
	b.execute(command.Command{
		Kind:          command.KindSetSceneState,
		Scene:         scene,
		TargetState:   command.SceneStateRendered,
		TargetDisplay: b.handle,
	})

	if b.controlFor(scene).CurrentState() != scenecontrol.StateRendered {
		t.Fatalf("expected scene to reach StateRendered, got %v", b.controlFor(scene).CurrentState())
	}
	mapped := b.mappedSceneIDs()
	if len(mapped) != 1 || mapped[0] != scene {
		t.Fatalf("expected scene %v to be mapped by reconcile, got %v", scene, mapped)
	}

	found := false
	for _, e := range b.events.Drain() {
		if e.Kind == event.KindSceneStateChanged && e.Scene == scene && e.State == int(scenecontrol.StateRendered) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a SceneStateChanged event reporting Rendered")
	}
}

func TestExecuteSetSceneMappingUpdatesRenderOrderOfMappedScene(t *testing.T) {
	b := newTestBundle()
	scene := ids.SceneId(10)

	b.execute(command.Command{Kind: command.KindScenePublished, Scene: scene})
	b.execute(command.Command{
		Kind:          command.KindSetSceneState,
		Scene:         scene,
		TargetState:   command.SceneStateRendered,
		TargetDisplay: b.handle,
	})
	b.execute(command.Command{
		Kind:          command.KindSetSceneMapping,
		Scene:         scene,
		TargetDisplay: b.handle,
		RenderOrder:   3,
	})

	b.mu.Lock()
	order := b.mapped[0].order
	b.mu.Unlock()
	if order != 3 {
		t.Fatalf("expected render order 3 after SetSceneMapping, got %d", order)
	}
}

func TestExecuteSceneUnpublishedUnmapsAndForgetsScene(t *testing.T) {
	b := newTestBundle()
	scene := ids.SceneId(11)

	b.execute(command.Command{Kind: command.KindScenePublished, Scene: scene})
	b.mapScene(scene, 0)

	b.execute(command.Command{Kind: command.KindSceneUnpublished, Scene: scene})

	if len(b.mappedSceneIDs()) != 0 {
		t.Fatalf("expected scene to be unmapped after unpublish")
	}
	if _, ok := b.control[scene]; ok {
		t.Fatalf("expected scene control state to be forgotten after unpublish")
	}
}

func TestExecuteCreateAndDestroyOffscreenBufferTracksSize(t *testing.T) {
	b := newTestBundle()
	buf := ids.DisplayBufferHandle(1)

	b.execute(command.Command{
		Kind:          command.KindCreateOffscreenBuffer,
		Display:       b.handle,
		DisplayBuffer: buf,
		BufferWidth:   64,
		BufferHeight:  32,
	})
	if got := b.obSizes[buf]; got != [2]int{64, 32} {
		t.Fatalf("expected obSizes[%v] = [64 32], got %v", buf, got)
	}

	b.execute(command.Command{Kind: command.KindDestroyOffscreenBuffer, Display: b.handle, DisplayBuffer: buf})
	if _, ok := b.obSizes[buf]; ok {
		t.Fatalf("expected obSizes entry to be removed after destroy")
	}
}

func TestExecuteConfirmationEchoEmitsEvent(t *testing.T) {
	b := newTestBundle()

	b.execute(command.Command{Kind: command.KindConfirmationEcho, Display: b.handle, EchoName: "checkpoint-1"})

	events := b.events.Drain()
	if len(events) != 1 || events[0].Kind != event.KindConfirmationEchoed || events[0].Message != "checkpoint-1" {
		t.Fatalf("expected one ConfirmationEchoed event named checkpoint-1, got %v", events)
	}
}

func TestExecuteSetSceneReferenceMasterResolvesThroughLinkData(t *testing.T) {
	b := newTestBundle()
	referencing := ids.SceneId(20)
	master := ids.SceneId(21)
	buf := ids.DisplayBufferHandle(1)

	b.execute(command.Command{Kind: command.KindSetSceneReferenceMaster, Scene: referencing, MasterScene: master})
	if got := b.resolveMasterScene(referencing); got != master {
		t.Fatalf("expected referencing scene to resolve to master %v, got %v", master, got)
	}

	b.execute(command.Command{Kind: command.KindLinkData, ProviderBuffer: buf, ConsumerScene: referencing, ConsumerData: ids.DataSlotHandle(1)})

	b.execute(command.Command{Kind: command.KindSetSceneReferenceMaster, Scene: referencing, MasterScene: 0})
	if got := b.resolveMasterScene(referencing); got != referencing {
		t.Fatalf("expected referencing scene to resolve to itself after clearing master, got %v", got)
	}
}

func TestExecuteUnhandledKindIsLoggedNotPanicked(t *testing.T) {
	b := newTestBundle()
	b.execute(command.Command{Kind: command.Kind(999)})
}

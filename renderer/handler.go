package renderer

import (
	"github.com/ramses-go/renderer/internal/event"
	"github.com/ramses-go/renderer/internal/ids"
)

// EventHandler is the polymorphic callback interface of spec §6's Event
// API: DispatchEvents invokes exactly one method per drained event,
// synchronously on the caller's thread. Grounded on the teacher
// engine's profiler callback shape (one method per distinct
// notification, rather than a single switch-on-a-field handler),
// generalized to the renderer core's full event variant set.
type EventHandler interface {
	OnDisplayCreated(display DisplayEvent)
	OnDisplayCreateFailed(display DisplayEvent)
	OnDisplayDestroyed(display DisplayEvent)
	OnDisplayDestroyFailed(display DisplayEvent)

	OnOffscreenBufferCreated(buf BufferEvent)
	OnOffscreenBufferCreateFailed(buf BufferEvent)
	OnOffscreenBufferDestroyed(buf BufferEvent)
	OnOffscreenBufferDestroyFailed(buf BufferEvent)

	OnReadPixelsDone(result ReadPixelsResult)
	OnReadPixelsFailed(result ReadPixelsResult)

	OnWindowKeyEvent(key KeyEvent)

	OnScenePublished(scene SceneEvent)
	OnSceneStateChanged(scene SceneEvent)
	OnSceneFlushed(scene SceneEvent)
	OnSceneFlushFailed(scene SceneEvent)

	OnResourceBroken(res ResourceEvent)
	OnRenderThreadPeriodicLoopTimes(loop LoopTimesEvent)
	OnConfirmationEchoed(echo ConfirmationEvent)
}

// DisplayEvent carries a display-lifecycle notification.
type DisplayEvent struct {
	Display ids.DisplayHandle
	Success bool
	Message string
}

// BufferEvent carries an offscreen-buffer-lifecycle notification.
type BufferEvent struct {
	Display ids.DisplayHandle
	Buffer  ids.DisplayBufferHandle
	Success bool
	Message string
}

// ReadPixelsResult carries a completed or failed pixel readback.
type ReadPixelsResult struct {
	Display ids.DisplayHandle
	Buffer  ids.DisplayBufferHandle
	Pixels  []byte
	Width   int
	Height  int
	Success bool
	Message string
}

// KeyEvent carries a native key-down/key-up notification forwarded
// from a display's window.
type KeyEvent struct {
	Display ids.DisplayHandle
	KeyCode int
	KeyDown bool
}

// SceneEvent carries a scene-lifecycle or control-state notification.
type SceneEvent struct {
	Scene   ids.SceneId
	State   SceneState
	Success bool
	Message string
}

// ResourceEvent reports an asynchronous resource failure (spec §7 kind
// 4/5: shader compile failure, async upload failure, resource
// becoming unusable after being marked broken).
type ResourceEvent struct {
	Resource ids.ResourceContentHash
	Message  string
}

// LoopTimesEvent reports one render thread's periodic loop-time sample
// (spec §4.9's watchdog/diagnostics reporting).
type LoopTimesEvent struct {
	Display   ids.DisplayHandle
	MaxMicros float64
	AvgMicros float64
}

// ConfirmationEvent reports a ConfirmationEcho command's round trip.
type ConfirmationEvent struct {
	Display ids.DisplayHandle
	Name    string
}

func dispatchOne(h EventHandler, e event.Event) {
	switch e.Kind {
	case event.KindDisplayCreated:
		h.OnDisplayCreated(DisplayEvent{Display: e.Display, Success: e.Success, Message: e.Message})
	case event.KindDisplayCreateFailed:
		h.OnDisplayCreateFailed(DisplayEvent{Display: e.Display, Success: e.Success, Message: e.Message})
	case event.KindDisplayDestroyed:
		h.OnDisplayDestroyed(DisplayEvent{Display: e.Display, Success: e.Success, Message: e.Message})
	case event.KindDisplayDestroyFailed:
		h.OnDisplayDestroyFailed(DisplayEvent{Display: e.Display, Success: e.Success, Message: e.Message})

	case event.KindOffscreenBufferCreated:
		h.OnOffscreenBufferCreated(BufferEvent{Display: e.Display, Buffer: e.DisplayBuffer, Success: e.Success, Message: e.Message})
	case event.KindOffscreenBufferCreateFailed:
		h.OnOffscreenBufferCreateFailed(BufferEvent{Display: e.Display, Buffer: e.DisplayBuffer, Success: e.Success, Message: e.Message})
	case event.KindOffscreenBufferDestroyed:
		h.OnOffscreenBufferDestroyed(BufferEvent{Display: e.Display, Buffer: e.DisplayBuffer, Success: e.Success, Message: e.Message})
	case event.KindOffscreenBufferDestroyFailed:
		h.OnOffscreenBufferDestroyFailed(BufferEvent{Display: e.Display, Buffer: e.DisplayBuffer, Success: e.Success, Message: e.Message})

	case event.KindReadPixelsDone:
		h.OnReadPixelsDone(ReadPixelsResult{Display: e.Display, Buffer: e.DisplayBuffer, Pixels: e.Pixels, Width: e.Width, Height: e.Height, Success: e.Success, Message: e.Message})
	case event.KindReadPixelsFailed:
		h.OnReadPixelsFailed(ReadPixelsResult{Display: e.Display, Buffer: e.DisplayBuffer, Success: e.Success, Message: e.Message})

	case event.KindWindowKeyEvent:
		h.OnWindowKeyEvent(KeyEvent{Display: e.Display, KeyCode: e.KeyCode, KeyDown: e.KeyAction == 0})

	case event.KindScenePublished:
		h.OnScenePublished(SceneEvent{Scene: e.Scene, Success: e.Success, Message: e.Message})
	case event.KindSceneStateChanged:
		h.OnSceneStateChanged(SceneEvent{Scene: e.Scene, State: SceneState(e.State), Success: e.Success, Message: e.Message})
	case event.KindSceneFlushed:
		h.OnSceneFlushed(SceneEvent{Scene: e.Scene, Success: e.Success, Message: e.Message})
	case event.KindSceneFlushFailed:
		h.OnSceneFlushFailed(SceneEvent{Scene: e.Scene, Success: e.Success, Message: e.Message})

	case event.KindResourceBroken:
		h.OnResourceBroken(ResourceEvent{Resource: e.Resource, Message: e.Message})
	case event.KindRenderThreadPeriodicLoopTimes:
		h.OnRenderThreadPeriodicLoopTimes(LoopTimesEvent{Display: e.Display, MaxMicros: e.LoopTimeMaxMicros, AvgMicros: e.LoopTimeAvgMicros})
	case event.KindConfirmationEchoed:
		h.OnConfirmationEchoed(ConfirmationEvent{Display: e.Display, Name: e.Message})
	}
}

// Package window owns the per-display GLFW window and wires its input
// callbacks into the display bundle's event collector. Grounded on the
// teacher engine's engine/window package (NewWindow, the functional
// WindowBuilderOption set, and the GLFW platform implementation); kept
// as a thin adapter here since the renderer core only needs a
// SurfaceDescriptor to hand to internal/backend.NewWGPUBackend and a
// place to route key events into the Event API (spec §3's
// WindowKeyEvent), not the teacher's mouse/scroll-to-camera-controller
// wiring, which belongs to scene-graph authoring (spec §1 Non-goals).
package window

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/ramses-go/renderer/engine/window"
	"github.com/ramses-go/renderer/internal/event"
)

// KeyAction mirrors the two key transitions the renderer core reports,
// using the same ordinal values as event.Event.KeyAction.
const (
	KeyActionDown = 0
	KeyActionUp   = 1
)

// Window owns one display's native window and its surface descriptor.
type Window struct {
	w      window.Window
	events *event.Collector
}

// New creates a native window of the given size/title and routes its
// key events to events as KindWindowKeyEvent.
func New(width, height int, title string, events *event.Collector) *Window {
	w := window.NewWindow(
		window.WithWidth(width),
		window.WithHeight(height),
		window.WithTitle(title),
	)

	win := &Window{w: w, events: events}
	w.SetKeyDownCallback(func(keyCode uint32) { win.onKey(keyCode, KeyActionDown) })
	w.SetKeyUpCallback(func(keyCode uint32) { win.onKey(keyCode, KeyActionUp) })
	return win
}

func (win *Window) onKey(keyCode uint32, action int) {
	if win.events == nil {
		return
	}
	win.events.Push(event.Event{
		Kind:      event.KindWindowKeyEvent,
		KeyCode:   int(keyCode),
		KeyAction: action,
	})
}

// SurfaceDescriptor returns the platform surface descriptor suitable
// for internal/backend.NewWGPUBackend.
func (win *Window) SurfaceDescriptor() *wgpu.SurfaceDescriptor { return win.w.SurfaceDescriptor() }

// PollEvents drains pending native window events without blocking,
// invoking any input callbacks registered above, and reports whether
// the window is still open. Called once per loop iteration by the
// display bundle, never via ProcessMessages's own blocking loop (which
// belongs to a standalone windowed app, not a render thread driven by
// C9's Loop Controller).
func (win *Window) PollEvents() bool {
	return win.w.PollEvents()
}

// Width returns the current framebuffer width in pixels.
func (win *Window) Width() int { return win.w.Width() }

// Height returns the current framebuffer height in pixels.
func (win *Window) Height() int { return win.w.Height() }

// Close releases the native window and terminates GLFW for this
// display.
func (win *Window) Close() error { return win.w.Close() }

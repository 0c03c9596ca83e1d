package dispatch

import (
	"testing"

	"github.com/ramses-go/renderer/internal/command"
	"github.com/ramses-go/renderer/internal/event"
	"github.com/ramses-go/renderer/internal/ids"
)

func TestAllocateDisplayHandleIsMonotonic(t *testing.T) {
	d := New(nil, nil, nil)
	a := d.AllocateDisplayHandle()
	b := d.AllocateDisplayHandle()
	if a == 0 || b == 0 || a == b {
		t.Fatalf("expected two distinct nonzero handles, got %v and %v", a, b)
	}
}

func TestRouteDropsCommandForUnknownDisplay(t *testing.T) {
	d := New(nil, nil, nil)
	d.Push(command.Command{Kind: command.KindSetClearColor, Display: ids.DisplayHandle(42)})

	d.Dispatch()

	if events := d.DrainEvents(); len(events) != 0 {
		t.Fatalf("expected no events for a dropped command, got %v", events)
	}
}

func TestDestroyDisplayOnUnknownDisplayPushesFailureEvent(t *testing.T) {
	d := New(nil, nil, nil)
	handle := d.AllocateDisplayHandle()

	d.Push(command.Command{Kind: command.KindDestroyDisplay, Display: handle})
	d.Dispatch()

	events := d.DrainEvents()
	if len(events) != 1 || events[0].Kind != event.KindDisplayDestroyFailed || events[0].Display != handle {
		t.Fatalf("expected one DisplayDestroyFailed event for display %v, got %v", handle, events)
	}
}

func TestBundleReturnsFalseForUnknownDisplay(t *testing.T) {
	d := New(nil, nil, nil)
	if _, ok := d.Bundle(ids.DisplayHandle(1)); ok {
		t.Fatalf("expected no bundle for a display that was never created")
	}
}

func TestBroadcastToNoBundlesIsANoOp(t *testing.T) {
	d := New(nil, nil, nil)
	d.Push(command.Command{Kind: command.KindLogRendererInfo, LogTopic: "all"})
	d.Dispatch()
}

func TestDrainEventsAggregatesPendingAndBundleEvents(t *testing.T) {
	d := New(nil, nil, nil)
	d.pending.Push(event.Event{Kind: event.KindDisplayDestroyFailed})

	b := newTestBundle()
	b.events.Push(event.Event{Kind: event.KindScenePublished, Scene: ids.SceneId(1)})
	d.bundles[b.handle] = b

	events := d.DrainEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 aggregated events, got %d (%v)", len(events), events)
	}
}

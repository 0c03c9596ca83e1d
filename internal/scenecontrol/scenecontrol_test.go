package scenecontrol

import (
	"testing"

	"github.com/ramses-go/renderer/internal/ids"
)

func TestReconcileWaitsForPublish(t *testing.T) {
	s := NewScene(ids.SceneId(1))
	s.SetTarget(StateRendered, ids.DisplayHandle(1), 0)
	if actions := s.Reconcile(); actions != nil {
		t.Fatalf("expected no actions before publish, got %+v", actions)
	}
}

func TestReconcileDrivesToRendered(t *testing.T) {
	s := NewScene(ids.SceneId(1))
	s.OnPublished()
	s.SetTarget(StateRendered, ids.DisplayHandle(5), 2)

	actions := s.Reconcile()
	if len(actions) != 3 {
		t.Fatalf("expected subscribe+map+show, got %+v", actions)
	}
	if actions[0].Kind != ActionSubscribe {
		t.Fatalf("expected first action Subscribe, got %v", actions[0].Kind)
	}
	if actions[1].Kind != ActionMap || actions[1].Display != ids.DisplayHandle(5) {
		t.Fatalf("expected second action Map to display 5, got %+v", actions[1])
	}
	if actions[2].Kind != ActionShow {
		t.Fatalf("expected third action Show, got %+v", actions[2])
	}
	if s.CurrentState() != StateRendered {
		t.Fatalf("expected achieved state Rendered, got %v", s.CurrentState())
	}
}

func TestReconcileIsIdempotentOnceConverged(t *testing.T) {
	s := NewScene(ids.SceneId(1))
	s.OnPublished()
	s.SetTarget(StateReady, ids.DisplayHandle(1), 0)
	s.Reconcile()

	s.SetTarget(StateReady, ids.DisplayHandle(1), 0)
	if actions := s.Reconcile(); actions != nil {
		t.Fatalf("expected no further actions for repeated identical target, got %+v", actions)
	}
}

func TestReconcileHidesBeforeUnmapping(t *testing.T) {
	s := NewScene(ids.SceneId(1))
	s.OnPublished()
	s.SetTarget(StateRendered, ids.DisplayHandle(1), 0)
	s.Reconcile()

	s.SetTarget(StateAvailable, ids.DisplayHandle(1), 0)
	actions := s.Reconcile()
	if len(actions) != 3 {
		t.Fatalf("expected hide+unmap+unsubscribe, got %+v", actions)
	}
	if actions[0].Kind != ActionHide {
		t.Fatalf("expected Hide before Unmap, got %+v", actions[0])
	}
	if actions[1].Kind != ActionUnmap {
		t.Fatalf("expected Unmap second, got %+v", actions[1])
	}
	if actions[2].Kind != ActionUnsubscribe {
		t.Fatalf("expected Unsubscribe third, got %+v", actions[2])
	}
	if s.CurrentState() != StateAvailable {
		t.Fatalf("expected achieved state Available, got %v", s.CurrentState())
	}
}

func TestOnUnpublishedResetsAllFacts(t *testing.T) {
	s := NewScene(ids.SceneId(1))
	s.OnPublished()
	s.SetTarget(StateRendered, ids.DisplayHandle(1), 0)
	s.Reconcile()

	s.OnUnpublished()
	if s.CurrentState() != StateUnavailable {
		t.Fatalf("expected Unavailable after unpublish, got %v", s.CurrentState())
	}
}

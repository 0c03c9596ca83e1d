package dispatch

import (
	"testing"

	"github.com/ramses-go/renderer/internal/ids"
)

func TestMapSceneKeepsRenderOrderSorted(t *testing.T) {
	b := newTestBundle()

	b.mapScene(ids.SceneId(1), 5)
	b.mapScene(ids.SceneId(2), 1)
	b.mapScene(ids.SceneId(3), 3)

	got := b.mappedSceneIDs()
	want := []ids.SceneId{2, 3, 1}
	if len(got) != len(want) {
		t.Fatalf("expected %d mapped scenes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected mapped order %v, got %v", want, got)
		}
	}
}

func TestMapSceneRepositionsExistingSceneInsteadOfDuplicating(t *testing.T) {
	b := newTestBundle()

	b.mapScene(ids.SceneId(1), 5)
	b.mapScene(ids.SceneId(1), 0)

	got := b.mappedSceneIDs()
	if len(got) != 1 || got[0] != ids.SceneId(1) {
		t.Fatalf("expected exactly one mapped entry for the repositioned scene, got %v", got)
	}
}

func TestUnmapSceneRemovesOnlyTheNamedScene(t *testing.T) {
	b := newTestBundle()

	b.mapScene(ids.SceneId(1), 0)
	b.mapScene(ids.SceneId(2), 1)
	b.unmapScene(ids.SceneId(1))

	got := b.mappedSceneIDs()
	if len(got) != 1 || got[0] != ids.SceneId(2) {
		t.Fatalf("expected only scene 2 to remain mapped, got %v", got)
	}
}

package scenecontrol

import "github.com/ramses-go/renderer/internal/ids"

// ReferenceTracker implements the scene-reference ownership/logic
// supplemented feature (read from original_source's DisplayBundle,
// which holds a SceneReferenceOwnership/SceneReferenceLogic pair): a
// scene may declare another scene as a "master" it references data
// from (e.g. a linked render target), and the dispatcher consults this
// map to find which physical scene ultimately owns a buffer a
// reference points at. Dropped from the distilled spec but present in
// the original implementation; kept minimal since full scene-reference
// link semantics are out of the distilled spec's scope.
type ReferenceTracker struct {
	masterOf map[ids.SceneId]ids.SceneId
}

// NewReferenceTracker creates an empty ReferenceTracker.
func NewReferenceTracker() *ReferenceTracker {
	return &ReferenceTracker{masterOf: make(map[ids.SceneId]ids.SceneId)}
}

// SetMaster records that referencing now resolves through master.
func (t *ReferenceTracker) SetMaster(referencing, master ids.SceneId) {
	t.masterOf[referencing] = master
}

// ClearMaster removes any reference relationship for referencing.
func (t *ReferenceTracker) ClearMaster(referencing ids.SceneId) {
	delete(t.masterOf, referencing)
}

// FindMasterSceneForReferencedScene returns the master scene for id,
// and whether one is recorded. For a scene with no recorded
// relationship it returns the zero SceneId and false.
func (t *ReferenceTracker) FindMasterSceneForReferencedScene(id ids.SceneId) (ids.SceneId, bool) {
	master, ok := t.masterOf[id]
	return master, ok
}

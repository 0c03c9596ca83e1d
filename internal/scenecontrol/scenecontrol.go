// Package scenecontrol implements the Scene Control Logic (C6): a
// per-scene state machine (Unavailable -> Available -> Ready ->
// Rendered, with Unsubscribed and Hidden as side states reached by
// backing off along the same edges) that reconciles a user-requested
// target state against externally observed facts (publication,
// subscription success, mapping) by emitting imperative sub-commands
// to the Scene Renderer/Updater (C5). Grounded on spec §4.6's state
// diagram and tie-break rules; the emit-diff-as-actions shape follows
// the teacher engine's builder-option pattern of deriving concrete
// steps from a declared target rather than mutating state ad hoc.
package scenecontrol

import (
	"github.com/ramses-go/renderer/internal/ids"
)

// State is a scene's achieved position in the control state machine.
type State int

const (
	StateUnavailable State = iota
	StateAvailable
	StateReady
	StateRendered
)

func (s State) String() string {
	switch s {
	case StateUnavailable:
		return "Unavailable"
	case StateAvailable:
		return "Available"
	case StateReady:
		return "Ready"
	case StateRendered:
		return "Rendered"
	default:
		return "Unknown"
	}
}

// ActionKind discriminates the imperative sub-commands C6 emits to C5.
type ActionKind int

const (
	ActionSubscribe ActionKind = iota
	ActionUnsubscribe
	ActionMap
	ActionUnmap
	ActionShow
	ActionHide
)

// Action is one imperative instruction for C5, carrying only the
// fields its kind needs.
type Action struct {
	Kind        ActionKind
	Scene       ids.SceneId
	Display     ids.DisplayHandle
	RenderOrder int32
}

// Scene tracks one scene's published/subscribed/mapped/shown facts and
// the user's requested target state. Not safe for concurrent use;
// owned by the bundle thread that also drives C5/C7 for this scene.
type Scene struct {
	id ids.SceneId

	published  bool
	subscribed bool
	mapped     bool
	mappedTo   ids.DisplayHandle
	renderOrder int32
	shown      bool

	target        State
	targetDisplay ids.DisplayHandle
	targetOrder   int32
}

// NewScene creates a Scene control entry in state Unavailable.
func NewScene(id ids.SceneId) *Scene {
	return &Scene{id: id, target: StateUnavailable}
}

// CurrentState derives the achieved state from the tracked facts.
func (s *Scene) CurrentState() State {
	switch {
	case s.shown:
		return StateRendered
	case s.mapped:
		return StateReady
	case s.published:
		return StateAvailable
	default:
		return StateUnavailable
	}
}

// OnPublished records that the scene was published by its client.
func (s *Scene) OnPublished() { s.published = true }

// OnUnpublished records that the scene's client unpublished it,
// reverting every downstream fact.
func (s *Scene) OnUnpublished() {
	s.published, s.subscribed, s.mapped, s.shown = false, false, false, false
}

// OnSubscribed records a successful subscription (C5 confirmed the
// scene's initial flush was received and applied).
func (s *Scene) OnSubscribed() { s.subscribed = true }

// OnUnsubscribed records that the scene was dropped from subscription
// (e.g. forceUnsubscribe limit exceeded, spec §4.5).
func (s *Scene) OnUnsubscribed() { s.subscribed, s.mapped, s.shown = false, false, false }

// SetTarget records the user's requested state, display, and render
// order. Reconcile will emit whatever actions are needed to move the
// achieved state toward this target.
func (s *Scene) SetTarget(target State, display ids.DisplayHandle, order int32) {
	s.target, s.targetDisplay, s.targetOrder = target, display, order
}

// Reconcile compares the achieved state against the target and
// returns the imperative actions needed to close the gap, applying
// spec §4.6's tie-break rules: mapping is applied before show;
// unmapping only happens once hidden. Calling Reconcile repeatedly
// with no change in facts or target returns nil once converged,
// satisfying the idempotence property in spec §8
// ("SetSceneState(Ready); SetSceneState(Ready) produces no additional
// internal events").
func (s *Scene) Reconcile() []Action {
	var actions []Action

	if !s.published {
		// Nothing achievable until the client (re-)publishes; any
		// target above Unavailable simply waits.
		return nil
	}

	wantSubscribed := s.target >= StateReady
	if wantSubscribed && !s.subscribed {
		actions = append(actions, Action{Kind: ActionSubscribe, Scene: s.id})
		s.subscribed = true
	} else if !wantSubscribed && s.subscribed {
		if s.shown {
			actions = append(actions, Action{Kind: ActionHide, Scene: s.id})
			s.shown = false
		}
		if s.mapped {
			actions = append(actions, Action{Kind: ActionUnmap, Scene: s.id, Display: s.mappedTo})
			s.mapped, s.mappedTo = false, 0
		}
		actions = append(actions, Action{Kind: ActionUnsubscribe, Scene: s.id})
		s.subscribed = false
		return actions
	}

	wantMapped := s.target >= StateReady && s.subscribed
	if wantMapped && (!s.mapped || s.mappedTo != s.targetDisplay || s.renderOrder != s.targetOrder) {
		if s.mapped && s.mappedTo != s.targetDisplay {
			if s.shown {
				actions = append(actions, Action{Kind: ActionHide, Scene: s.id})
				s.shown = false
			}
			actions = append(actions, Action{Kind: ActionUnmap, Scene: s.id, Display: s.mappedTo})
			s.mapped = false
		}
		actions = append(actions, Action{Kind: ActionMap, Scene: s.id, Display: s.targetDisplay, RenderOrder: s.targetOrder})
		s.mapped, s.mappedTo, s.renderOrder = true, s.targetDisplay, s.targetOrder
	} else if !wantMapped && s.mapped {
		if s.shown {
			actions = append(actions, Action{Kind: ActionHide, Scene: s.id})
			s.shown = false
		}
		actions = append(actions, Action{Kind: ActionUnmap, Scene: s.id, Display: s.mappedTo})
		s.mapped, s.mappedTo = false, 0
	}

	wantShown := s.target == StateRendered && s.mapped
	if wantShown && !s.shown {
		actions = append(actions, Action{Kind: ActionShow, Scene: s.id, Display: s.mappedTo})
		s.shown = true
	} else if !wantShown && s.shown {
		actions = append(actions, Action{Kind: ActionHide, Scene: s.id})
		s.shown = false
	}

	return actions
}

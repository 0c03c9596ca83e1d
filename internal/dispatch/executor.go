package dispatch

import (
	"github.com/ramses-go/renderer/internal/backend"
	"github.com/ramses-go/renderer/internal/command"
	"github.com/ramses-go/renderer/internal/event"
	"github.com/ramses-go/renderer/internal/ids"
	"github.com/ramses-go/renderer/internal/scenecontrol"
)

// execute is the Command Executor (C7): a visitor over the command
// variant that applies each Command to this bundle's C5 (Scene
// Renderer/Updater) and C6 (Scene Control Logic), atomically with
// respect to any other command this bundle's own thread executes.
// Logging is skipped for KindUpdateScene to control log volume, per
// spec §4.7. CreateDisplay/DestroyDisplay never reach here — the
// Dispatcher handles those itself since they create or destroy the
// bundle this method runs on.
func (b *DisplayBundle) execute(cmd command.Command) {
	if cmd.Kind != command.KindUpdateScene {
		b.log.Trace("dispatch: executing %v for display %s", cmd.Kind, b.handle)
	}

	switch cmd.Kind {
	case command.KindScenePublished:
		b.controlFor(cmd.Scene).OnPublished()
		b.updater.HandleScenePublished(cmd.Scene, 0)

	case command.KindSceneUnpublished:
		b.controlFor(cmd.Scene).OnUnpublished()
		b.updater.HandleSceneUnpublished(cmd.Scene)
		b.unmapScene(cmd.Scene)
		delete(b.control, cmd.Scene)

	case command.KindReceiveScene:
		b.updater.HandleSceneReceived(cmd.Scene)
		b.controlFor(cmd.Scene).OnSubscribed()
		b.reconcile(cmd.Scene)

	case command.KindUpdateScene:
		if err := b.updater.HandleSceneUpdate(cmd.Scene, cmd.SceneBytes); err != nil {
			b.log.Error("dispatch: update scene %s: %v", cmd.Scene, err)
		}

	case command.KindSetSceneState:
		b.controlFor(cmd.Scene).SetTarget(scenecontrol.State(cmd.TargetState), cmd.TargetDisplay, 0)
		b.reconcile(cmd.Scene)

	case command.KindSetSceneMapping:
		sc := b.controlFor(cmd.Scene)
		sc.SetTarget(sc.CurrentState(), cmd.TargetDisplay, cmd.RenderOrder)
		b.reconcile(cmd.Scene)

	case command.KindSetSceneDisplayBufferAssignment:
		b.bufferOf[cmd.Scene] = cmd.TargetDisplayBuffer

	case command.KindLinkData:
		ok := b.updater.HandleBufferToSceneDataLinkRequest(cmd.ProviderBuffer, b.resolveMasterScene(cmd.ConsumerScene), cmd.ConsumerData)
		if !ok {
			b.log.Error("dispatch: link data failed: provider buffer %s not found", cmd.ProviderBuffer)
		}

	case command.KindSetSceneReferenceMaster:
		if cmd.MasterScene.Invalid() {
			b.refs.ClearMaster(cmd.Scene)
		} else {
			b.refs.SetMaster(cmd.Scene, cmd.MasterScene)
		}

	case command.KindUnlinkData:
		b.updater.HandleUnlinkData(cmd.ConsumerData)

	case command.KindCreateOffscreenBuffer:
		ok := b.updater.HandleBufferCreateRequest(cmd.DisplayBuffer, cmd.Display, cmd.BufferWidth, cmd.BufferHeight, cmd.SampleCount, cmd.Interruptible)
		if ok {
			b.obSizes[cmd.DisplayBuffer] = [2]int{cmd.BufferWidth, cmd.BufferHeight}
		}

	case command.KindDestroyOffscreenBuffer:
		b.updater.HandleBufferDestroyRequest(cmd.DisplayBuffer, cmd.Display)
		delete(b.obSizes, cmd.DisplayBuffer)

	case command.KindSetClearColor:
		b.updater.HandleSetClearColor(cmd.Display, cmd.DisplayBuffer, cmd.ClearColor)

	case command.KindReadPixels:
		b.updater.HandleReadPixels(cmd.Display, cmd.DisplayBuffer, backend.Rect(cmd.PixelRect), cmd.Filename, cmd.SendViaDLT, cmd.FullScreen)

	case command.KindSetLimitsFlushesForceApply:
		b.updater.SetLimitFlushesForceApply(cmd.FlushLimit)

	case command.KindSetLimitsFlushesForceUnsubscribe:
		b.updater.SetLimitFlushesForceUnsubscribe(cmd.FlushLimit)

	case command.KindSCSetIviSurfaceVisibility:
		// The system compositor (IVI) is an external collaborator (spec
		// §1); this bundle only logs the request and keeps no record of
		// it.
		b.log.Info("dispatch: SC surface visibility for display %s set to %v (IVI attachment out of scope)", cmd.Display, cmd.Visible)

	case command.KindLogRendererInfo:
		b.updater.LogRendererInfo(cmd.LogTopic, cmd.LogVerbose, cmd.NodeFilter)

	case command.KindPickEvent:
		ray, err := b.updater.HandlePickEvent(cmd.Scene, cmd.NormalizedX, cmd.NormalizedY)
		if err != nil {
			b.log.Error("dispatch: pick event on scene %s: %v", cmd.Scene, err)
			break
		}
		b.log.Debug("dispatch: pick event on scene %s resolved ray origin=%v dir=%v", cmd.Scene, ray.Origin, ray.Direction)

	case command.KindConfirmationEcho:
		b.events.Push(event.Event{Kind: event.KindConfirmationEchoed, Display: b.handle, Message: cmd.EchoName, Success: true})

	default:
		b.log.Error("dispatch: unhandled command kind %v", cmd.Kind)
	}
}

// resolveMasterScene follows this bundle's ReferenceTracker to find the
// physical scene a data link targeting id should actually resolve
// through, mirroring original_source's DisplayBundle::
// findMasterSceneForReferencedScene. A scene with no recorded
// reference relationship is its own master.
func (b *DisplayBundle) resolveMasterScene(id ids.SceneId) ids.SceneId {
	if master, ok := b.refs.FindMasterSceneForReferencedScene(id); ok {
		return master
	}
	return id
}

// controlFor returns this scene's control-state machine, creating it
// in StateUnavailable on first reference.
func (b *DisplayBundle) controlFor(id ids.SceneId) *scenecontrol.Scene {
	sc, ok := b.control[id]
	if !ok {
		sc = scenecontrol.NewScene(id)
		b.control[id] = sc
	}
	return sc
}

// reconcile drives scene's control state machine toward its target,
// translating each emitted Action into the corresponding C5 call and
// mapped/unmapped render-order bookkeeping, then reports the
// resulting achieved state as a SceneStateChanged event. Grounded on
// spec §4.6: "The logic emits imperative sub-commands to C5 ...
// whenever actual state diverges from target."
func (b *DisplayBundle) reconcile(id ids.SceneId) {
	sc := b.controlFor(id)
	actions := sc.Reconcile()
	if len(actions) == 0 {
		return
	}

	for _, a := range actions {
		switch a.Kind {
		case scenecontrol.ActionSubscribe:
			b.updater.HandleSceneReceived(id)
		case scenecontrol.ActionUnsubscribe:
			b.updater.HandleSceneUnpublished(id)
		case scenecontrol.ActionMap:
			b.mapScene(id, a.RenderOrder)
		case scenecontrol.ActionUnmap:
			b.unmapScene(id)
		case scenecontrol.ActionShow, scenecontrol.ActionHide:
			// Visibility is carried entirely by mapped/unmapped
			// membership in RenderDisplay's walk; no separate device
			// state toggle is needed beyond what Map/Unmap already did.
		}
	}

	b.events.Push(event.Event{Kind: event.KindSceneStateChanged, Scene: id, Success: true, State: int(sc.CurrentState())})
}

// Package command defines the tagged Command variants accepted by the
// renderer core's command API (spec §3/§6) and the per-display queue
// they travel through. Grounded on spec §3's explicit "tagged variant
// in a single queue" requirement and on the teacher engine's
// functional-option/explicit-struct idiom; kept as concrete structs
// with a Kind discriminant (not interface{} visited via type switch)
// so routing by display handle in internal/dispatch never needs a
// type assertion on the hot path.
package command

import (
	"sync"

	"github.com/ramses-go/renderer/internal/ids"
)

// Kind discriminates the Command union.
type Kind int

const (
	KindScenePublished Kind = iota
	KindSceneUnpublished
	KindReceiveScene
	KindUpdateScene
	KindSetSceneState
	KindSetSceneMapping
	KindSetSceneDisplayBufferAssignment
	KindLinkData
	KindUnlinkData
	KindCreateDisplay
	KindDestroyDisplay
	KindCreateOffscreenBuffer
	KindDestroyOffscreenBuffer
	KindSetClearColor
	KindReadPixels
	KindSetLimitsFlushesForceApply
	KindSetLimitsFlushesForceUnsubscribe
	KindSCSetIviSurfaceVisibility
	KindLogRendererInfo
	KindPickEvent
	KindConfirmationEcho
	KindSetSceneReferenceMaster
)

// SceneState is the user-facing target state of the scene control
// state machine (spec §4.6).
type SceneState int

const (
	SceneStateUnavailable SceneState = iota
	SceneStateAvailable
	SceneStateReady
	SceneStateRendered
)

// Rect is an integer pixel rectangle, mirroring backend.Rect for the
// ReadPixels command's inputs (kept separate to avoid the command
// package depending on the backend package).
type Rect struct {
	X, Y, Width, Height int
}

// Command is a concrete tagged union carrying only the fields its
// Kind needs, per spec §3 ("each variant carries only its inputs").
type Command struct {
	Kind Kind

	Display       ids.DisplayHandle
	DisplayBuffer ids.DisplayBufferHandle
	Scene         ids.SceneId
	DataSlot      ids.DataSlotHandle

	// UpdateScene / ReceiveScene payload.
	SceneBytes []byte

	// SetSceneState.
	TargetState SceneState

	// SetSceneMapping / SetSceneDisplayBufferAssignment.
	TargetDisplay       ids.DisplayHandle
	TargetDisplayBuffer ids.DisplayBufferHandle
	RenderOrder         int32

	// LinkData / UnlinkData.
	ProviderBuffer ids.DisplayBufferHandle
	ConsumerScene  ids.SceneId
	ConsumerData   ids.DataSlotHandle

	// CreateDisplay.
	DisplayWidth, DisplayHeight int
	DisplayTitle                string
	DisplayMSAASamples          uint32

	// CreateOffscreenBuffer.
	BufferWidth, BufferHeight int
	SampleCount               uint32
	Interruptible             bool

	// SetClearColor.
	ClearColor [4]float32

	// ReadPixels.
	PixelRect   Rect
	Filename    string
	SendViaDLT  bool
	FullScreen  bool

	// SetLimitsFlushes*.
	FlushLimit uint32

	// SCSetIviSurfaceVisibility.
	Visible bool

	// LogRendererInfo.
	LogTopic  string
	LogVerbose bool
	NodeFilter string

	// PickEvent.
	NormalizedX, NormalizedY float32

	// ConfirmationEcho.
	EchoName string

	// SetSceneReferenceMaster. Scene is the referencing scene;
	// MasterScene is the scene it should now resolve through, or the
	// zero/invalid SceneId to clear any recorded relationship.
	MasterScene ids.SceneId
}

// Queue is the per-display command buffer: multi-producer (any user
// thread calling Enqueue) / single-consumer (the owning bundle's
// thread calling Drain), guarded by a mutex and drained by
// swap-then-iterate to minimize lock hold time, per spec §5.
type Queue struct {
	mu    sync.Mutex
	items []Command
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends cmd to the tail of the queue.
func (q *Queue) Enqueue(cmd Command) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()
}

// Drain removes and returns every command queued since the last
// Drain, in FIFO order.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

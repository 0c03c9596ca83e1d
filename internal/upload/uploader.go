// Package upload implements the Async Shader Uploader (C3) and the
// Resource Uploading Manager (C4). Grounded on
// original_source/renderer/RendererLib/RendererLib/src/AsyncEffectUploader.cpp
// (C3) and .../ResourceUploadingManager.cpp (C4). AsyncUploader's
// condvar-style worker loop and mutex-guarded swap queues follow the
// teacher engine's sync.Cond usage pattern in engine/profiler;
// Manager's per-frame resource decompression fan-out (manager.go) uses
// the Carmen-Shannon/automation worker pool the same way
// engine/scene.scene uses it for per-frame animator prep.
package upload

import (
	"sync"

	"github.com/ramses-go/renderer/internal/backend"
	"github.com/ramses-go/renderer/internal/ids"
	"github.com/ramses-go/renderer/internal/rlog"
)

// EffectUpload is one shader awaiting compilation: its content hash
// and raw source bytes.
type EffectUpload struct {
	Hash   ids.ResourceContentHash
	Source []byte
}

// EffectUploaded is the outcome of compiling one shader: its hash and
// the resulting compiled module, or a nil module on failure.
type EffectUploaded struct {
	Hash     ids.ResourceContentHash
	Compiled backend.CompiledShader
}

// SharedContextFactory creates a second GPU backend sharing device
// resources with the render thread's backend, for use only by the
// uploader's own goroutine. Supplied by the dispatcher, which first
// calls the render-thread backend's Surface().Disable() (spec's
// shared-context handshake) before invoking this factory.
type SharedContextFactory func() (backend.Backend, error)

// AsyncUploader compiles shader (effect) resources on a dedicated
// goroutine holding its own shared GPU context, so compiling a large
// shader never blocks the render thread's frame loop. Grounded on
// AsyncEffectUploader's condvar wait, using sync.Cond guarding the same
// mutex used by Sync. The worker waits until the queue is non-empty or
// cancel is requested; it keeps no separate cache of pending work, as
// each wakeup takes and compiles the whole queued batch.
type AsyncUploader struct {
	log *rlog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	toUpload []EffectUpload
	uploaded []EffectUploaded
	cancel   bool

	wg      sync.WaitGroup
	started bool

	newBackend SharedContextFactory
}

// NewAsyncUploader creates an uploader that will build its shared-
// context backend via newBackend once Start is called.
func NewAsyncUploader(newBackend SharedContextFactory) *AsyncUploader {
	u := &AsyncUploader{
		log:        rlog.New("RENDERER"),
		newBackend: newBackend,
	}
	u.cond = sync.NewCond(&u.mu)
	return u
}

// Start starts the worker goroutine, which creates the shared-context
// backend itself, and blocks until it reports whether that succeeded.
// Returns an error if the shared context could not be created; callers
// must already have disabled the main surface's context before calling
// Start (spec §4.3/§9).
func (u *AsyncUploader) Start() error {
	u.log.Info("AsyncUploader creating render backend for resource uploading")
	created := make(chan error, 1)
	u.wg.Add(1)
	go func() {
		be, err := u.newBackend()
		created <- err
		if err != nil {
			u.wg.Done()
			return
		}
		u.run(be)
	}()
	if err := <-created; err != nil {
		u.log.Error("AsyncUploader failed creating resource upload render backend: %v", err)
		return err
	}
	u.log.Info("AsyncUploader resource upload render backend created successfully")

	u.started = true
	return nil
}

// Stop requests the worker goroutine to exit and waits for it to do
// so. Safe to call only after a successful Start.
func (u *AsyncUploader) Stop() {
	if !u.started {
		return
	}
	u.mu.Lock()
	u.cancel = true
	u.mu.Unlock()
	u.cond.Signal()
	u.wg.Wait()
	u.started = false
}

func (u *AsyncUploader) run(be backend.Backend) {
	defer u.wg.Done()
	for {
		u.mu.Lock()
		for len(u.toUpload) == 0 && !u.cancel {
			u.cond.Wait()
		}
		if u.cancel {
			u.mu.Unlock()
			break
		}
		batch := u.toUpload
		u.toUpload = nil
		u.mu.Unlock()

		u.log.Trace("AsyncUploader: will upload %d effects", len(batch))

		results := make([]EffectUploaded, 0, len(batch))
		for _, e := range batch {
			u.log.Info("AsyncUploader uploading effect %s", e.Hash)
			compiled, err := be.Device().CompileShader(e.Source)
			if err != nil {
				u.log.Error("AsyncUploader failed to compile effect %s: %v", e.Hash, err)
				results = append(results, EffectUploaded{Hash: e.Hash, Compiled: nil})
				continue
			}
			results = append(results, EffectUploaded{Hash: e.Hash, Compiled: compiled})
		}

		u.mu.Lock()
		u.uploaded = append(u.uploaded, results...)
		u.mu.Unlock()
	}

	u.log.Info("AsyncUploader exiting, shared-context backend torn down by caller")
}

// Sync enqueues newUploads for compilation and drains every effect
// compiled since the previous Sync call, in insertion order. Grounded
// on AsyncEffectUploader::sync's queue-swap contract.
func (u *AsyncUploader) Sync(newUploads []EffectUpload) []EffectUploaded {
	u.mu.Lock()
	u.toUpload = append(u.toUpload, newUploads...)
	drained := u.uploaded
	u.uploaded = nil
	u.mu.Unlock()

	if len(newUploads) > 0 {
		u.cond.Signal()
	}
	return drained
}

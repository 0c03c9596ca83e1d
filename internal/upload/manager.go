package upload

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/ramses-go/renderer/internal/backend"
	"github.com/ramses-go/renderer/internal/frametime"
	"github.com/ramses-go/renderer/internal/ids"
	"github.com/ramses-go/renderer/internal/resource"
	"github.com/ramses-go/renderer/internal/rlog"
)

// Every this-many uploaded resources (or immediately for a resource
// larger than LargeResourceByteSizeThreshold), the manager checks the
// frame timer's upload budget and may interrupt the batch. Grounded on
// ResourceUploadingManager.cpp's NumResourcesToUploadInBetweenTimeBudgetChecks
// and LargeResourceByteSizeThreshold constants (the source does not
// expose their numeric values in the excerpted headers; these are a
// documented, reasonable choice for the same role).
const (
	NumResourcesToUploadInBetweenTimeBudgetChecks = 10
	LargeResourceByteSizeThreshold                = 2 * 1024 * 1024
)

// ShaderCache persists a compiled effect's binary so a later run can
// skip recompilation (spec §4.3's binary shader cache). Implemented by
// internal/shadercache.FileCache; nil is a legal "no cache configured"
// Manager dependency.
type ShaderCache interface {
	StoreShader(hash ids.ResourceContentHash, handle backend.Handle, source []byte) error
}

// Manager implements the Resource Uploading Manager (C4): it moves
// resources between Provided and Uploaded/Broken, evicting unused
// uploaded resources to respect a byte budget, and delegates effect
// (shader) compilation to an AsyncUploader so it never blocks the
// frame on a slow shader build. Grounded on ResourceUploadingManager.
type Manager struct {
	log *rlog.Logger

	mu sync.Mutex

	registry   *resource.Registry
	device     backend.Device
	uploader   *AsyncUploader
	shaderCache ShaderCache
	timer      *frametime.Timer

	// decompressPool fans resource decompression out across
	// max(NumCPU()-1, 1) reusable workers, the same sizing and pool
	// construction engine/scene.scene uses for its per-frame compute
	// prep fan-out.
	decompressPool worker.DynamicWorkerPool

	keepEffects bool
	cacheSize   uint64

	resourceSizes     map[ids.ResourceContentHash]uint64
	totalUploadedSize uint64

	pendingEffectUploads []EffectUpload
}

// NewManager constructs a Manager bound to registry, device, and
// uploader. cacheSize of 0 means "no caching": every unused resource
// is unloaded every call.
func NewManager(registry *resource.Registry, device backend.Device, uploader *AsyncUploader, shaderCache ShaderCache, timer *frametime.Timer, keepEffects bool, cacheSize uint64) *Manager {
	workers := max(runtime.NumCPU()-1, 1)
	return &Manager{
		log:            rlog.New("RENDERER"),
		registry:       registry,
		device:         device,
		uploader:       uploader,
		shaderCache:    shaderCache,
		timer:          timer,
		keepEffects:    keepEffects,
		cacheSize:      cacheSize,
		resourceSizes:  make(map[ids.ResourceContentHash]uint64),
		decompressPool: worker.NewDynamicWorkerPool(workers, 256, time.Second),
	}
}

// HasAnythingToUpload reports whether any resource is Provided or
// ScheduledForUpload.
func (m *Manager) HasAnythingToUpload() bool {
	for _, d := range m.registry.AllResourceDescriptors() {
		if d.Status == resource.StatusProvided || d.Status == resource.StatusScheduledForUpload {
			return true
		}
	}
	return false
}

// UploadAndUnloadPendingResources runs one pass of the six-step
// algorithm: select uploads, compute bytes to free, select unloads,
// unload, upload (with time-budget interruption), sync compiled
// effects. Grounded on
// ResourceUploadingManager::uploadAndUnloadPendingResources.
func (m *Manager) UploadAndUnloadPendingResources() {
	resourcesToUpload, sizeToUpload := m.getAndPrepareResourcesToUploadNext()
	sizeToBeFreed := m.getAmountOfMemoryToBeFreedForNewResources(sizeToUpload)

	resourcesToUnload := m.getResourcesToUnloadNext(m.keepEffects, sizeToBeFreed)

	m.unloadResources(resourcesToUnload)
	m.uploadResources(resourcesToUpload)
	m.syncEffects()
}

// Teardown unloads every remaining uploaded resource unconditionally,
// mirroring the destructor's unconditional
// getResourcesToUnloadNext(false, max) call.
func (m *Manager) Teardown() {
	resourcesToUnload := m.getResourcesToUnloadNext(false, ^uint64(0))
	m.unloadResources(resourcesToUnload)
}

// preparedUpload pairs a registry snapshot with its already-decoded
// payload, so the upload phase below never decompresses twice.
type preparedUpload struct {
	descriptor resource.Descriptor
	payload    resource.DecompressedPayload
}

// getAndPrepareResourcesToUploadNext decompresses every Provided
// resource, fanning the work out across decompressPool so a frame with
// many newly-provided resources doesn't serialize their (CPU-bound)
// decompression on a single goroutine. A WaitGroup provides the
// per-call barrier, matching engine/scene.scene's computePool fan-out:
// pool.Wait() blocks until its workers idle-exit, which is the wrong
// shape for a call that must return this call's results and no more.
func (m *Manager) getAndPrepareResourcesToUploadNext() ([]preparedUpload, uint64) {
	hashes := m.registry.AllProvided()

	var wg sync.WaitGroup
	var resultsMu sync.Mutex
	var resourcesToUpload []preparedUpload
	var totalSize uint64

	for i, h := range hashes {
		d, ok := m.registry.Get(h)
		if !ok {
			continue
		}

		wg.Add(1)
		taskID := i
		m.decompressPool.SubmitTask(worker.Task{
			ID: taskID,
			Do: func() (any, error) {
				defer wg.Done()

				payload, err := resource.Decompress(&d)
				if err != nil {
					m.log.Error("Manager: failed to decompress resource %s: %v", h, err)
					m.registry.SetStatus(h, resource.StatusBroken)
					return nil, err
				}
				d.DecompressedSize = uint64(len(payload.Bytes))

				resultsMu.Lock()
				totalSize += d.DecompressedSize
				resourcesToUpload = append(resourcesToUpload, preparedUpload{descriptor: d, payload: payload})
				resultsMu.Unlock()
				return nil, nil
			},
		})
	}
	wg.Wait()

	return resourcesToUpload, totalSize
}

// getAmountOfMemoryToBeFreedForNewResources is the three-way branch
// from ResourceUploadingManager::getAmountOfMemoryToBeFreedForNewResources.
func (m *Manager) getAmountOfMemoryToBeFreedForNewResources(sizeToUpload uint64) uint64 {
	if m.cacheSize == 0 {
		return ^uint64(0)
	}
	if m.cacheSize > m.totalUploadedSize {
		remaining := m.cacheSize - m.totalUploadedSize
		if remaining < sizeToUpload {
			return sizeToUpload - remaining
		}
		return 0
	}
	return sizeToUpload + m.totalUploadedSize - m.cacheSize
}

func (m *Manager) getResourcesToUnloadNext(keepEffects bool, sizeToBeFreed uint64) []resource.Descriptor {
	unused := m.registry.AllNotInUse()
	var toUnload []resource.Descriptor
	var sizeToUnload uint64

	for _, h := range unused {
		if sizeToUnload >= sizeToBeFreed {
			break
		}
		d, ok := m.registry.Get(h)
		if !ok || d.Status != resource.StatusUploaded {
			continue
		}
		if keepEffects && d.Type == resource.TypeEffect {
			continue
		}
		toUnload = append(toUnload, d)
		sizeToUnload += m.resourceSizes[h]
	}
	return toUnload
}

func (m *Manager) unloadResources(resources []resource.Descriptor) {
	for _, d := range resources {
		m.device.Unload(d.Type, backend.Handle(d.DeviceHandle))

		m.totalUploadedSize -= m.resourceSizes[d.Hash]
		delete(m.resourceSizes, d.Hash)

		m.registry.Remove(d.Hash)
	}
}

func (m *Manager) uploadResources(resources []preparedUpload) {
	var sizeUploaded uint64
	for i, p := range resources {
		m.uploadResource(p)
		sizeUploaded += p.descriptor.DecompressedSize

		checkTimeLimit := i%NumResourcesToUploadInBetweenTimeBudgetChecks == 0 || p.descriptor.DecompressedSize > LargeResourceByteSizeThreshold
		if checkTimeLimit && m.timer.IsTimeBudgetExceededForSection(frametime.SectionResourceUpload) {
			numUploaded := i + 1
			numRemaining := len(resources) - numUploaded
			m.log.Info("Manager: interrupted resource upload after %d resources (%d B); %d remaining", numUploaded, sizeUploaded, numRemaining)
			break
		}
	}
}

func (m *Manager) uploadResource(p preparedUpload) {
	d, payload := p.descriptor, p.payload

	if d.Type == resource.TypeEffect {
		m.mu.Lock()
		m.pendingEffectUploads = append(m.pendingEffectUploads, EffectUpload{Hash: d.Hash, Source: payload.Bytes})
		m.mu.Unlock()
		m.registry.SetStatus(d.Hash, resource.StatusScheduledForUpload)
		return
	}

	var handle backend.Handle
	switch d.Type {
	case resource.TypeTexture2D, resource.TypeTexture3D, resource.TypeTextureCube:
		handle = m.device.UploadTexture(d.Type, payload)
	case resource.TypeArrayBuffer:
		handle = m.device.UploadBuffer(backend.BufferUsageVertex, payload.Bytes)
	case resource.TypeIndexBuffer:
		handle = m.device.UploadBuffer(backend.BufferUsageIndex, payload.Bytes)
	}

	if !handle.Valid() {
		m.log.Error("Manager: failed to upload resource %s (%v)", d.Hash, d.Type)
		m.registry.SetStatus(d.Hash, resource.StatusBroken)
		return
	}

	m.resourceSizes[d.Hash] = d.DecompressedSize
	m.totalUploadedSize += d.DecompressedSize
	m.registry.SetUploaded(d.Hash, resource.DeviceHandle(handle), d.DecompressedSize)
}

func (m *Manager) syncEffects() {
	m.mu.Lock()
	pending := m.pendingEffectUploads
	m.pendingEffectUploads = nil
	m.mu.Unlock()

	uploaded := m.uploader.Sync(pending)

	for _, e := range uploaded {
		d, ok := m.registry.Get(e.Hash)
		if !ok {
			m.log.Error("Manager: syncEffects unexpected effect uploaded, hash unknown: %s", e.Hash)
			continue
		}
		if d.Status != resource.StatusScheduledForUpload {
			m.log.Error("Manager: syncEffects unexpected effect uploaded, not ScheduledForUpload: %s", e.Hash)
			continue
		}

		if e.Compiled == nil {
			m.log.Error("Manager: syncEffects failed to upload effect %s", e.Hash)
			m.registry.SetStatus(e.Hash, resource.StatusBroken)
			continue
		}

		handle := m.device.UploadCompiledShader(e.Compiled)
		if !handle.Valid() {
			m.registry.SetStatus(e.Hash, resource.StatusBroken)
			continue
		}

		m.resourceSizes[e.Hash] = d.DecompressedSize
		m.totalUploadedSize += d.DecompressedSize
		m.registry.SetUploaded(e.Hash, resource.DeviceHandle(handle), d.DecompressedSize)

		if m.shaderCache != nil {
			if err := m.shaderCache.StoreShader(e.Hash, handle, d.CompressedPayload); err != nil {
				m.log.Error("Manager: failed to store shader %s in binary cache: %v", e.Hash, err)
			}
		}
	}
}

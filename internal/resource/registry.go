// Package resource implements the Resource Registry (C2): the GPU
// resource lifecycle tracker keyed by content hash. The map-behind-a-
// mutex shape is grounded on the teacher engine's pipeline cache
// (engine/renderer/renderer.go's map[string]pipeline.Pipeline guarded
// by *sync.Mutex); the lifecycle state machine and the "registry
// order" iteration it must preserve are grounded on
// RendererResourceRegistry (original_source, referenced from
// ResourceUploadingManager.cpp).
package resource

import (
	"sync"

	"github.com/ramses-go/renderer/internal/ids"
)

// Type identifies the kind of GPU-bound resource a descriptor tracks.
type Type int

const (
	TypeEffect Type = iota
	TypeTexture2D
	TypeTexture3D
	TypeTextureCube
	TypeArrayBuffer
	TypeIndexBuffer
)

// Status is a resource descriptor's position in the upload lifecycle
// DAG: Registered -> Provided -> (ScheduledForUpload ->)? Uploaded | Broken.
type Status int

const (
	StatusRegistered Status = iota
	StatusProvided
	StatusScheduledForUpload
	StatusUploaded
	StatusBroken
)

func (s Status) String() string {
	switch s {
	case StatusRegistered:
		return "Registered"
	case StatusProvided:
		return "Provided"
	case StatusScheduledForUpload:
		return "ScheduledForUpload"
	case StatusUploaded:
		return "Uploaded"
	case StatusBroken:
		return "Broken"
	default:
		return "Unknown"
	}
}

// DeviceHandle is the device-owned handle for an uploaded resource.
// Zero is the reserved "invalid" tag.
type DeviceHandle uint64

func (h DeviceHandle) Valid() bool { return h != 0 }

// Descriptor is a registry entry for one resource.
type Descriptor struct {
	Hash             ids.ResourceContentHash
	Type             Type
	Status           Status
	CompressedPayload []byte
	DecompressedSize uint64
	DeviceHandle     DeviceHandle
	VRAMSize         uint64

	// usedBy is the set of scenes currently referencing this resource.
	// Kept as a map for O(1) add/remove; refcount is len(usedBy).
	usedBy map[ids.SceneId]struct{}
}

// RefCount returns the number of scenes currently referencing this
// resource.
func (d *Descriptor) RefCount() int { return len(d.usedBy) }

// UsedBy reports whether the given scene currently references this resource.
func (d *Descriptor) UsedBy(scene ids.SceneId) bool {
	_, ok := d.usedBy[scene]
	return ok
}

// Registry tracks every GPU-bound resource referenced by any scene
// owned by one display bundle. Accessed only by the owning bundle's
// thread (spec §5); the mutex guards against incidental cross-goroutine
// reads such as statistics reporting, not concurrent mutation.
type Registry struct {
	mu sync.Mutex

	descriptors map[ids.ResourceContentHash]*Descriptor
	// order preserves first-registration order so getAllProvided/
	// getAllNotInUse iterate in "registry order" as spec §4.4 step 3
	// requires for deterministic eviction selection.
	order []ids.ResourceContentHash

	// externalUsage marks hashes referenced by an external token outside
	// of scene usage (e.g. a pending shader-upload ticket), consulted by
	// IsInUseAnywhereElse.
	externalUsage map[ids.ResourceContentHash]int
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		descriptors:   make(map[ids.ResourceContentHash]*Descriptor),
		externalUsage: make(map[ids.ResourceContentHash]int),
	}
}

// Register adds a usage of hash by scene, creating the descriptor on
// first reference. Returns the resulting refcount.
func (r *Registry) Register(hash ids.ResourceContentHash, typ Type, scene ids.SceneId) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descriptors[hash]
	if !ok {
		d = &Descriptor{Hash: hash, Type: typ, Status: StatusRegistered, usedBy: make(map[ids.SceneId]struct{})}
		r.descriptors[hash] = d
		r.order = append(r.order, hash)
	}
	d.usedBy[scene] = struct{}{}
	return len(d.usedBy)
}

// Unregister removes scene's usage of hash. If the resulting refcount
// is zero the descriptor becomes evictable (it is not removed here —
// eviction is chosen by the Resource Uploading Manager per frame).
// Returns the resulting refcount, or -1 if hash is unknown.
func (r *Registry) Unregister(hash ids.ResourceContentHash, scene ids.SceneId) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descriptors[hash]
	if !ok {
		return -1
	}
	delete(d.usedBy, scene)
	return len(d.usedBy)
}

// SetStatus transitions hash to the given status.
func (r *Registry) SetStatus(hash ids.ResourceContentHash, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.descriptors[hash]; ok {
		d.Status = status
	}
}

// SetUploaded marks hash Uploaded with the given device handle and
// resident byte size. Invariant (a) from spec §4.2: a resource is
// Uploaded iff its device handle is valid, so callers must never pass
// an invalid handle here (they should call SetStatus(Broken) instead).
func (r *Registry) SetUploaded(hash ids.ResourceContentHash, handle DeviceHandle, byteSize uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.descriptors[hash]; ok {
		d.Status = StatusUploaded
		d.DeviceHandle = handle
		d.VRAMSize = byteSize
	}
}

// SetProvidedPayload attaches a compressed payload to a registered
// descriptor and transitions it to Provided.
func (r *Registry) SetProvidedPayload(hash ids.ResourceContentHash, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.descriptors[hash]; ok {
		d.CompressedPayload = payload
		d.Status = StatusProvided
	}
}

// Get returns the descriptor for hash and whether it exists.
func (r *Registry) Get(hash ids.ResourceContentHash) (Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.descriptors[hash]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// Contains reports whether hash has a registry entry.
func (r *Registry) Contains(hash ids.ResourceContentHash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.descriptors[hash]
	return ok
}

// Remove deletes hash's descriptor entirely. Callers must ensure the
// resource has already been unloaded from the device.
func (r *Registry) Remove(hash ids.ResourceContentHash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.descriptors, hash)
	for i, h := range r.order {
		if h == hash {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// AllProvided returns, in registry order, the hashes whose payload has
// arrived (Status == Provided) but are not yet uploaded.
func (r *Registry) AllProvided() []ids.ResourceContentHash {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ids.ResourceContentHash
	for _, h := range r.order {
		if d := r.descriptors[h]; d.Status == StatusProvided {
			out = append(out, h)
		}
	}
	return out
}

// AllNotInUse returns, in registry order, the hashes with refcount 0.
func (r *Registry) AllNotInUse() []ids.ResourceContentHash {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ids.ResourceContentHash
	for _, h := range r.order {
		if d := r.descriptors[h]; len(d.usedBy) == 0 {
			out = append(out, h)
		}
	}
	return out
}

// MarkExternalUsage adds or removes an external (non-scene) usage
// token for hash, e.g. a pending shader-upload ticket that must keep
// the resource alive even while no scene references it yet.
func (r *Registry) MarkExternalUsage(hash ids.ResourceContentHash, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.externalUsage[hash] += delta
	if r.externalUsage[hash] <= 0 {
		delete(r.externalUsage, hash)
	}
}

// IsInUseAnywhereElse reports whether hash is referenced by scene
// usage or by an external usage token.
func (r *Registry) IsInUseAnywhereElse(hash ids.ResourceContentHash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.descriptors[hash]; ok && len(d.usedBy) > 0 {
		return true
	}
	return r.externalUsage[hash] > 0
}

// AllResourceDescriptors returns a snapshot of every descriptor,
// used for teardown-time invariant checks and statistics reporting.
func (r *Registry) AllResourceDescriptors() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, *r.descriptors[h])
	}
	return out
}

// Package backend implements the Render Backend Abstraction (C1): a
// uniform facade over a GPU device, a windowing surface, an embedded
// compositor, and a texture-upload adapter. It is grounded on the
// teacher engine's engine/renderer package (the wgpuRendererBackend
// interface and its wgpu.Device/Queue/Surface wiring) but trims it
// down to the uniform create/destroy/draw/readback contract the
// renderer core actually needs — the teacher's forward+ shadow/light
// culling pipeline machinery is specific to its own locally-authored
// game content and is out of scope here (scene graph authoring,
// spec §1 Non-goals).
package backend

import "github.com/ramses-go/renderer/internal/resource"

// Handle is a device-owned GPU resource handle. Zero is the reserved
// "invalid" tag: failure of any create/upload call returns Handle(0),
// and callers treat an invalid handle as "upload broken" (spec §4.1).
type Handle uint64

func (h Handle) Valid() bool { return h != 0 }

// BufferUsage mirrors the resource kinds that map onto GPU buffers.
type BufferUsage int

const (
	BufferUsageVertex BufferUsage = iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
)

// Rect is an integer pixel rectangle used by ReadPixels.
type Rect struct {
	X, Y, Width, Height int
}

// Device is the GPU device facet of the backend: creation and
// destruction of textures, buffers, and shaders; issuing draw calls
// for a frame already begun by the owning Surface; and reading back
// pixels from a render target.
type Device interface {
	// UploadTexture creates a GPU texture of the given kind from
	// decompressed pixel data and returns its handle, or an invalid
	// handle on failure.
	UploadTexture(kind resource.Type, payload resource.DecompressedPayload) Handle

	// UploadBuffer creates a GPU buffer from raw bytes and returns its
	// handle, or an invalid handle on failure.
	UploadBuffer(usage BufferUsage, data []byte) Handle

	// UploadShader compiles a shader program from source bytes and
	// returns its device handle, or an invalid handle on failure. This
	// is the synchronous path used by non-effect resources; effects
	// (spec's shader resource type) instead go through the async
	// uploader (C3) and arrive via UploadCompiledShader.
	UploadShader(source []byte) Handle

	// UploadCompiledShader registers an already-compiled shader program
	// (produced off-thread by the async uploader) and returns its
	// device handle.
	UploadCompiledShader(compiled CompiledShader) Handle

	// CompileShader compiles shader source into a backend-specific
	// intermediate representation, without registering it with this
	// device. Used by the async uploader's worker thread, which holds
	// its own shared-context Device (see upload.SharedContextFactory).
	CompileShader(source []byte) (CompiledShader, error)

	// Unload releases a previously uploaded resource's device-side
	// storage.
	Unload(kind resource.Type, handle Handle)

	// CreateOffscreenBuffer creates an offscreen render target of the
	// given size and sample count. Returns an invalid handle on failure
	// (e.g. exceeding device limits).
	CreateOffscreenBuffer(width, height int, sampleCount uint32) Handle

	// DestroyOffscreenBuffer releases an offscreen buffer's device storage.
	DestroyOffscreenBuffer(handle Handle)

	// ReadPixels reads back a rectangle of pixels from the given render
	// target (an offscreen buffer handle, or Handle(0) for the default
	// framebuffer) as tightly packed RGBA8 bytes.
	ReadPixels(target Handle, rect Rect) ([]byte, error)
}

// CompiledShader is an opaque backend-specific compiled shader module,
// produced by Device.CompileShader and later registered on the render
// thread's device via UploadCompiledShader.
type CompiledShader interface{}

// Surface is the windowing-surface facet of the backend: enabling and
// disabling the current GPU context (required by C3's shared-context
// handshake), batching one frame's draws, and presenting it.
type Surface interface {
	// Enable makes this surface's GPU context current on the calling
	// thread.
	Enable() error

	// Disable releases this surface's GPU context from the calling
	// thread, required before a second (shared) context can be created
	// on another thread for the async shader uploader.
	Disable() error

	// Resize reconfigures the surface for a new pixel size.
	Resize(width, height int)

	// SwapBuffers presents the frame rendered since BeginFrame/EndFrame.
	SwapBuffers()

	// SetClearColor sets the RGBA color used to clear the target at the
	// start of the next BeginFrame.
	SetClearColor(r, g, b, a float64)

	// BeginFrame acquires the next frame's render target and opens a
	// render pass encoder for the scene renderer to issue draws into.
	BeginFrame() error

	// EndFrame finishes and submits the command buffer batched since
	// BeginFrame.
	EndFrame()

	// Present swaps the frame acquired by BeginFrame to the display.
	Present()
}

// EmbeddedCompositor composes external video/surface content into a
// stream buffer. The renderer core only needs its lifecycle, not its
// video pipeline internals — a full compositor implementation is an
// external collaborator (spec §1).
type EmbeddedCompositor interface {
	HasUpdatedContent() bool
}

// TextureUploadAdapter is a pluggable strategy for how texture bytes
// reach device memory (e.g. staging buffer vs. direct write); kept as
// a seam so a platform-specific backend can override it without
// touching Device.
type TextureUploadAdapter interface {
	UploadTextureData(handle Handle, payload resource.DecompressedPayload) error
}

// Backend is the facade exposed to C4/C5/C7: a Device, a Surface, an
// EmbeddedCompositor, and a TextureUploadAdapter, matching spec §4.1.
type Backend interface {
	Device() Device
	Surface() Surface
	EmbeddedCompositor() EmbeddedCompositor
	TextureUploadAdapter() TextureUploadAdapter
}

package backend

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/ramses-go/renderer/internal/resource"
)

func TestHandleValid(t *testing.T) {
	var h Handle
	if h.Valid() {
		t.Fatalf("zero Handle should be invalid")
	}
	h = 7
	if !h.Valid() {
		t.Fatalf("nonzero Handle should be valid")
	}
}

func TestDimensionFor(t *testing.T) {
	if dimensionFor(resource.TypeTexture3D) != wgpu.TextureDimension3D {
		t.Fatalf("expected 3D dimension for TypeTexture3D")
	}
	if dimensionFor(resource.TypeTexture2D) != wgpu.TextureDimension2D {
		t.Fatalf("expected 2D dimension for TypeTexture2D")
	}
	if dimensionFor(resource.TypeTextureCube) != wgpu.TextureDimension2D {
		t.Fatalf("expected 2D dimension for TypeTextureCube")
	}
}

func TestWgpuUsageFor(t *testing.T) {
	cases := map[BufferUsage]wgpu.BufferUsage{
		BufferUsageVertex:  wgpu.BufferUsageVertex,
		BufferUsageIndex:   wgpu.BufferUsageIndex,
		BufferUsageUniform: wgpu.BufferUsageUniform,
		BufferUsageStorage: wgpu.BufferUsageStorage,
	}
	for usage, want := range cases {
		if got := wgpuUsageFor(usage); got != want {
			t.Fatalf("wgpuUsageFor(%v) = %v, want %v", usage, got, want)
		}
	}
}

func TestAlignUp(t *testing.T) {
	if alignUp(256, 256) != 256 {
		t.Fatalf("already-aligned value should be unchanged")
	}
	if alignUp(257, 256) != 512 {
		t.Fatalf("unaligned value should round up to next multiple")
	}
	if alignUp(0, 256) != 0 {
		t.Fatalf("zero should stay zero")
	}
}

func TestCompileShaderRejectsEmptySource(t *testing.T) {
	b := &WGPUBackend{}
	if _, err := b.CompileShader(nil); err == nil {
		t.Fatalf("expected error for empty shader source")
	}
}

func TestCompileShaderPackagesSource(t *testing.T) {
	b := &WGPUBackend{}
	compiled, err := b.CompileShader([]byte("@fragment fn main() {}"))
	if err != nil {
		t.Fatalf("CompileShader returned error: %v", err)
	}
	src, ok := compiled.(wgslSource)
	if !ok {
		t.Fatalf("expected wgslSource, got %T", compiled)
	}
	if src.code != "@fragment fn main() {}" {
		t.Fatalf("unexpected compiled code: %q", src.code)
	}
}

func TestUploadCompiledShaderRejectsWrongType(t *testing.T) {
	b := &WGPUBackend{shaders: make(map[Handle]*wgpu.ShaderModule)}
	if h := b.UploadCompiledShader("not a wgslSource"); h.Valid() {
		h2 := h
		_ = h2
		t.Fatalf("expected invalid handle for wrong CompiledShader type")
	}
}

func TestNullCompositorHasUpdatedContent(t *testing.T) {
	var c nullCompositor
	if c.HasUpdatedContent() {
		t.Fatalf("nullCompositor should never report updated content")
	}
}

package shadercache

import (
	"bytes"
	"testing"

	"github.com/ramses-go/renderer/internal/ids"
)

func TestFileCacheStoreAndRetrieve(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	hash := ids.ResourceContentHash{1, 2, 3}
	if c.HasBinaryShader(hash) {
		t.Fatalf("expected no cached shader before Store")
	}

	payload := []byte("compiled binary bytes")
	if err := c.StoreShader(hash, 1, payload); err != nil {
		t.Fatalf("StoreShader: %v", err)
	}

	if !c.HasBinaryShader(hash) {
		t.Fatalf("expected cached shader after Store")
	}

	got, err := c.GetBinaryShaderData(hash)
	if err != nil {
		t.Fatalf("GetBinaryShaderData: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-tripped payload mismatch: got %q want %q", got, payload)
	}
}

func TestFileCacheRemovesOnUploadFailure(t *testing.T) {
	dir := t.TempDir()
	c, _ := NewFileCache(dir)
	hash := ids.ResourceContentHash{9}
	_ = c.StoreShader(hash, 1, []byte("stale"))

	c.BinaryShaderUploaded(hash, false)

	if c.HasBinaryShader(hash) {
		t.Fatalf("expected stale cache entry removed after failed upload")
	}
}

func TestFileCacheFormatsReportedOnce(t *testing.T) {
	dir := t.TempDir()
	c, _ := NewFileCache(dir)
	if c.BinaryShaderFormatsReported() {
		t.Fatalf("expected not reported initially")
	}
	c.MarkBinaryShaderFormatsReported()
	if !c.BinaryShaderFormatsReported() {
		t.Fatalf("expected reported after Mark")
	}
}

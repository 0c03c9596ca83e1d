package scenefile

import (
	"bytes"
	"io"
	"testing"

	"github.com/ramses-go/renderer/internal/ids"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	w := NewWriter()
	h1 := ids.ResourceContentHash{1}
	h2 := ids.ResourceContentHash{2}
	w.Put(h1, 1, []byte("hello"))
	w.Put(h2, 2, []byte("world!!"))

	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	f, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	r, e, ok := f.GetEntry(h1)
	if !ok {
		t.Fatalf("expected entry for h1")
	}
	got, _ := io.ReadAll(r)
	if string(got) != "hello" {
		t.Fatalf("unexpected payload for h1: %q", got)
	}
	if e.Info != 1 {
		t.Fatalf("unexpected info for h1: %d", e.Info)
	}

	r2, _, ok := f.GetEntry(h2)
	if !ok {
		t.Fatalf("expected entry for h2")
	}
	got2, _ := io.ReadAll(r2)
	if string(got2) != "world!!" {
		t.Fatalf("unexpected payload for h2: %q", got2)
	}
}

func TestGetEntryUnknownHash(t *testing.T) {
	w := NewWriter()
	w.Put(ids.ResourceContentHash{1}, 0, []byte("x"))
	data, _ := w.Bytes()
	f, _ := Open(bytes.NewReader(data))

	if _, _, ok := f.GetEntry(ids.ResourceContentHash{99}); ok {
		t.Fatalf("expected ok=false for unknown hash")
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	data := []byte{0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}
	if _, err := Open(bytes.NewReader(data)); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestOpenRejectsUnknownVersion(t *testing.T) {
	w := NewWriter()
	w.Put(ids.ResourceContentHash{1}, 0, []byte("x"))
	data, _ := w.Bytes()
	// Corrupt the version field (bytes 4..8, little-endian).
	data[4] = 0xFF

	if _, err := Open(bytes.NewReader(data)); err == nil {
		t.Fatalf("expected error for unknown version")
	}
}

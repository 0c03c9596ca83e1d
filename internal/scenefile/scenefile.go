// Package scenefile implements the persisted scene file container
// from spec §6: a fixed header with an explicit version (unknown
// versions fail closed), a table of contents of (hash, offset, size,
// info) entries, followed by payload blobs. Grounded on the teacher
// engine's binary-layout conventions (engine/renderer/shader's
// fixed-header parsing idiom) generalized to a resource-hash-keyed
// container, using encoding/binary the way the rest of the corpus does
// for any on-disk binary layout (no third-party binary-serialization
// library appears anywhere in _examples/).
package scenefile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ramses-go/renderer/internal/ids"
)

// Magic identifies a RAMSES-compatible persisted scene file.
const Magic uint32 = 0x52414d53 // "RAMS"

// CurrentVersion is the only version this package writes. Readers
// reject any other version rather than guess at forward-compatible
// parsing, per spec §6 ("unknown versions fail closed").
const CurrentVersion uint32 = 1

// Entry is one table-of-contents record: where a resource's payload
// lives in the file and a short info tag describing its kind.
type Entry struct {
	Hash   ids.ResourceContentHash
	Offset uint64
	Size   uint64
	Info   uint32
}

// File is a parsed scene container backed by an io.ReadSeeker; payload
// bytes are read lazily via GetEntry.
type File struct {
	r       io.ReadSeeker
	version uint32
	toc     map[ids.ResourceContentHash]Entry
	order   []ids.ResourceContentHash
}

// Open parses the header and table of contents from r. It does not
// read any payload bytes.
func Open(r io.ReadSeeker) (*File, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("scenefile: seek start: %w", err)
	}

	var header struct {
		Magic      uint32
		Version    uint32
		EntryCount uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("scenefile: read header: %w", err)
	}
	if header.Magic != Magic {
		return nil, fmt.Errorf("scenefile: bad magic %#x", header.Magic)
	}
	if header.Version != CurrentVersion {
		return nil, fmt.Errorf("scenefile: unsupported version %d (want %d)", header.Version, CurrentVersion)
	}

	f := &File{r: r, version: header.Version, toc: make(map[ids.ResourceContentHash]Entry, header.EntryCount)}
	for i := uint32(0); i < header.EntryCount; i++ {
		var raw struct {
			Hash   [16]byte
			Offset uint64
			Size   uint64
			Info   uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, fmt.Errorf("scenefile: read toc entry %d: %w", i, err)
		}
		hash := ids.ResourceContentHash(raw.Hash)
		e := Entry{Hash: hash, Offset: raw.Offset, Size: raw.Size, Info: raw.Info}
		f.toc[hash] = e
		f.order = append(f.order, hash)
	}
	return f, nil
}

// GetEntry returns an io.Reader positioned at hash's payload
// (bounded to its declared size) and its TOC entry, or ok=false if
// this file has no payload for hash.
func (f *File) GetEntry(hash ids.ResourceContentHash) (io.Reader, Entry, bool) {
	e, ok := f.toc[hash]
	if !ok {
		return nil, Entry{}, false
	}
	if _, err := f.r.Seek(int64(e.Offset), io.SeekStart); err != nil {
		return nil, Entry{}, false
	}
	return io.LimitReader(f.r, int64(e.Size)), e, true
}

// Entries returns every TOC entry in file order.
func (f *File) Entries() []Entry {
	out := make([]Entry, 0, len(f.order))
	for _, h := range f.order {
		out = append(out, f.toc[h])
	}
	return out
}

// Writer builds a persisted scene file incrementally: Put appends a
// payload and records its TOC entry; Bytes finalizes the header + TOC
// + payload layout.
type Writer struct {
	entries  []Entry
	payloads [][]byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Put stages a resource's payload for inclusion in the file.
func (w *Writer) Put(hash ids.ResourceContentHash, info uint32, payload []byte) {
	w.entries = append(w.entries, Entry{Hash: hash, Size: uint64(len(payload)), Info: info})
	w.payloads = append(w.payloads, payload)
}

// Bytes serializes the header, TOC, and payload blobs in one pass,
// computing each entry's Offset as an absolute position in the file
// (the payload section starts right after the header and the TOC).
func (w *Writer) Bytes() ([]byte, error) {
	var buf bytes.Buffer

	header := struct {
		Magic      uint32
		Version    uint32
		EntryCount uint32
	}{Magic: Magic, Version: CurrentVersion, EntryCount: uint32(len(w.entries))}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("scenefile: write header: %w", err)
	}

	// Each TOC record is 36 bytes: a 16-byte hash, two uint64s, one uint32.
	offset := uint64(buf.Len() + 36*len(w.entries))
	for i := range w.entries {
		w.entries[i].Offset = offset
		offset += w.entries[i].Size

		raw := struct {
			Hash   [16]byte
			Offset uint64
			Size   uint64
			Info   uint32
		}{Hash: [16]byte(w.entries[i].Hash), Offset: w.entries[i].Offset, Size: w.entries[i].Size, Info: w.entries[i].Info}
		if err := binary.Write(&buf, binary.LittleEndian, raw); err != nil {
			return nil, fmt.Errorf("scenefile: write toc entry %d: %w", i, err)
		}
	}

	for _, p := range w.payloads {
		buf.Write(p)
	}

	return buf.Bytes(), nil
}

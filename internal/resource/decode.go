package resource

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
)

// DecompressedPayload is the decoded form of a resource's compressed
// bytes, ready for upload to the device. For buffer/effect resources
// this is simply the decompressed bytes; for texture resources it is
// RGBA pixel data plus dimensions.
type DecompressedPayload struct {
	Bytes  []byte
	Width  uint32
	Height uint32
}

// Decompress turns a descriptor's compressed payload into an
// upload-ready form; it does not modify d (callers set
// DecompressedSize from the result). Texture
// resources are decoded via the standard image package (PNG/JPEG);
// buffer and effect resources pass through unchanged — their
// "compression" is whatever the client-side scene serializer applied,
// which is out of scope here (§1 Non-goals: wire protocol design).
//
// Grounded on the teacher's common.ImportedTexture.Decode, generalized
// from a named model-file texture to an arbitrary content-addressed
// payload (no file path — resources only ever arrive as in-memory
// bytes over the command API).
func Decompress(d *Descriptor) (DecompressedPayload, error) {
	switch d.Type {
	case TypeTexture2D, TypeTexture3D, TypeTextureCube:
		return decompressTexture(d.CompressedPayload)
	default:
		return DecompressedPayload{Bytes: d.CompressedPayload}, nil
	}
}

func decompressTexture(payload []byte) (DecompressedPayload, error) {
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return DecompressedPayload{}, fmt.Errorf("resource: decode texture: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	return DecompressedPayload{
		Bytes:  rgba.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}, nil
}

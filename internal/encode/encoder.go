// Package encode adapts decoded region/associated images into on-disk
// image bytes for tools (slidecat) that need a file a viewer can open,
// as opposed to the library's own read_region contract which hands
// callers raw ARGB32 bytes directly.
package encode

import (
	"fmt"
	"image"
)

// Encoder encodes an image into a particular output format's bytes.
type Encoder interface {
	// Encode encodes an image to bytes in the output format.
	Encode(img image.Image) ([]byte, error)

	// Format returns the format name (e.g. "jpeg", "png", "webp").
	Format() string

	// FileExtension returns the appropriate file extension.
	FileExtension() string
}

// NewEncoder creates an encoder for the given format and quality.
// Quality is ignored by lossless formats (PNG).
func NewEncoder(format string, quality int) (Encoder, error) {
	switch format {
	case "jpeg", "jpg":
		return &JPEGEncoder{Quality: quality}, nil
	case "png":
		return &PNGEncoder{}, nil
	case "webp":
		return newWebPEncoder(quality)
	default:
		return nil, fmt.Errorf("unsupported output format: %q (supported: jpeg, png, webp)", format)
	}
}

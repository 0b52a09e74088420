// Package preprocess bounds a source image's pixel dimensions and byte size
// before transmission. Every accepted image is decoded, scaled so its larger
// edge fits the configured maximum, and re-encoded into the canonical output
// format (JPEG), regardless of the input format. Preprocessing is
// unconditional: normalizing every submission is simpler and more
// predictable than a byte-size cutoff.
package preprocess

import (
	"context"
	"errors"
	"fmt"
)

const (
	// DefaultMaxEdge bounds the larger pixel edge of the transmitted image.
	DefaultMaxEdge = 1024
	// DefaultQuality is the JPEG quality factor of the canonical encoding.
	DefaultQuality = 85
)

// OutputMediaType is the canonical format every preprocessed image carries.
const OutputMediaType = "image/jpeg"

// ErrDecode wraps decode failures of corrupt source data. It is the only
// failure mode this package reports for well-formed configuration.
var ErrDecode = errors.New("decode source image")

type Preprocessor struct {
	maxEdge int
	quality int
	scaler  scaler
}

type scaler interface {
	scale(ctx context.Context, input []byte, maxEdge, quality int) (data []byte, width, height int, err error)
}

func New(maxEdge, quality int) (*Preprocessor, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	s, err := newScaler()
	if err != nil {
		return nil, fmt.Errorf("build scaler: %w", err)
	}

	return &Preprocessor{
		maxEdge: maxEdge,
		quality: quality,
		scaler:  s,
	}, nil
}

// Process decodes, bounds, and re-encodes the image. The returned bytes are
// always canonical JPEG with the larger edge at most the configured maximum
// and the aspect ratio preserved.
func (p *Preprocessor) Process(ctx context.Context, input []byte) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	return p.scaler.scale(ctx, input, p.maxEdge, p.quality)
}

// boundedSize scales (w, h) proportionally so the larger edge equals maxEdge.
// Dimensions already inside the bound come back unchanged.
func boundedSize(w, h, maxEdge int) (int, int) {
	if w <= maxEdge && h <= maxEdge {
		return w, h
	}

	if w >= h {
		scaled := (h*maxEdge + w/2) / w
		if scaled < 1 {
			scaled = 1
		}
		return maxEdge, scaled
	}

	scaled := (w*maxEdge + h/2) / h
	if scaled < 1 {
		scaled = 1
	}
	return scaled, maxEdge
}

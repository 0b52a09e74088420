//go:build govips && cgo

package preprocess

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsScaler struct{}

func (govipsScaler) scale(ctx context.Context, input []byte, maxEdge, quality int) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer img.Close()

	srcW, srcH := img.Width(), img.Height()
	if srcW <= 0 || srcH <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: image has zero dimensions", ErrDecode)
	}

	dstW, dstH := boundedSize(srcW, srcH, maxEdge)
	if dstW != srcW || dstH != srcH {
		scale := float64(dstW) / float64(srcW)
		if srcH > srcW {
			scale = float64(dstH) / float64(srcH)
		}
		if err := img.Resize(scale, vips.KernelLanczos3); err != nil {
			return nil, 0, 0, fmt.Errorf("resize image: %w", err)
		}
		dstW, dstH = img.Width(), img.Height()
	}

	params := vips.NewJpegExportParams()
	params.Quality = quality
	data, _, err := img.ExportJpeg(params)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}
	return data, dstW, dstH, nil
}

package tilefetch

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"golang.org/x/image/webp"

	"github.com/csnight/contourtile/internal/demtile"
	"github.com/csnight/contourtile/internal/pipelineerr"
)

// ImageDecoder decodes PNG or WebP raster bytes into RGBA, then applies
// the elevation formula in demtile.Decode. Raw stdlib image/png handles
// PNG; golang.org/x/image/webp covers WebP, which the standard library
// has no decoder for.
type ImageDecoder struct{}

func (ImageDecoder) Decode(ctx context.Context, raw []byte, enc demtile.Encoding, w, h int) (*demtile.DemTile, error) {
	img, err := decodeImage(raw)
	if err != nil {
		return nil, pipelineerr.NewDecodeFailed("decode raster", err)
	}
	rgba := toRGBA(img, w, h)
	dem, err := demtile.Decode(rgba, w, h, enc)
	if err != nil {
		return nil, pipelineerr.NewDecodeFailed("decode elevation", err)
	}
	return dem, nil
}

func decodeImage(raw []byte) (image.Image, error) {
	if img, err := png.Decode(bytes.NewReader(raw)); err == nil {
		return img, nil
	}
	return webp.Decode(bytes.NewReader(raw))
}

// toRGBA flattens an image.Image into the 4*w*h byte layout
// demtile.Decode expects, cropping or padding to (w, h) if the decoded
// image doesn't already match.
func toRGBA(img image.Image, w, h int) []byte {
	out := make([]byte, 4*w*h)
	bounds := img.Bounds()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := 4 * (y*w + x)
			if x >= bounds.Dx() || y >= bounds.Dy() {
				continue
			}
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			out[i] = byte(r >> 8)
			out[i+1] = byte(g >> 8)
			out[i+2] = byte(b >> 8)
			out[i+3] = byte(a >> 8)
		}
	}
	return out
}

// Package heighttile implements a lazy, composable 2-D height field.
// Every transformation returns a new Sampler whose Sample method calls
// back into its source; Materialize is the only operation that allocates
// proportional to area. See spec section 4.2.
package heighttile

import (
	"fmt"
	"math"

	"github.com/csnight/contourtile/internal/demtile"
)

// Sampler is a virtual 2-D height field. Coordinates may be negative or
// exceed Width/Height when the tile is a composition; Sample returns NaN
// for invalid or undefined positions.
type Sampler interface {
	Sample(x, y int) float32
	Width() int
	Height() int
}

func nan() float32 { return float32(math.NaN()) }

func isNaN(v float32) bool { return math.IsNaN(float64(v)) }

// rawTile wraps a decoded DemTile.
type rawTile struct {
	dem *demtile.DemTile
}

// FromRaw wraps a decoded DemTile as a Sampler; out-of-range or invalid
// (NaN or outside the valid elevation band) samples read as NaN.
func FromRaw(dem *demtile.DemTile) Sampler {
	return &rawTile{dem: dem}
}

func (r *rawTile) Width() int  { return r.dem.Width }
func (r *rawTile) Height() int { return r.dem.Height }

func (r *rawTile) Sample(x, y int) float32 {
	return r.dem.At(x, y)
}

// neighborStitch composes nine sibling tiles (row-major nw,n,ne,w,c,e,sw,s,se)
// into one virtual grid shaped like the center tile.
type neighborStitch struct {
	neighbors [9]Sampler // index order: nw,n,ne,w,c,e,sw,s,se
	w, h      int
}

// ErrMissingCenter is returned by CombineNeighbors when the center tile is absent.
var ErrMissingCenter = fmt.Errorf("heighttile: missing center tile")

// CombineNeighbors stitches the nine sibling tiles into one virtual grid.
// Missing (nil) neighbors sample as NaN. nine is ordered nw,n,ne,w,c,e,sw,s,se.
func CombineNeighbors(nine [9]Sampler) (Sampler, error) {
	center := nine[4]
	if center == nil {
		return nil, ErrMissingCenter
	}
	return &neighborStitch{neighbors: nine, w: center.Width(), h: center.Height()}, nil
}

func (n *neighborStitch) Width() int  { return n.w }
func (n *neighborStitch) Height() int { return n.h }

func (n *neighborStitch) Sample(x, y int) float32 {
	w, h := n.w, n.h
	if x < -w || x >= 2*w || y < -h || y >= 2*h {
		return nan()
	}
	colRegion, localX := region(x, w)
	rowRegion, localY := region(y, h)
	idx := (rowRegion+1)*3 + (colRegion + 1)
	neighbor := n.neighbors[idx]
	if neighbor == nil {
		return nan()
	}
	return neighbor.Sample(localX, localY)
}

// region classifies a composed coordinate into {-1,0,1} relative to a
// tile of the given size, and returns the local coordinate within that
// region's tile.
func region(v, size int) (region, local int) {
	switch {
	case v < 0:
		return -1, v + size
	case v >= size:
		return 1, v - size
	default:
		return 0, v
	}
}

// splitTile is a sub-quadrant crop-and-translate view of a source tile.
type splitTile struct {
	src        Sampler
	w, h       int
	offX, offY int
}

// Split crops the (subx, suby) cell of a 2^subz x 2^subz subdivision of
// the source tile. Requires subz >= 0 and subx, suby < 2^subz.
func Split(src Sampler, subz, subx, suby int) (Sampler, error) {
	if subz < 0 {
		return nil, fmt.Errorf("heighttile: split requires subz >= 0, got %d", subz)
	}
	div := 1 << subz
	if subx < 0 || subx >= div || suby < 0 || suby >= div {
		return nil, fmt.Errorf("heighttile: split requires 0 <= subx,suby < %d, got (%d,%d)", div, subx, suby)
	}
	w := src.Width() >> subz
	h := src.Height() >> subz
	return &splitTile{src: src, w: w, h: h, offX: subx * w, offY: suby * h}, nil
}

func (s *splitTile) Width() int  { return s.w }
func (s *splitTile) Height() int { return s.h }

func (s *splitTile) Sample(x, y int) float32 {
	return s.src.Sample(x+s.offX, y+s.offY)
}

// subsampledTile upsamples by treating samples as pixel centers and
// bilinearly interpolating with NaN-skip.
type subsampledTile struct {
	src    Sampler
	factor int
	w, h   int
}

// SubsamplePixelCenters upsamples src by factor using bilinear
// interpolation between pixel centers, skipping NaN operands.
func SubsamplePixelCenters(src Sampler, factor int) Sampler {
	if factor == 1 {
		return src
	}
	return &subsampledTile{src: src, factor: factor, w: src.Width() * factor, h: src.Height() * factor}
}

func (s *subsampledTile) Width() int  { return s.w }
func (s *subsampledTile) Height() int { return s.h }

func (s *subsampledTile) Sample(x, y int) float32 {
	f := float64(s.factor)
	u := float64(x)/f - (0.5 - 1/(2*f))
	v := float64(y)/f - (0.5 - 1/(2*f))
	u0 := int(math.Floor(u))
	v0 := int(math.Floor(v))
	fu := u - float64(u0)
	fv := v - float64(v0)

	p00 := s.src.Sample(u0, v0)
	p10 := s.src.Sample(u0+1, v0)
	p01 := s.src.Sample(u0, v0+1)
	p11 := s.src.Sample(u0+1, v0+1)

	top := lerpNaNSkip(p00, p10, fu)
	bottom := lerpNaNSkip(p01, p11, fu)
	return lerpNaNSkip(top, bottom, fv)
}

// lerpNaNSkip interpolates a toward b by fraction f, falling back to the
// non-NaN operand when one side is NaN, and to NaN when both are.
func lerpNaNSkip(a, b float32, f float64) float32 {
	aNaN, bNaN := isNaN(a), isNaN(b)
	switch {
	case aNaN && bNaN:
		return nan()
	case aNaN:
		return b
	case bNaN:
		return a
	default:
		return float32(float64(a) + (float64(b)-float64(a))*f)
	}
}

// averagedTile shifts from pixel-center to pixel-corner reference by
// averaging valid samples in a neighborhood around each output vertex.
type averagedTile struct {
	src    Sampler
	radius int
	w, h   int
}

// AveragePixelCentersToGrid produces a (w+1)x(h+1) grid of pixel-corner
// values, each the average of the valid pixel-center samples in a
// 2*radius x 2*radius neighborhood. A corner with no valid samples is NaN.
func AveragePixelCentersToGrid(src Sampler, radius int) Sampler {
	return &averagedTile{src: src, radius: radius, w: src.Width() + 1, h: src.Height() + 1}
}

func (a *averagedTile) Width() int  { return a.w }
func (a *averagedTile) Height() int { return a.h }

func (a *averagedTile) Sample(gx, gy int) float32 {
	r := a.radius
	var sum float64
	var count int
	for dy := -r; dy < r; dy++ {
		for dx := -r; dx < r; dx++ {
			v := a.src.Sample(gx+dx, gy+dy)
			if isNaN(v) {
				continue
			}
			sum += float64(v)
			count++
		}
	}
	if count == 0 {
		return nan()
	}
	return float32(sum / float64(count))
}

// scaledTile multiplies every sample by a constant, preserving NaN.
type scaledTile struct {
	src Sampler
	m   float64
}

// ScaleElevation multiplies every sample by m (identity when m == 1).
func ScaleElevation(src Sampler, m float64) Sampler {
	if m == 1 {
		return src
	}
	return &scaledTile{src: src, m: m}
}

func (s *scaledTile) Width() int  { return s.src.Width() }
func (s *scaledTile) Height() int { return s.src.Height() }

func (s *scaledTile) Sample(x, y int) float32 {
	v := s.src.Sample(x, y)
	if isNaN(v) {
		return v
	}
	return float32(float64(v) * s.m)
}

// materializedTile is a dense snapshot of a padded region of a source
// tile; Sample becomes a plain array read.
type materializedTile struct {
	w, h, buffer int
	data         []float32
}

// Materialize snapshots src over [-buffer, w+buffer) x [-buffer, h+buffer)
// into a dense array, replacing the sample function with an array lookup.
// This is the only operation that allocates proportional to area, and it
// is how the pipeline bounds the otherwise-exponential recomputation cost
// of a deep lazy composition.
func Materialize(src Sampler, buffer int) Sampler {
	w, h := src.Width(), src.Height()
	stride := w + 2*buffer
	rows := h + 2*buffer
	data := make([]float32, stride*rows)
	i := 0
	for y := -buffer; y < h+buffer; y++ {
		for x := -buffer; x < w+buffer; x++ {
			data[i] = src.Sample(x, y)
			i++
		}
	}
	return &materializedTile{w: w, h: h, buffer: buffer, data: data}
}

func (m *materializedTile) Width() int  { return m.w }
func (m *materializedTile) Height() int { return m.h }

func (m *materializedTile) Sample(x, y int) float32 {
	stride := m.w + 2*m.buffer
	col := x + m.buffer
	row := y + m.buffer
	if col < 0 || row < 0 || col >= stride || row >= m.h+2*m.buffer {
		return nan()
	}
	return m.data[row*stride+col]
}

// Package tilekey implements the (z, x, y) tile-coordinate math the
// pipeline needs: horizontal wraparound, vertical clipping, and overzoom
// resolution, per spec section 3 (TileKey) and section 4.6 step 3.
//
// It wraps github.com/paulmach/orb/maptile.Tile, the same tile-coordinate
// type the teacher uses in tile.go, rather than reinventing (z, x, y)
// arithmetic from scratch.
package tilekey

import "github.com/paulmach/orb/maptile"

// Key is a tile coordinate. It wraps maptile.Tile to add the wrap/clip
// helpers the contour pipeline needs that maptile doesn't provide.
type Key struct {
	T maptile.Tile
}

// New constructs a Key from integer z, x, y.
func New(z, x, y int) Key {
	return Key{T: maptile.New(uint32(x), uint32(y), maptile.Zoom(z))}
}

func (k Key) Z() int { return int(k.T.Z) }
func (k Key) X() int { return int(k.T.X) }
func (k Key) Y() int { return int(k.T.Y) }

// dim returns 2^z, the number of tiles per side at zoom z.
func dim(z int) int { return 1 << uint(z) }

// WrapX wraps the key's x coordinate into [0, 2^z), per spec section 3
// ("tiles wrap horizontally at x (modulo 2^z)").
func (k Key) WrapX() Key {
	d := dim(k.Z())
	x := k.X() % d
	if x < 0 {
		x += d
	}
	return New(k.Z(), x, k.Y())
}

// InRange reports whether the key's y coordinate falls within the valid
// [0, 2^z) band; tiles outside it are treated as missing, not wrapped.
func (k Key) InRange() bool {
	d := dim(k.Z())
	return k.Y() >= 0 && k.Y() < d
}

// Neighbor returns the key offset by (di, dj) in x and y, with x wrapped
// and y left unclipped (callers check InRange separately, since an
// out-of-range neighbor is "missing", not an error).
func (k Key) Neighbor(di, dj int) Key {
	return New(k.Z(), k.X()+di, k.Y()+dj).WrapX()
}

// Overzoom resolves the source tile and sub-quadrant for serving zoom z
// from a source no higher than maxzoom, per spec section 4.6 step 3:
// srcZ = min(z-overzoom, maxzoom), then the source tile covering (x,y)
// at srcZ and the subdivision depth between srcZ and z.
func Overzoom(z, x, y, overzoom, maxzoom int) (src Key, subZ int) {
	srcZ := z - overzoom
	if srcZ > maxzoom {
		srcZ = maxzoom
	}
	subZ = z - srcZ
	div := dim(subZ)
	return New(srcZ, x/div, y/div), subZ
}

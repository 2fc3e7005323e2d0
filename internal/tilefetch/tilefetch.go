// Package tilefetch defines the raster tile fetch/decode interfaces the
// pipeline consumes (spec section 6, "external collaborators specified
// only at their interface") plus concrete backends grounded on the
// teacher's HTTP, MBTiles, and MySQL tile-store code.
package tilefetch

import (
	"context"
	"time"

	"github.com/csnight/contourtile/internal/demtile"
)

// FetchResult is a fetched tile's raw bytes plus optional HTTP-style
// caching metadata.
type FetchResult struct {
	Bytes        []byte
	Expires      *time.Time
	CacheControl string
}

// Fetcher retrieves the raw bytes of a raster tile at (z, x, y).
// Failures are surfaced verbatim to the caller (spec section 6).
type Fetcher interface {
	Fetch(ctx context.Context, z, x, y int) (FetchResult, error)
}

// Decoder turns fetched bytes into a row-major elevation grid.
type Decoder interface {
	Decode(ctx context.Context, bytes []byte, enc demtile.Encoding, w, h int) (*demtile.DemTile, error)
}

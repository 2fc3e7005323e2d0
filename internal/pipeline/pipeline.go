// Package pipeline wires the cache, fetch, decode, height-field, tracing
// and encoding layers into one request path: FetchContourTile turns a
// tile coordinate and a set of options into MVT bytes, per spec
// section 4.6.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/csnight/contourtile/internal/demtile"
	"github.com/csnight/contourtile/internal/heighttile"
	"github.com/csnight/contourtile/internal/isoline"
	"github.com/csnight/contourtile/internal/mvt"
	"github.com/csnight/contourtile/internal/options"
	"github.com/csnight/contourtile/internal/pipelineerr"
	"github.com/csnight/contourtile/internal/tilecache"
	"github.com/csnight/contourtile/internal/tilefetch"
	"github.com/csnight/contourtile/internal/tilekey"
)

// neighborOffsets is the nw,n,ne,w,c,e,sw,s,se fetch order CombineNeighbors
// expects.
var neighborOffsets = [9][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {0, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// Pipeline holds the source-invariant pieces of a contour tile service: a
// raster fetcher/decoder pair, the source's zoom ceiling and raw encoding,
// and the three caches spec section 4.5/4.6 layers on top of them.
type Pipeline struct {
	Fetcher  tilefetch.Fetcher
	Decoder  tilefetch.Decoder
	Encoding demtile.Encoding
	MaxZoom  int
	RasterW  int
	RasterH  int
	Log      logrus.FieldLogger

	rawCache     *tilecache.Cache[string, []byte]
	gridCache    *tilecache.Cache[string, heighttile.Sampler]
	contourCache *tilecache.Cache[string, []byte]
}

// New constructs a Pipeline from a GlobalContourOptions and a
// fetcher/decoder pair, sizing all three caches to cacheSize per spec
// section 6 ("CacheSize" governs the tile-level caches uniformly).
func New(fetcher tilefetch.Fetcher, decoder tilefetch.Decoder, g options.GlobalContourOptions, rasterW, rasterH int) *Pipeline {
	return &Pipeline{
		Fetcher:      fetcher,
		Decoder:      decoder,
		Encoding:     demtile.Encoding(g.Encoding),
		MaxZoom:      g.MaxZoom,
		RasterW:      rasterW,
		RasterH:      rasterH,
		Log:          logrus.StandardLogger(),
		rawCache:     tilecache.New[string, []byte](g.CacheSize),
		gridCache:    tilecache.New[string, heighttile.Sampler](g.CacheSize),
		contourCache: tilecache.New[string, []byte](g.CacheSize),
	}
}

// FetchContourTile renders the (z, x, y) contour tile for opts, per spec
// section 4.6 steps 1-10.
func (p *Pipeline) FetchContourTile(ctx context.Context, z, x, y int, opts options.ContourOptions) ([]byte, error) {
	if len(opts.Levels) == 0 {
		return []byte{}, nil
	}

	cacheKey := fmt.Sprintf("%d/%d/%d?%s", z, x, y, options.EncodeContourOptions(opts))
	out, err := p.contourCache.Get(ctx, cacheKey, func(ctx context.Context, _ string) ([]byte, error) {
		return p.renderTile(ctx, z, x, y, opts)
	})
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(out))
	copy(cp, out)
	return cp, nil
}

// renderTile is the cache-miss path: fetch the nine neighbor height
// fields, stitch, subsample to a usable resolution, trace contours, and
// encode them as MVT bytes.
func (p *Pipeline) renderTile(ctx context.Context, z, x, y int, opts options.ContourOptions) ([]byte, error) {
	src, subZ := tilekey.Overzoom(z, x, y, opts.Overzoom, p.MaxZoom)
	div := 1 << uint(subZ)
	subX, subY := x%div, y%div

	g, gctx := errgroup.WithContext(ctx)
	var nine [9]heighttile.Sampler
	for i, off := range neighborOffsets {
		i, off := i, off
		g.Go(func() error {
			s, err := p.fetchDem(gctx, src, off[0], off[1], subZ, subX, subY)
			if err != nil {
				return err
			}
			nine[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stitched, err := heighttile.CombineNeighbors(nine)
	if err != nil {
		// Missing center tile: an empty vector tile is a successful
		// response, not a fetch error, per spec section 7.
		return mvt.Encode(nil)
	}

	tile := subsampleToThreshold(stitched, opts.SubsampleBelow)
	aligned := heighttile.Materialize(
		heighttile.ScaleElevation(heighttile.AveragePixelCentersToGrid(tile, 1), opts.Multiplier),
		1,
	)

	interval := opts.Levels[0]
	contours := isoline.Trace(aligned, interval, opts.Extent, opts.Buffer)
	features := buildFeatures(contours, opts)

	layer := mvt.Layer{Name: opts.ContourLayer, Extent: uint32(opts.Extent), Features: features}
	return mvt.Encode([]mvt.Layer{layer})
}

// subsampleToThreshold implements spec section 4.6 step 6 and the section
// 9 "subsample loop" open question exactly as resolved: if the stitched
// tile already meets the resolution floor, materialize it once with a
// 2-pixel buffer; otherwise repeatedly double the resolution (subsample,
// then materialize with buffer 2) until it does.
func subsampleToThreshold(src heighttile.Sampler, subsampleBelow int) heighttile.Sampler {
	tile := src
	if tile.Width() >= subsampleBelow {
		return heighttile.Materialize(tile, 2)
	}
	for tile.Width() < subsampleBelow {
		tile = heighttile.Materialize(heighttile.SubsamplePixelCenters(tile, 2), 2)
	}
	return tile
}

// fetchDem resolves one of the nine stitch neighbors: wraps x, checks the
// y range, and otherwise goes through the grid and raw-byte caches before
// splitting out the requested sub-quadrant. An out-of-range neighbor or a
// fetch/decode failure both read as a missing (nil) contribution rather
// than a hard error; only cancellation of ctx itself propagates as an
// error, since a single absent neighbor is routine at coverage edges.
func (p *Pipeline) fetchDem(ctx context.Context, src tilekey.Key, di, dj, subZ, subX, subY int) (heighttile.Sampler, error) {
	nk := src.Neighbor(di, dj)
	if !nk.InRange() {
		return nil, nil
	}

	gridKey := fmt.Sprintf("%d/%d/%d:%s", nk.Z(), nk.X(), nk.Y(), p.Encoding)
	grid, err := p.gridCache.Get(ctx, gridKey, func(ctx context.Context, _ string) (heighttile.Sampler, error) {
		rawKey := fmt.Sprintf("%d/%d/%d", nk.Z(), nk.X(), nk.Y())
		raw, err := p.rawCache.Get(ctx, rawKey, func(ctx context.Context, _ string) ([]byte, error) {
			res, err := p.Fetcher.Fetch(ctx, nk.Z(), nk.X(), nk.Y())
			if err != nil {
				return nil, err
			}
			return res.Bytes, nil
		})
		if err != nil {
			return nil, err
		}
		dem, err := p.Decoder.Decode(ctx, raw, p.Encoding, p.RasterW, p.RasterH)
		if err != nil {
			return nil, err
		}
		return heighttile.FromRaw(dem), nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, pipelineerr.NewCanceled(ctx.Err())
		}
		p.Log.WithError(err).WithField("tile", fmt.Sprintf("%d/%d/%d", nk.Z(), nk.X(), nk.Y())).
			Debug("neighbor fetch failed, treating as missing")
		return nil, nil
	}

	return heighttile.Split(grid, subZ, subX, subY)
}

// buildFeatures turns the isoline tracer's elevation-keyed polyline map
// into MVT features, tagging each with its elevation and level index
// (spec section 4.6 step 9: the greatest i such that ele is a multiple of
// Levels[i], else 0). Elevations are visited in sorted order, and the
// tracer itself guarantees a stable polyline order within each elevation,
// so repeated calls with the same input produce byte-identical output.
func buildFeatures(contours map[float64][]isoline.Polyline, opts options.ContourOptions) []mvt.Feature {
	elevations := make([]float64, 0, len(contours))
	for ele := range contours {
		elevations = append(elevations, ele)
	}
	sort.Float64s(elevations)

	features := make([]mvt.Feature, 0, len(contours))
	for _, ele := range elevations {
		geometry := make([][]float64, 0, len(contours[ele]))
		for _, pl := range contours[ele] {
			geometry = append(geometry, []float64(pl))
		}
		features = append(features, mvt.Feature{
			Type:     mvt.GeomLineString,
			Geometry: geometry,
			Properties: map[string]any{
				opts.ElevationKey: elevationValue(ele),
				opts.LevelKey:     int64(levelFor(ele, opts.Levels)),
			},
		})
	}
	return features
}

// elevationValue carries a whole-number elevation as an int64 so it
// encodes through the MVT int/sint varint path, matching the {e:10}
// integer shape ordinary contour levels take; only a genuinely fractional
// elevation (e.g. a source with finer-than-integer vertical resolution)
// falls back to the double path.
func elevationValue(ele float64) any {
	if ele == math.Trunc(ele) {
		return int64(ele)
	}
	return ele
}

// levelFor returns the greatest index i such that ele is an exact
// multiple of levels[i], or 0 if none divide it.
func levelFor(ele float64, levels []float64) int {
	best := 0
	for i, lv := range levels {
		if lv == 0 {
			continue
		}
		if math.Mod(ele, lv) == 0 {
			best = i
		}
	}
	return best
}

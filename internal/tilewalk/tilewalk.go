// Package tilewalk enumerates the tile coordinates covering a
// longitude/latitude bounding box at a given zoom, the same antimeridian
// split and Web Mercator clamping the teacher's GenerateTiles/GetTileCount
// in tile.go use, generalized to hand out tilekey.Key values instead of
// writing into a package-global TileXyz.
package tilewalk

import (
	"math"

	"github.com/csnight/contourtile/internal/tilekey"
)

const webMercatorLatLimit = 85.05112877980659

// Bbox is a longitude/latitude bounding box in decimal degrees. West may
// exceed East, meaning the box crosses the antimeridian.
type Bbox struct {
	West, South, East, North float64
}

func clamp(b Bbox) Bbox {
	return Bbox{
		West:  math.Max(-180.0, b.West),
		South: math.Max(-webMercatorLatLimit, b.South),
		East:  math.Min(180.0, b.East),
		North: math.Min(webMercatorLatLimit, b.North),
	}
}

// split breaks an antimeridian-crossing box into two that don't.
func split(b Bbox) []Bbox {
	if b.West > b.East {
		return []Bbox{
			{West: -180.0, South: b.South, East: b.East, North: b.North},
			{West: b.West, South: b.South, East: 180.0, North: b.North},
		}
	}
	return []Bbox{b}
}

func lngLatToTile(lng, lat float64, zoom int) (x, y int) {
	n := math.Pow(2.0, float64(zoom))
	latRad := lat * math.Pi / 180.0
	x = int(math.Floor((lng + 180.0) / 360.0 * n))
	y = int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n))
	return x, y
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Count returns the number of tiles Generate would emit for bbox at
// zoom, so a caller can size a progress bar up front.
func Count(bbox Bbox, zoom int) int {
	var total int
	for _, box := range split(bbox) {
		box = clamp(box)
		llx, lly := lngLatToTile(box.West, box.South, zoom)
		urx, ury := lngLatToTile(box.East, box.North, zoom)
		if llx < 0 {
			llx = 0
		}
		if ury < 0 {
			ury = 0
		}
		cols := minInt(urx+1, 1<<uint(zoom))
		rows := minInt(lly+1, 1<<uint(zoom))
		total += (cols - llx) * (rows - ury)
	}
	return total
}

// Generate walks every tile covering bbox at zoom, sending each on out
// and closing it when done. Run it in its own goroutine, the way the
// teacher's downloadLayer consumes GenerateTiles' channel.
func Generate(bbox Bbox, zoom int, out chan<- tilekey.Key) {
	defer close(out)
	for _, box := range split(bbox) {
		box = clamp(box)
		llx, lly := lngLatToTile(box.West, box.South, zoom)
		urx, ury := lngLatToTile(box.East, box.North, zoom)
		if llx < 0 {
			llx = 0
		}
		if ury < 0 {
			ury = 0
		}
		cols := minInt(urx+1, 1<<uint(zoom))
		rows := minInt(lly+1, 1<<uint(zoom))
		for x := llx; x < cols; x++ {
			for y := ury; y < rows; y++ {
				out <- tilekey.New(zoom, x, y)
			}
		}
	}
}

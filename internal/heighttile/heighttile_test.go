package heighttile

import (
	"math"
	"testing"
)

// tile2x2 is a trivial dense Sampler over a fixed 2x2 array, used to build
// the nine-neighbor fixture in TestCombineNeighborsStitching.
type tile2x2 struct {
	data [4]float32
}

func (t *tile2x2) Width() int  { return 2 }
func (t *tile2x2) Height() int { return 2 }
func (t *tile2x2) Sample(x, y int) float32 {
	if x < 0 || y < 0 || x >= 2 || y >= 2 {
		return nan()
	}
	return t.data[y*2+x]
}

// buildNineFromSixBySix lays out a 6x6 row-major matrix (values 0..35) as
// nine 2x2 sibling tiles in nw,n,ne,w,c,e,sw,s,se order, matching the S1
// scenario in the spec.
func buildNineFromSixBySix() [9]Sampler {
	m := make([]float32, 36)
	for i := range m {
		m[i] = float32(i)
	}
	at := func(r, c int) float32 { return m[r*6+c] }
	tileAt := func(tr, tc int) Sampler {
		r0, c0 := tr*2, tc*2
		return &tile2x2{data: [4]float32{
			at(r0, c0), at(r0, c0+1),
			at(r0+1, c0), at(r0+1, c0+1),
		}}
	}
	return [9]Sampler{
		tileAt(0, 0), tileAt(0, 1), tileAt(0, 2),
		tileAt(1, 0), tileAt(1, 1), tileAt(1, 2),
		tileAt(2, 0), tileAt(2, 1), tileAt(2, 2),
	}
}

func TestCombineNeighborsStitching(t *testing.T) {
	nine := buildNineFromSixBySix()
	combined, err := CombineNeighbors(nine)
	if err != nil {
		t.Fatalf("CombineNeighbors: %v", err)
	}
	cases := []struct {
		x, y int
		want float32
	}{
		{-1, -1, 7},
		{0, -1, 8},
		{-1, 0, 13},
		{2, 2, 28},
		{0, 2, 26},
	}
	for _, c := range cases {
		got := combined.Sample(c.x, c.y)
		if got != c.want {
			t.Errorf("Sample(%d,%d) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestCombineNeighborsMissingCenter(t *testing.T) {
	var nine [9]Sampler
	if _, err := CombineNeighbors(nine); err != ErrMissingCenter {
		t.Fatalf("expected ErrMissingCenter, got %v", err)
	}
}

func TestCombineNeighborsOutOfRangeIsNaN(t *testing.T) {
	nine := buildNineFromSixBySix()
	combined, _ := CombineNeighbors(nine)
	if v := combined.Sample(-3, 0); !isNaN(v) {
		t.Errorf("expected NaN beyond +-1 tile, got %v", v)
	}
	if v := combined.Sample(0, 4); !isNaN(v) {
		t.Errorf("expected NaN beyond +-1 tile, got %v", v)
	}
}

func TestCombineNeighborsMissingNeighborIsNaN(t *testing.T) {
	nine := buildNineFromSixBySix()
	nine[0] = nil // nw
	combined, _ := CombineNeighbors(nine)
	if v := combined.Sample(-1, -1); !isNaN(v) {
		t.Errorf("expected NaN for missing neighbor, got %v", v)
	}
}

func TestAveragePixelCentersToGrid(t *testing.T) {
	nine := buildNineFromSixBySix()
	combined, _ := CombineNeighbors(nine)
	avg := AveragePixelCentersToGrid(combined, 1)
	if avg.Width() != 3 || avg.Height() != 3 {
		t.Fatalf("got shape %dx%d want 3x3", avg.Width(), avg.Height())
	}
	if got := avg.Sample(0, 0); got != 10.5 {
		t.Errorf("Sample(0,0) = %v want 10.5", got)
	}
	if got := avg.Sample(2, 2); got != 24.5 {
		t.Errorf("Sample(2,2) = %v want 24.5", got)
	}
}

func TestAverageAllNaNNeighborhoodIsNaN(t *testing.T) {
	src := &tile2x2{data: [4]float32{nan(), nan(), nan(), nan()}}
	avg := AveragePixelCentersToGrid(src, 1)
	if v := avg.Sample(0, 0); !isNaN(v) {
		t.Errorf("expected NaN, got %v", v)
	}
}

func TestAveragePartialNaNUsesOnlyValid(t *testing.T) {
	src := &tile2x2{data: [4]float32{2, nan(), nan(), nan()}}
	avg := AveragePixelCentersToGrid(src, 1)
	if v := avg.Sample(0, 0); v != 2 {
		t.Errorf("expected 2 (only valid sample), got %v", v)
	}
}

func TestSplitCorrectness(t *testing.T) {
	nine := buildNineFromSixBySix()
	combined, _ := CombineNeighbors(nine)
	// split z=1 => div=2, each quadrant is 1x1 of the 2x2 center tile.
	q, err := Split(combined, 1, 1, 0)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if q.Width() != 1 || q.Height() != 1 {
		t.Fatalf("got shape %dx%d want 1x1", q.Width(), q.Height())
	}
	want := combined.Sample(1, 0)
	if got := q.Sample(0, 0); got != want {
		t.Errorf("Sample(0,0) = %v want %v", got, want)
	}
}

func TestSplitRejectsInvalidArgs(t *testing.T) {
	src := &tile2x2{}
	if _, err := Split(src, -1, 0, 0); err == nil {
		t.Error("expected error for negative subz")
	}
	if _, err := Split(src, 1, 2, 0); err == nil {
		t.Error("expected error for subx out of range")
	}
}

func TestScaleElevationPreservesNaN(t *testing.T) {
	src := &tile2x2{data: [4]float32{1, nan(), 3, 4}}
	scaled := ScaleElevation(src, 2)
	if v := scaled.Sample(0, 0); v != 2 {
		t.Errorf("Sample(0,0) = %v want 2", v)
	}
	if v := scaled.Sample(1, 0); !isNaN(v) {
		t.Errorf("expected NaN preserved, got %v", v)
	}
}

func TestScaleElevationIdentity(t *testing.T) {
	src := &tile2x2{data: [4]float32{1, 2, 3, 4}}
	if ScaleElevation(src, 1) != src {
		t.Error("expected identity Sampler when m == 1")
	}
}

func TestSubsamplePixelCentersBilinear(t *testing.T) {
	src := &tile2x2{data: [4]float32{0, 10, 0, 10}}
	up := SubsamplePixelCenters(src, 2)
	if up.Width() != 4 || up.Height() != 4 {
		t.Fatalf("got shape %dx%d want 4x4", up.Width(), up.Height())
	}
	// At factor 2, output (1,y) maps to u=1/2-(0.5-0.25)=0.25 -> between
	// source columns 0 and 1, so a value strictly between 0 and 10.
	v := up.Sample(1, 1)
	if math.IsNaN(float64(v)) || v <= 0 || v >= 10 {
		t.Errorf("Sample(1,1) = %v, want strictly between 0 and 10", v)
	}
}

func TestMaterializeMatchesSource(t *testing.T) {
	nine := buildNineFromSixBySix()
	combined, _ := CombineNeighbors(nine)
	mat := Materialize(combined, 1)
	for y := -1; y < 3; y++ {
		for x := -1; x < 3; x++ {
			want := combined.Sample(x, y)
			got := mat.Sample(x, y)
			if isNaN(want) != isNaN(got) || (!isNaN(want) && want != got) {
				t.Errorf("Sample(%d,%d) = %v want %v", x, y, got, want)
			}
		}
	}
}

func TestMaterializeOutsideBufferIsNaN(t *testing.T) {
	nine := buildNineFromSixBySix()
	combined, _ := CombineNeighbors(nine)
	mat := Materialize(combined, 1)
	if v := mat.Sample(-2, 0); !isNaN(v) {
		t.Errorf("expected NaN outside materialized window, got %v", v)
	}
}

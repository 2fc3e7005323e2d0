// Package isoline implements a single-pass marching-squares variant that
// traces contours for every elevation threshold simultaneously, per spec
// section 4.3.
package isoline

import (
	"math"
	"sort"

	"github.com/csnight/contourtile/internal/heighttile"
)

// Polyline is a flat x0,y0,x1,y1,... sequence of MVT-space float
// coordinates. Rounding to integers happens only at the encoder boundary.
type Polyline []float64

// edge names one of a cell's four sides, encoded per spec section 4.3 as
// a (col-offset, row-offset) pair local to the cell.
type edge struct{ dx, dy int }

var (
	edgeLeft   = edge{0, 1}
	edgeTop    = edge{1, 0}
	edgeRight  = edge{2, 1}
	edgeBottom = edge{1, 2}
)

type segment struct{ start, end edge }

// caseTable is the fixed 16-entry marching-squares table, indexed by
// (tl<<3 | tr<<2 | br<<1 | bl). Cases 5 and 10 are the ambiguous saddles;
// each resolves to two disjoint segments that leave the saddle
// unconnected, matching the spec's required deterministic resolution.
var caseTable = [16][]segment{
	0:  nil,
	1:  {{edgeBottom, edgeLeft}},
	2:  {{edgeRight, edgeBottom}},
	3:  {{edgeRight, edgeLeft}},
	4:  {{edgeTop, edgeRight}},
	5:  {{edgeTop, edgeRight}, {edgeBottom, edgeLeft}},
	6:  {{edgeTop, edgeBottom}},
	7:  {{edgeTop, edgeLeft}},
	8:  {{edgeLeft, edgeTop}},
	9:  {{edgeBottom, edgeTop}},
	10: {{edgeLeft, edgeTop}, {edgeRight, edgeBottom}},
	11: {{edgeRight, edgeTop}},
	12: {{edgeLeft, edgeRight}},
	13: {{edgeBottom, edgeRight}},
	14: {{edgeLeft, edgeBottom}},
	15: nil,
}

type point struct{ x, y float64 }

type fragment struct {
	startID, endID int64
	pts            []point
}

type thresholdState struct {
	byStart map[int64]*fragment
	byEnd   map[int64]*fragment
	done    []*fragment // closed rings and, eventually, flushed open fragments
}

func newThresholdState() *thresholdState {
	return &thresholdState{byStart: map[int64]*fragment{}, byEnd: map[int64]*fragment{}}
}

// Trace extracts isolines for every elevation threshold that is a
// multiple of interval, across the full range of values present in tile.
// extent is the MVT coordinate scale; buffer is the pixel overlap into
// neighboring cells to include in the swept region.
func Trace(tile heighttile.Sampler, interval float64, extent, buffer int) map[float64][]Polyline {
	w, h := tile.Width(), tile.Height()
	result := map[float64][]Polyline{}
	if w < 2 || h < 2 || interval <= 0 {
		return result
	}
	mul := float64(extent) / float64(w-1)
	// states is keyed by the integer multiple of interval, not the
	// accumulated float threshold: two cells can reach the "same" level by
	// different float arithmetic (a multiplication for the first threshold
	// in a cell's sweep, repeated addition thereafter) and land on
	// bit-different values for what should be one level, splitting a single
	// contour into never-joined fragments. Keying by k and always computing
	// t = k*interval keeps every cell's sweep over a given level landing in
	// the same thresholdState.
	states := map[int64]*thresholdState{}

	for r := 1 - buffer; r < h+buffer; r++ {
		for c := 1 - buffer; c < w+buffer; c++ {
			tl := tile.Sample(c-1, r-1)
			tr := tile.Sample(c, r-1)
			bl := tile.Sample(c-1, r)
			br := tile.Sample(c, r)
			if isNaN(tl) || isNaN(tr) || isNaN(bl) || isNaN(br) {
				continue
			}
			lo := minOf4(tl, tr, bl, br)
			hi := maxOf4(tl, tr, bl, br)
			if lo == hi {
				continue
			}
			kFirst := int64(math.Ceil(float64(lo) / interval))
			for k := kFirst; float64(k)*interval <= float64(hi); k++ {
				t := float64(k) * interval
				caseIdx := classify(tl, tr, bl, br, t)
				segs := caseTable[caseIdx]
				if len(segs) == 0 {
					continue
				}
				st := states[k]
				if st == nil {
					st = newThresholdState()
					states[k] = st
				}
				for _, seg := range segs {
					sID, sPt := edgePoint(seg.start, c, r, w, tl, tr, bl, br, t, mul)
					eID, ePt := edgePoint(seg.end, c, r, w, tl, tr, bl, br, t, mul)
					addSegment(st, sID, sPt, eID, ePt)
				}
			}
		}
	}

	keys := make([]int64, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		st := states[k]

		// Flush the remaining open fragments in a stable order: ranging
		// over byStart directly would make the within-feature polyline
		// order (and so the encoded tile bytes) vary run to run.
		startIDs := make([]int64, 0, len(st.byStart))
		for id := range st.byStart {
			startIDs = append(startIDs, id)
		}
		sort.Slice(startIDs, func(i, j int) bool { return startIDs[i] < startIDs[j] })
		for _, id := range startIDs {
			f := st.byStart[id]
			if len(f.pts) == 0 {
				continue
			}
			st.done = append(st.done, f)
		}

		lines := make([]Polyline, 0, len(st.done))
		for _, f := range st.done {
			lines = append(lines, flatten(f.pts))
		}
		if len(lines) > 0 {
			result[float64(k)*interval] = lines
		}
	}
	return result
}

func classify(tl, tr, bl, br float32, t float64) int {
	bit := func(v float32) int {
		if float64(v) > t {
			return 1
		}
		return 0
	}
	return bit(tl)<<3 | bit(tr)<<2 | bit(br)<<1 | bit(bl)
}

// edgePoint computes the threshold-crossing point and its packed edge id
// for one side of the cell whose top-left corner is at (c-1, r-1).
func edgePoint(e edge, c, r, width int, tl, tr, bl, br float32, t, mul float64) (int64, point) {
	cellCol, cellRow := c-1, r-1
	id := int64(cellCol*2+e.dx) + int64(cellRow*2+e.dy)*int64(width+1)*2

	var gx, gy float64
	switch e {
	case edgeLeft:
		gx = float64(cellCol)
		gy = float64(cellRow) + lerpParam(tl, bl, t)
	case edgeTop:
		gx = float64(cellCol) + lerpParam(tl, tr, t)
		gy = float64(cellRow)
	case edgeRight:
		gx = float64(cellCol) + 1
		gy = float64(cellRow) + lerpParam(tr, br, t)
	case edgeBottom:
		gx = float64(cellCol) + lerpParam(bl, br, t)
		gy = float64(cellRow) + 1
	}
	return id, point{x: gx * mul, y: gy * mul}
}

// lerpParam returns the fractional position between a and b at which the
// threshold t is crossed, per spec section 4.3 step 5.
func lerpParam(a, b float32, t float64) float64 {
	return (t - float64(a)) / (float64(b) - float64(a))
}

// addSegment performs the fragment-joining step described in spec
// section 4.3 step 6: extend an open fragment, join two open fragments,
// close a ring, or start a new fragment.
func addSegment(st *thresholdState, sID int64, sPt point, eID int64, ePt point) {
	if f1, ok := st.byEnd[sID]; ok {
		delete(st.byEnd, sID)
		f1.pts = append(f1.pts, ePt)
		f1.endID = eID

		if f2, ok := st.byStart[eID]; ok {
			delete(st.byStart, eID)
			if f2 == f1 {
				// Ring closure: the fragment's new end coincides with its
				// own start. Emit immediately and stop tracking it.
				if len(f1.pts) >= 2 {
					st.done = append(st.done, f1)
				}
				return
			}
			delete(st.byEnd, f2.endID)
			joined := &fragment{
				startID: f1.startID,
				endID:   f2.endID,
				pts:     append(f1.pts, f2.pts[1:]...),
			}
			st.byStart[joined.startID] = joined
			st.byEnd[joined.endID] = joined
			return
		}
		st.byEnd[eID] = f1
		return
	}

	if f2, ok := st.byStart[eID]; ok {
		delete(st.byStart, eID)
		f2.pts = append([]point{sPt}, f2.pts...)
		f2.startID = sID
		st.byStart[sID] = f2
		return
	}

	f := &fragment{startID: sID, endID: eID, pts: []point{sPt, ePt}}
	st.byStart[sID] = f
	st.byEnd[eID] = f
}

func flatten(pts []point) Polyline {
	out := make(Polyline, 0, len(pts)*2)
	for _, p := range pts {
		out = append(out, p.x, p.y)
	}
	return out
}

func isNaN(v float32) bool { return math.IsNaN(float64(v)) }

func minOf4(a, b, c, d float32) float32 {
	m := a
	for _, v := range []float32{b, c, d} {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf4(a, b, c, d float32) float32 {
	m := a
	for _, v := range []float32{b, c, d} {
		if v > m {
			m = v
		}
	}
	return m
}

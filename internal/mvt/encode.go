package mvt

import (
	"encoding/json"
	"fmt"
	"math"
)

// Encode serializes a set of layers into MVT v2 wire bytes.
func Encode(layers []Layer) ([]byte, error) {
	out := &writer{}
	for _, l := range layers {
		lw, err := encodeLayer(l)
		if err != nil {
			return nil, err
		}
		out.message(3, lw) // tile-level: repeated Layer layers = 3;
	}
	return out.buf, nil
}

// valueKind tags which of the eight MVT value variants a Go value maps to.
type valueKind int

const (
	kindString valueKind = iota
	kindFloat
	kindDouble
	kindInt
	kindUint
	kindSint
	kindBool
	kindJSON
)

type taggedValue struct {
	kind valueKind
	s    string
	f32  float32
	f64  float64
	i64  int64
	u64  uint64
	b    bool
}

func classify(v any) (taggedValue, error) {
	switch t := v.(type) {
	case string:
		return taggedValue{kind: kindString, s: t}, nil
	case bool:
		return taggedValue{kind: kindBool, b: t}, nil
	case float32:
		return taggedValue{kind: kindFloat, f32: t}, nil
	case float64:
		return taggedValue{kind: kindDouble, f64: t}, nil
	case int:
		return classifySignedInt(int64(t)), nil
	case int8:
		return classifySignedInt(int64(t)), nil
	case int16:
		return classifySignedInt(int64(t)), nil
	case int32:
		return classifySignedInt(int64(t)), nil
	case int64:
		return classifySignedInt(t), nil
	case uint:
		return taggedValue{kind: kindUint, u64: uint64(t)}, nil
	case uint8:
		return taggedValue{kind: kindUint, u64: uint64(t)}, nil
	case uint16:
		return taggedValue{kind: kindUint, u64: uint64(t)}, nil
	case uint32:
		return taggedValue{kind: kindUint, u64: uint64(t)}, nil
	case uint64:
		return taggedValue{kind: kindUint, u64: t}, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return taggedValue{}, fmt.Errorf("mvt: cannot encode property value %v: %w", v, err)
		}
		return taggedValue{kind: kindJSON, s: string(b)}, nil
	}
}

// classifySignedInt splits a signed integer into the non-negative "int"
// variant (field 4, plain varint) or the negative "sint" variant (field 6,
// zigzag varint), distinguishing both from the explicitly-unsigned "uint"
// variant used for Go unsigned integer types.
func classifySignedInt(v int64) taggedValue {
	if v < 0 {
		return taggedValue{kind: kindSint, i64: v}
	}
	return taggedValue{kind: kindInt, i64: v}
}

// cacheKey returns a stable dedup key distinguishing values of different
// kinds that happen to stringify the same way.
func (tv taggedValue) cacheKey() string {
	switch tv.kind {
	case kindString:
		return "s:" + tv.s
	case kindJSON:
		return "j:" + tv.s
	case kindFloat:
		return fmt.Sprintf("f:%v", tv.f32)
	case kindDouble:
		return fmt.Sprintf("d:%v", tv.f64)
	case kindInt:
		return fmt.Sprintf("i:%v", tv.i64)
	case kindSint:
		return fmt.Sprintf("z:%v", tv.i64)
	case kindUint:
		return fmt.Sprintf("u:%v", tv.u64)
	case kindBool:
		return fmt.Sprintf("b:%v", tv.b)
	default:
		return ""
	}
}

func (tv taggedValue) encode() *writer {
	w := &writer{}
	switch tv.kind {
	case kindString:
		w.stringField(1, tv.s)
	case kindFloat:
		w.fixed32Field(2, math.Float32bits(tv.f32))
	case kindDouble:
		w.fixed64Field(3, math.Float64bits(tv.f64))
	case kindInt:
		w.varintField(4, uint64(tv.i64))
	case kindUint:
		w.varintField(5, tv.u64)
	case kindSint:
		w.varintField(6, zigzagEncode(tv.i64))
	case kindBool:
		u := uint64(0)
		if tv.b {
			u = 1
		}
		w.varintField(7, u)
	case kindJSON:
		w.stringField(8, tv.s)
	}
	return w
}

type layerTables struct {
	keyIndex   map[string]int
	keys       []string
	valueIndex map[string]int
	values     []taggedValue
}

func newLayerTables() *layerTables {
	return &layerTables{keyIndex: map[string]int{}, valueIndex: map[string]int{}}
}

func (t *layerTables) keyIdx(k string) int {
	if i, ok := t.keyIndex[k]; ok {
		return i
	}
	i := len(t.keys)
	t.keys = append(t.keys, k)
	t.keyIndex[k] = i
	return i
}

func (t *layerTables) valueIdx(tv taggedValue) int {
	ck := fmt.Sprintf("%d:%s", tv.kind, tv.cacheKey())
	if i, ok := t.valueIndex[ck]; ok {
		return i
	}
	i := len(t.values)
	t.values = append(t.values, tv)
	t.valueIndex[ck] = i
	return i
}

func encodeLayer(l Layer) (*writer, error) {
	extent := l.Extent
	if extent == 0 {
		extent = DefaultExtent
	}
	tables := newLayerTables()

	featureWriters := make([]*writer, 0, len(l.Features))
	for _, f := range l.Features {
		fw, err := encodeFeature(f, tables)
		if err != nil {
			return nil, err
		}
		featureWriters = append(featureWriters, fw)
	}

	w := &writer{}
	w.stringField(1, l.Name)
	for _, fw := range featureWriters {
		w.message(2, fw)
	}
	for _, k := range tables.keys {
		w.stringField(3, k)
	}
	for _, v := range tables.values {
		w.message(4, v.encode())
	}
	w.varintField(5, uint64(extent))
	w.varintField(15, defaultVersion)
	return w, nil
}

func encodeFeature(f Feature, tables *layerTables) (*writer, error) {
	w := &writer{}

	// Field 2: tags, even indices are key indices, odd are value indices.
	var tags []uint64
	for _, k := range sortedKeys(f.Properties) {
		v := f.Properties[k]
		if v == nil {
			continue
		}
		tv, err := classify(v)
		if err != nil {
			return nil, err
		}
		tags = append(tags, uint64(tables.keyIdx(k)), uint64(tables.valueIdx(tv)))
	}
	if len(tags) > 0 {
		tw := &writer{}
		for _, t := range tags {
			tw.varint(t)
		}
		w.bytesField(2, tw.buf)
	}

	w.varintField(3, uint64(f.Type))

	geom := encodeGeometry(f.Type, f.Geometry)
	if len(geom) > 0 {
		gw := &writer{}
		for _, c := range geom {
			gw.varint(c)
		}
		w.bytesField(4, gw.buf)
	}
	return w, nil
}

// sortedKeys returns property keys sorted for deterministic tag ordering,
// so identical inputs always serialize to identical bytes.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// simple insertion sort: property maps are small (a handful of keys).
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// encodeGeometry packs one feature's rings/parts into the MVT command
// stream. State (x, y) persists across parts of the same feature, per
// spec section 4.4.
func encodeGeometry(t GeomType, parts [][]float64) []uint64 {
	var cx, cy int64
	var cmds []uint64
	for _, part := range parts {
		n := len(part) / 2
		if n == 0 {
			continue
		}
		x0 := roundCoord(part[0])
		y0 := roundCoord(part[1])
		cmds = append(cmds, (cmdMoveTo)|(1<<3))
		cmds = append(cmds, zigzagEncode(x0-cx), zigzagEncode(y0-cy))
		cx, cy = x0, y0

		lineCount := n - 1
		if t == GeomPolygon && lineCount > 0 {
			lineCount-- // the closing edge is emitted via ClosePath, not LineTo
		}
		if lineCount > 0 {
			cmds = append(cmds, (cmdLineTo)|(uint64(lineCount)<<3))
			for i := 1; i <= lineCount; i++ {
				x := roundCoord(part[2*i])
				y := roundCoord(part[2*i+1])
				cmds = append(cmds, zigzagEncode(x-cx), zigzagEncode(y-cy))
				cx, cy = x, y
			}
		}
		if t == GeomPolygon {
			cmds = append(cmds, (cmdClosePath)|(1<<3))
		}
	}
	return cmds
}

// roundCoord rounds a float MVT coordinate to the nearest integer,
// half-away-from-zero, applied once at output per spec section 4.3/4.4.
func roundCoord(v float64) int64 {
	if v >= 0 {
		return int64(math.Floor(v + 0.5))
	}
	return int64(math.Ceil(v - 0.5))
}

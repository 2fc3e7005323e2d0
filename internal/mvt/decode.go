package mvt

import (
	"encoding/json"
	"math"
)

// Decode parses MVT v2 wire bytes back into Layers. It exists to support
// the round-trip property in spec section 8 and is not used by the
// contour pipeline, which only ever writes tiles.
func Decode(b []byte) ([]Layer, error) {
	r := &reader{buf: b}
	var layers []Layer
	for !r.done() {
		field, wt, err := r.fieldHeader()
		if err != nil {
			return nil, err
		}
		if field != 3 || wt != wireBytes {
			if err := r.skip(wt); err != nil {
				return nil, err
			}
			continue
		}
		lb, err := r.bytes()
		if err != nil {
			return nil, err
		}
		l, err := decodeLayer(lb)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func decodeLayer(b []byte) (Layer, error) {
	r := &reader{buf: b}
	var l Layer
	var keys []string
	var values []taggedValue
	var rawFeatures [][]byte

	for !r.done() {
		field, wt, err := r.fieldHeader()
		if err != nil {
			return l, err
		}
		switch {
		case field == 1 && wt == wireBytes:
			nb, err := r.bytes()
			if err != nil {
				return l, err
			}
			l.Name = string(nb)
		case field == 2 && wt == wireBytes:
			fb, err := r.bytes()
			if err != nil {
				return l, err
			}
			rawFeatures = append(rawFeatures, fb)
		case field == 3 && wt == wireBytes:
			kb, err := r.bytes()
			if err != nil {
				return l, err
			}
			keys = append(keys, string(kb))
		case field == 4 && wt == wireBytes:
			vb, err := r.bytes()
			if err != nil {
				return l, err
			}
			tv, err := decodeValue(vb)
			if err != nil {
				return l, err
			}
			values = append(values, tv)
		case field == 5 && wt == wireVarint:
			v, err := r.uvarint()
			if err != nil {
				return l, err
			}
			l.Extent = uint32(v)
		default:
			if err := r.skip(wt); err != nil {
				return l, err
			}
		}
	}

	for _, fb := range rawFeatures {
		f, err := decodeFeature(fb, keys, values)
		if err != nil {
			return l, err
		}
		l.Features = append(l.Features, f)
	}
	return l, nil
}

func decodeValue(b []byte) (taggedValue, error) {
	r := &reader{buf: b}
	var tv taggedValue
	for !r.done() {
		field, wt, err := r.fieldHeader()
		if err != nil {
			return tv, err
		}
		switch field {
		case 1:
			sb, err := r.bytes()
			if err != nil {
				return tv, err
			}
			tv = taggedValue{kind: kindString, s: string(sb)}
		case 2:
			v, err := r.fixed32()
			if err != nil {
				return tv, err
			}
			tv = taggedValue{kind: kindFloat, f32: math.Float32frombits(v)}
		case 3:
			v, err := r.fixed64()
			if err != nil {
				return tv, err
			}
			tv = taggedValue{kind: kindDouble, f64: math.Float64frombits(v)}
		case 4:
			v, err := r.uvarint()
			if err != nil {
				return tv, err
			}
			tv = taggedValue{kind: kindInt, i64: int64(v)}
		case 5:
			v, err := r.uvarint()
			if err != nil {
				return tv, err
			}
			tv = taggedValue{kind: kindUint, u64: v}
		case 6:
			v, err := r.uvarint()
			if err != nil {
				return tv, err
			}
			tv = taggedValue{kind: kindSint, i64: zigzagDecode(v)}
		case 7:
			v, err := r.uvarint()
			if err != nil {
				return tv, err
			}
			tv = taggedValue{kind: kindBool, b: v != 0}
		case 8:
			sb, err := r.bytes()
			if err != nil {
				return tv, err
			}
			tv = taggedValue{kind: kindJSON, s: string(sb)}
		default:
			if err := r.skip(wt); err != nil {
				return tv, err
			}
		}
	}
	return tv, nil
}

func (tv taggedValue) toAny() any {
	switch tv.kind {
	case kindString:
		return tv.s
	case kindJSON:
		var v any
		if err := json.Unmarshal([]byte(tv.s), &v); err == nil {
			return v
		}
		return tv.s
	case kindFloat:
		return tv.f32
	case kindDouble:
		return tv.f64
	case kindInt, kindSint:
		return tv.i64
	case kindUint:
		return tv.u64
	case kindBool:
		return tv.b
	default:
		return nil
	}
}

func decodeFeature(b []byte, keys []string, values []taggedValue) (Feature, error) {
	r := &reader{buf: b}
	var f Feature
	var tagIdx []uint64
	var geomCmds []uint64

	for !r.done() {
		field, wt, err := r.fieldHeader()
		if err != nil {
			return f, err
		}
		switch {
		case field == 2 && wt == wireBytes:
			tb, err := r.bytes()
			if err != nil {
				return f, err
			}
			tr := &reader{buf: tb}
			for !tr.done() {
				v, err := tr.uvarint()
				if err != nil {
					return f, err
				}
				tagIdx = append(tagIdx, v)
			}
		case field == 3 && wt == wireVarint:
			v, err := r.uvarint()
			if err != nil {
				return f, err
			}
			f.Type = GeomType(v)
		case field == 4 && wt == wireBytes:
			gb, err := r.bytes()
			if err != nil {
				return f, err
			}
			gr := &reader{buf: gb}
			for !gr.done() {
				v, err := gr.uvarint()
				if err != nil {
					return f, err
				}
				geomCmds = append(geomCmds, v)
			}
		default:
			if err := r.skip(wt); err != nil {
				return f, err
			}
		}
	}

	if len(tagIdx) > 0 {
		f.Properties = map[string]any{}
		for i := 0; i+1 < len(tagIdx); i += 2 {
			k := keys[tagIdx[i]]
			v := values[tagIdx[i+1]]
			f.Properties[k] = v.toAny()
		}
	}

	f.Geometry = decodeGeometry(geomCmds)
	return f, nil
}

func decodeGeometry(cmds []uint64) [][]float64 {
	var parts [][]float64
	var cur []float64
	var cx, cy int64
	i := 0
	for i < len(cmds) {
		cmdInt := cmds[i]
		i++
		op := cmdInt & 0x7
		count := cmdInt >> 3
		switch op {
		case cmdMoveTo:
			if len(cur) > 0 {
				parts = append(parts, cur)
			}
			cur = nil
			for c := uint64(0); c < count; c++ {
				dx := zigzagDecode(cmds[i])
				dy := zigzagDecode(cmds[i+1])
				i += 2
				cx += dx
				cy += dy
				cur = append(cur, float64(cx), float64(cy))
			}
		case cmdLineTo:
			for c := uint64(0); c < count; c++ {
				dx := zigzagDecode(cmds[i])
				dy := zigzagDecode(cmds[i+1])
				i += 2
				cx += dx
				cy += dy
				cur = append(cur, float64(cx), float64(cy))
			}
		case cmdClosePath:
			if len(cur) >= 2 {
				cur = append(cur, cur[0], cur[1])
			}
		}
	}
	if len(cur) > 0 {
		parts = append(parts, cur)
	}
	return parts
}

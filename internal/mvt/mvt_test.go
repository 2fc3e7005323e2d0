package mvt

import (
	"reflect"
	"testing"
)

func TestRoundTripLineStringFeature(t *testing.T) {
	layers := []Layer{
		{
			Name:   "contours",
			Extent: 4096,
			Features: []Feature{
				{
					Type:     GeomLineString,
					Geometry: [][]float64{{10, 20, 30, 40, 50, 60}},
					Properties: map[string]any{
						"ele":   int64(10),
						"level": int64(0),
						"name":  "ridge",
						"flag":  true,
					},
				},
			},
		},
	}
	b, err := Encode(layers)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d layers, want 1", len(got))
	}
	gl := got[0]
	if gl.Name != "contours" || gl.Extent != 4096 {
		t.Errorf("layer mismatch: %+v", gl)
	}
	if len(gl.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(gl.Features))
	}
	gf := gl.Features[0]
	if gf.Type != GeomLineString {
		t.Errorf("type = %v, want LineString", gf.Type)
	}
	if !reflect.DeepEqual(gf.Geometry, [][]float64{{10, 20, 30, 40, 50, 60}}) {
		t.Errorf("geometry = %v", gf.Geometry)
	}
	want := map[string]any{
		"ele":   int64(10),
		"level": int64(0),
		"name":  "ridge",
		"flag":  true,
	}
	if !reflect.DeepEqual(gf.Properties, want) {
		t.Errorf("properties = %#v, want %#v", gf.Properties, want)
	}
}

func TestNullPropertyOmitted(t *testing.T) {
	layers := []Layer{{
		Name: "l",
		Features: []Feature{{
			Type:       GeomLineString,
			Geometry:   [][]float64{{0, 0, 1, 1}},
			Properties: map[string]any{"a": nil, "b": int64(1)},
		}},
	}}
	b, err := Encode(layers)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	props := got[0].Features[0].Properties
	if _, ok := props["a"]; ok {
		t.Errorf("expected nil-valued property omitted, got %v", props)
	}
	if props["b"] != int64(1) {
		t.Errorf("b = %v, want 1", props["b"])
	}
}

func TestKeyValueDeduplication(t *testing.T) {
	layers := []Layer{{
		Name: "l",
		Features: []Feature{
			{Type: GeomLineString, Geometry: [][]float64{{0, 0, 1, 1}}, Properties: map[string]any{"ele": int64(10)}},
			{Type: GeomLineString, Geometry: [][]float64{{2, 2, 3, 3}}, Properties: map[string]any{"ele": int64(10)}},
			{Type: GeomLineString, Geometry: [][]float64{{4, 4, 5, 5}}, Properties: map[string]any{"ele": int64(20)}},
		},
	}}
	b, err := Encode(layers)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got[0].Features[0].Properties["ele"] != int64(10) || got[0].Features[1].Properties["ele"] != int64(10) {
		t.Errorf("dedup mismatch: %v", got[0].Features)
	}
	if got[0].Features[2].Properties["ele"] != int64(20) {
		t.Errorf("dedup mismatch: %v", got[0].Features[2])
	}
}

func TestJSONValueForNonPrimitive(t *testing.T) {
	layers := []Layer{{
		Name: "l",
		Features: []Feature{{
			Type:       GeomLineString,
			Geometry:   [][]float64{{0, 0, 1, 1}},
			Properties: map[string]any{"tags": []any{"a", "b"}},
		}},
	}}
	b, err := Encode(layers)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	v, ok := got[0].Features[0].Properties["tags"].([]any)
	if !ok || len(v) != 2 || v[0] != "a" || v[1] != "b" {
		t.Errorf("tags = %#v", got[0].Features[0].Properties["tags"])
	}
}

func TestNegativeIntUsesSintVariant(t *testing.T) {
	layers := []Layer{{
		Name: "l",
		Features: []Feature{{
			Type:       GeomLineString,
			Geometry:   [][]float64{{0, 0, 1, 1}},
			Properties: map[string]any{"depth": int64(-42)},
		}},
	}}
	b, err := Encode(layers)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got[0].Features[0].Properties["depth"] != int64(-42) {
		t.Errorf("depth = %v, want -42", got[0].Features[0].Properties["depth"])
	}
}

func TestDefaultExtentAppliedWhenZero(t *testing.T) {
	b, err := Encode([]Layer{{Name: "l"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got[0].Extent != DefaultExtent {
		t.Errorf("extent = %d, want %d", got[0].Extent, DefaultExtent)
	}
}

func TestFloatValueUsesFixed32Wire(t *testing.T) {
	tv := taggedValue{kind: kindFloat, f32: 1.5}
	w := tv.encode()
	if len(w.buf) != 5 {
		t.Fatalf("encoded float value length = %d, want 5 (1 tag byte + 4 raw bytes)", len(w.buf))
	}
	field, wt, err := (&reader{buf: w.buf}).fieldHeader()
	if err != nil {
		t.Fatalf("fieldHeader: %v", err)
	}
	if field != 2 || wt != wireFixed32 {
		t.Errorf("field/wireType = %d/%d, want 2/%d (fixed32, no length prefix)", field, wt, wireFixed32)
	}
}

func TestDoubleValueUsesFixed64Wire(t *testing.T) {
	tv := taggedValue{kind: kindDouble, f64: 12.5}
	w := tv.encode()
	if len(w.buf) != 9 {
		t.Fatalf("encoded double value length = %d, want 9 (1 tag byte + 8 raw bytes)", len(w.buf))
	}
	field, wt, err := (&reader{buf: w.buf}).fieldHeader()
	if err != nil {
		t.Fatalf("fieldHeader: %v", err)
	}
	if field != 3 || wt != wireFixed64 {
		t.Errorf("field/wireType = %d/%d, want 3/%d (fixed64, no length prefix)", field, wt, wireFixed64)
	}
}

func TestFractionalDoublePropertyRoundTrips(t *testing.T) {
	layers := []Layer{{
		Name: "l",
		Features: []Feature{{
			Type:       GeomLineString,
			Geometry:   [][]float64{{0, 0, 1, 1}},
			Properties: map[string]any{"slope": 12.375},
		}},
	}}
	b, err := Encode(layers)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got[0].Features[0].Properties["slope"] != 12.375 {
		t.Errorf("slope = %v, want 12.375", got[0].Features[0].Properties["slope"])
	}
}

func TestRoundCoordHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{0.5, 1}, {-0.5, -1}, {1.49, 1}, {1.5, 2}, {-1.5, -2},
	}
	for _, c := range cases {
		if got := roundCoord(c.in); got != c.want {
			t.Errorf("roundCoord(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

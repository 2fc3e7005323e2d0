package demtile

import (
	"math"
	"testing"
)

func TestDecodeMapboxFormula(t *testing.T) {
	cases := []struct {
		r, g, b byte
		want    float32
	}{
		{0, 0, 0, -10000},
		{1, 2, 3, -10000 + (65536+512+3)*0.1},
		{255, 255, 255, -10000 + (65536*255+256*255+255)*0.1},
	}
	for _, c := range cases {
		dem, err := Decode([]byte{c.r, c.g, c.b, 255}, 1, 1, Mapbox)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got := dem.Data[0]
		if math.Abs(float64(got-c.want)) > 1e-3 {
			t.Errorf("rgb(%d,%d,%d): got %v want %v", c.r, c.g, c.b, got, c.want)
		}
	}
}

func TestDecodeTerrariumFormula(t *testing.T) {
	cases := []struct {
		r, g, b byte
		want    float32
	}{
		{0, 0, 0, -32768},
		{128, 0, 0, 128*256 - 32768},
		{1, 2, 3, 256 + 2 + 3.0/256 - 32768},
	}
	for _, c := range cases {
		dem, err := Decode([]byte{c.r, c.g, c.b, 255}, 1, 1, Terrarium)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got := dem.Data[0]
		if math.Abs(float64(got-c.want)) > 1e-3 {
			t.Errorf("rgb(%d,%d,%d): got %v want %v", c.r, c.g, c.b, got, c.want)
		}
	}
}

func TestDecodeDimensionMismatch(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3, 4}, 2, 2, Terrarium); err == nil {
		t.Fatal("expected error for mismatched buffer length")
	}
}

func TestDecodeUnknownEncoding(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3, 4}, 1, 1, "bogus"); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}

func TestValidBand(t *testing.T) {
	if !Valid(0) {
		t.Error("0 should be valid")
	}
	if Valid(float32(math.NaN())) {
		t.Error("NaN should be invalid")
	}
	if Valid(-20000) {
		t.Error("below band should be invalid")
	}
	if Valid(10000) {
		t.Error("above band should be invalid")
	}
}

func TestAtOutOfRange(t *testing.T) {
	dem := &DemTile{Width: 2, Height: 2, Data: []float32{1, 2, 3, 4}}
	if !math.IsNaN(float64(dem.At(-1, 0))) {
		t.Error("expected NaN for x<0")
	}
	if !math.IsNaN(float64(dem.At(2, 0))) {
		t.Error("expected NaN for x>=width")
	}
	if dem.At(1, 1) != 4 {
		t.Errorf("got %v want 4", dem.At(1, 1))
	}
}

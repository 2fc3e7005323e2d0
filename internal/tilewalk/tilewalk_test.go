package tilewalk

import (
	"testing"

	"github.com/csnight/contourtile/internal/tilekey"
)

func TestCountMatchesGenerateLength(t *testing.T) {
	bbox := Bbox{West: -10, South: -5, East: 10, North: 5}
	zoom := 4

	want := Count(bbox, zoom)

	ch := make(chan tilekey.Key)
	go Generate(bbox, zoom, ch)
	var got int
	for range ch {
		got++
	}
	if got != want {
		t.Errorf("Generate emitted %d tiles, Count said %d", got, want)
	}
}

func TestGenerateSplitsAntimeridianCrossingBox(t *testing.T) {
	bbox := Bbox{West: 170, South: -5, East: -170, North: 5}
	zoom := 3

	ch := make(chan tilekey.Key)
	go Generate(bbox, zoom, ch)
	var got int
	for range ch {
		got++
	}
	if got == 0 {
		t.Fatal("expected tiles on both sides of the antimeridian")
	}
}

func TestCountIsNonNegativeForDegenerateBox(t *testing.T) {
	bbox := Bbox{West: 0, South: 89, East: 0.001, North: 89.001}
	if got := Count(bbox, 0); got < 0 {
		t.Errorf("Count = %d, want >= 0", got)
	}
}

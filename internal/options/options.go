// Package options defines ContourOptions/GlobalContourOptions and their
// canonical URL encoding, per spec sections 3 and 6.
package options

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/csnight/contourtile/internal/pipelineerr"
)

// ContourOptions carries the per-request settings that affect the
// rendered contour output. Index order of Levels carries semantics: a
// contour whose elevation is a multiple of Levels[i] gets level tag i,
// the greatest such i (spec section 3).
type ContourOptions struct {
	Levels         []float64
	Multiplier     float64
	Overzoom       int
	Buffer         int
	Extent         int
	ContourLayer   string
	ElevationKey   string
	LevelKey       string
	SubsampleBelow int
}

// DefaultContourOptions returns the spec's documented per-field defaults.
func DefaultContourOptions() ContourOptions {
	return ContourOptions{
		Multiplier:   1,
		Buffer:       1,
		Extent:       4096,
		ContourLayer: "contours",
		ElevationKey: "ele",
		LevelKey:     "level",
	}
}

// GlobalContourOptions wraps the fields that are invariant across every
// request against a given source: the fetch URL template or archive
// handle, the raster encoding, and source limits (spec section 6).
type GlobalContourOptions struct {
	ContourOptions
	URL       string
	Encoding  string
	MaxZoom   int
	TimeoutMs int
	CacheSize int
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func formatInt(v int) string { return strconv.Itoa(v) }

// encodeThresholds renders Levels as a single zoom-tagged group ("0"
// meaning "all zooms"), per the z1*v1[*v2…]~z2*… grammar in spec
// section 6. A flat, non-zoom-varying ContourOptions always encodes as
// exactly one group.
func encodeThresholds(levels []float64) string {
	parts := make([]string, 0, len(levels)+1)
	parts = append(parts, "0")
	for _, l := range levels {
		parts = append(parts, formatFloat(l))
	}
	return strings.Join(parts, "*")
}

// decodeThresholds parses the z1*v1[*v2…]~z2*… grammar, flattening every
// zoom group's values in order (a full per-zoom-varying engine would key
// them by the leading zoom tag instead).
func decodeThresholds(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	var levels []float64
	for _, group := range strings.Split(s, "~") {
		toks := strings.Split(group, "*")
		if len(toks) == 0 {
			continue
		}
		for _, tok := range toks[1:] {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, pipelineerr.NewInvalidInput("thresholds")
			}
			levels = append(levels, v)
		}
	}
	return levels, nil
}

// contourFields returns o's canonical key/value pairs, unescaped.
func contourFields(o ContourOptions) map[string]string {
	m := map[string]string{
		"multiplier":     formatFloat(o.Multiplier),
		"overzoom":       formatInt(o.Overzoom),
		"buffer":         formatInt(o.Buffer),
		"extent":         formatInt(o.Extent),
		"contourLayer":   o.ContourLayer,
		"elevationKey":   o.ElevationKey,
		"levelKey":       o.LevelKey,
		"subsampleBelow": formatInt(o.SubsampleBelow),
		"thresholds":     encodeThresholds(o.Levels),
	}
	return m
}

func joinSorted(fields map[string]string, sep string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(fields[k]))
	}
	return strings.Join(parts, sep)
}

// EncodeContourOptions renders the per-request canonical serialization
// used in cache keys (spec section 4.6 step 2): sorted keys, URL-encoded
// values, joined by commas.
func EncodeContourOptions(o ContourOptions) string {
	return joinSorted(contourFields(o), ",")
}

// DecodeContourOptions parses the comma-joined form back into
// ContourOptions.
func DecodeContourOptions(s string) (ContourOptions, error) {
	o := DefaultContourOptions()
	if s == "" {
		return o, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, err := splitKV(pair)
		if err != nil {
			return o, err
		}
		if err := applyContourField(&o, k, v); err != nil {
			return o, err
		}
	}
	return o, nil
}

func splitKV(pair string) (key, value string, err error) {
	i := strings.IndexByte(pair, '=')
	if i < 0 {
		return "", "", pipelineerr.NewInvalidInput(pair)
	}
	key = pair[:i]
	value, err = url.QueryUnescape(pair[i+1:])
	if err != nil {
		return "", "", pipelineerr.NewInvalidInput(key)
	}
	return key, value, nil
}

func applyContourField(o *ContourOptions, key, value string) error {
	switch key {
	case "multiplier":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return pipelineerr.NewInvalidInput(key)
		}
		o.Multiplier = v
	case "overzoom":
		v, err := strconv.Atoi(value)
		if err != nil {
			return pipelineerr.NewInvalidInput(key)
		}
		o.Overzoom = v
	case "buffer":
		v, err := strconv.Atoi(value)
		if err != nil {
			return pipelineerr.NewInvalidInput(key)
		}
		o.Buffer = v
	case "extent":
		v, err := strconv.Atoi(value)
		if err != nil {
			return pipelineerr.NewInvalidInput(key)
		}
		o.Extent = v
	case "contourLayer":
		o.ContourLayer = value
	case "elevationKey":
		o.ElevationKey = value
	case "levelKey":
		o.LevelKey = value
	case "subsampleBelow":
		v, err := strconv.Atoi(value)
		if err != nil {
			return pipelineerr.NewInvalidInput(key)
		}
		o.SubsampleBelow = v
	case "thresholds":
		v, err := decodeThresholds(value)
		if err != nil {
			return err
		}
		o.Levels = v
	}
	return nil
}

// EncodeOptions renders the full canonical serialization of a
// GlobalContourOptions, including its embedded ContourOptions, sorted
// keys joined by "&" (spec section 6's "global" join rule).
func EncodeOptions(o GlobalContourOptions) string {
	fields := contourFields(o.ContourOptions)
	fields["url"] = o.URL
	fields["encoding"] = o.Encoding
	fields["maxzoom"] = formatInt(o.MaxZoom)
	fields["timeoutMs"] = formatInt(o.TimeoutMs)
	fields["cacheSize"] = formatInt(o.CacheSize)
	return joinSorted(fields, "&")
}

// DecodeOptions parses the &-joined form back into GlobalContourOptions.
func DecodeOptions(s string) (GlobalContourOptions, error) {
	g := GlobalContourOptions{ContourOptions: DefaultContourOptions()}
	if s == "" {
		return g, nil
	}
	for _, pair := range strings.Split(s, "&") {
		k, v, err := splitKV(pair)
		if err != nil {
			return g, err
		}
		switch k {
		case "url":
			g.URL = v
		case "encoding":
			g.Encoding = v
		case "maxzoom":
			n, err := strconv.Atoi(v)
			if err != nil {
				return g, pipelineerr.NewInvalidInput(k)
			}
			g.MaxZoom = n
		case "timeoutMs":
			n, err := strconv.Atoi(v)
			if err != nil {
				return g, pipelineerr.NewInvalidInput(k)
			}
			g.TimeoutMs = n
		case "cacheSize":
			n, err := strconv.Atoi(v)
			if err != nil {
				return g, pipelineerr.NewInvalidInput(k)
			}
			g.CacheSize = n
		default:
			if err := applyContourField(&g.ContourOptions, k, v); err != nil {
				return g, err
			}
		}
	}
	return g, nil
}

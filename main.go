package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/csnight/contourtile/internal/options"
	"github.com/csnight/contourtile/internal/pipeline"
	"github.com/csnight/contourtile/internal/tilefetch"
	"github.com/csnight/contourtile/internal/tilekey"
	"github.com/csnight/contourtile/internal/tilesink"
	"github.com/csnight/contourtile/internal/tilewalk"
)

var (
	hf bool
	cf string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.Usage = usage

	log.SetFormatter(&nested.Formatter{
		HideKeys:      true,
		ShowFullLevel: true,
	})
	file, err := os.OpenFile("contourtile.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		log.SetOutput(io.MultiWriter(os.Stdout, file))
	} else {
		log.Info("failed to log to file.")
	}
	log.SetLevel(log.DebugLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `contourtile version: contourtile/1.0
Usage: contourtile [-h] [-c filename]
`)
	flag.PrintDefaults()
}

func initConf(cfgFile string) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	viper.SetDefault("app.version", "v0.1.0")
	viper.SetDefault("app.title", "Contour Tile Engine")
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("source.encoding", "terrarium")
	viper.SetDefault("source.maxzoom", 12)
	viper.SetDefault("source.rasterWidth", 256)
	viper.SetDefault("source.rasterHeight", 256)
	viper.SetDefault("source.timeoutMs", 10000)
	viper.SetDefault("source.cacheSize", 256)
	viper.SetDefault("source.workers", 4)
}

// source is one contour layer: a URL template, a coverage area taken from
// a GeoJSON file's bound, and a zoom range.
type source struct {
	URL     string
	Geojson string
	Min     int
	Max     int
}

// loadBound mirrors the teacher's loadCollection in utils.go, but returns
// the collection's bound as a tilewalk.Bbox instead of the raw
// orb.Collection, since nothing downstream needs per-feature geometry.
func loadBound(path string) tilewalk.Bbox {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("unable to read file: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		log.Fatalf("unable to unmarshal feature collection: %v", err)
	}
	var collection orb.Collection
	for _, f := range fc.Features {
		collection = append(collection, f.Geometry)
	}
	b := collection.Bound()
	return tilewalk.Bbox{West: b.Left(), South: b.Bottom(), East: b.Right(), North: b.Top()}
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}
	if cf == "" {
		cf = "conf.toml"
	}
	initConf(cf)
	start := time.Now()

	var sources []source
	if err := viper.UnmarshalKey("lrs", &sources); err != nil {
		log.Fatalf("lrs config error: %v", err)
	}

	g := options.GlobalContourOptions{
		ContourOptions: options.ContourOptions{
			Levels:         viper.GetFloat64Slice("contour.levels"),
			Multiplier:     viper.GetFloat64("contour.multiplier"),
			Overzoom:       viper.GetInt("contour.overzoom"),
			Buffer:         viper.GetInt("contour.buffer"),
			Extent:         viper.GetInt("contour.extent"),
			ContourLayer:   viper.GetString("contour.contourLayer"),
			ElevationKey:   viper.GetString("contour.elevationKey"),
			LevelKey:       viper.GetString("contour.levelKey"),
			SubsampleBelow: viper.GetInt("contour.subsampleBelow"),
		},
		Encoding:  viper.GetString("source.encoding"),
		MaxZoom:   viper.GetInt("source.maxzoom"),
		TimeoutMs: viper.GetInt("source.timeoutMs"),
		CacheSize: viper.GetInt("source.cacheSize"),
	}
	if len(g.ContourOptions.Levels) == 0 {
		g.ContourOptions = options.DefaultContourOptions()
		g.ContourOptions.Levels = []float64{100, 500}
	}

	sink := tilesink.NewFileSink(viper.GetString("output.directory"))
	ctx := context.Background()
	var rendered int

	for _, src := range sources {
		g.URL = src.URL
		fetcher := tilefetch.NewHTTPFetcher(g.URL, viper.GetInt("source.workers"), time.Duration(g.TimeoutMs)*time.Millisecond)
		p := pipeline.New(fetcher, tilefetch.ImageDecoder{}, g, viper.GetInt("source.rasterWidth"), viper.GetInt("source.rasterHeight"))
		p.Log = log.StandardLogger()

		bbox := loadBound(src.Geojson)
		for z := src.Min; z <= src.Max; z++ {
			n := renderZoom(ctx, p, sink, g.ContourOptions, bbox, z)
			rendered += n
		}
	}

	log.Infof("rendered %d tiles in %.3fs", rendered, time.Since(start).Seconds())
}

// renderZoom walks bbox at zoom on the calling goroutine and renders each
// tile in turn. Intentionally simpler than cmd/contourcli's worker-pooled
// batch runner: this entrypoint drives one config-defined source straight
// through, not a large unattended job.
func renderZoom(ctx context.Context, p *pipeline.Pipeline, sink tilesink.Sink, opts options.ContourOptions, bbox tilewalk.Bbox, zoom int) int {
	tiles := make(chan tilekey.Key)
	go tilewalk.Generate(bbox, zoom, tiles)

	var n int
	for t := range tiles {
		data, err := p.FetchContourTile(ctx, t.Z(), t.X(), t.Y(), opts)
		if err != nil {
			log.WithError(err).Warnf("render %d/%d/%d failed", t.Z(), t.X(), t.Y())
			continue
		}
		if err := sink.Save(t.Z(), t.X(), t.Y(), data); err != nil {
			log.WithError(err).Errorf("save %d/%d/%d failed", t.Z(), t.X(), t.Y())
			continue
		}
		n++
	}
	return n
}

// Command contourcli walks a bounding box across a zoom range and
// renders every covered contour tile to a file tree or an .mbtiles
// archive, the batch-job shape of the teacher's Task/Download in
// task.go generalized from raster tile downloading to on-demand contour
// rendering.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/cheggaaa/pb/v3"
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/csnight/contourtile/internal/journal"
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
	file, err := os.OpenFile("contourcli.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		log.SetOutput(io.MultiWriter(os.Stdout, file))
	} else {
		log.Warn("failed to log to file, writing to stdout only")
	}
	log.SetLevel(log.DebugLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `contourcli
Usage: contourcli [-h] [-c filename]
`)
	flag.PrintDefaults()
}

func initConf(cfgFile string) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist, using defaults", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}

	viper.SetDefault("source.url", "")
	viper.SetDefault("source.encoding", "terrarium")
	viper.SetDefault("source.maxzoom", 12)
	viper.SetDefault("source.rasterWidth", 256)
	viper.SetDefault("source.rasterHeight", 256)
	viper.SetDefault("source.timeoutMs", 10000)
	viper.SetDefault("source.cacheSize", 512)
	viper.SetDefault("source.workers", 8)

	viper.SetDefault("contour.levels", []float64{50, 100, 500})
	viper.SetDefault("contour.multiplier", 1.0)
	viper.SetDefault("contour.overzoom", 0)
	viper.SetDefault("contour.buffer", 1)
	viper.SetDefault("contour.extent", 4096)
	viper.SetDefault("contour.contourLayer", "contours")
	viper.SetDefault("contour.elevationKey", "ele")
	viper.SetDefault("contour.levelKey", "level")
	viper.SetDefault("contour.subsampleBelow", 0)

	viper.SetDefault("job.id", "")
	viper.SetDefault("job.minzoom", 0)
	viper.SetDefault("job.maxzoom", 12)
	viper.SetDefault("job.west", -180.0)
	viper.SetDefault("job.south", -85.0)
	viper.SetDefault("job.east", 180.0)
	viper.SetDefault("job.north", 85.0)

	viper.SetDefault("output.format", "files")
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("output.file", "contours.mbtiles")
	viper.SetDefault("output.batchSize", 64)

	viper.SetDefault("redis.addr", "")
}

func buildPipeline() (*pipeline.Pipeline, options.ContourOptions) {
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
		URL:       viper.GetString("source.url"),
		Encoding:  viper.GetString("source.encoding"),
		MaxZoom:   viper.GetInt("source.maxzoom"),
		TimeoutMs: viper.GetInt("source.timeoutMs"),
		CacheSize: viper.GetInt("source.cacheSize"),
	}

	fetcher := tilefetch.NewHTTPFetcher(g.URL, viper.GetInt("source.workers"), time.Duration(g.TimeoutMs)*time.Millisecond)
	p := pipeline.New(fetcher, tilefetch.ImageDecoder{}, g, viper.GetInt("source.rasterWidth"), viper.GetInt("source.rasterHeight"))
	p.Log = log.StandardLogger()
	return p, g.ContourOptions
}

func buildSink() tilesink.Sink {
	if viper.GetString("output.format") == "mbtiles" {
		meta := map[string]string{
			"name":    "contours",
			"format":  "pbf",
			"minzoom": fmt.Sprintf("%d", viper.GetInt("job.minzoom")),
			"maxzoom": fmt.Sprintf("%d", viper.GetInt("job.maxzoom")),
		}
		outdir := viper.GetString("output.directory")
		_ = os.MkdirAll(outdir, os.ModePerm)
		sink, err := tilesink.OpenMBTilesSink(filepath.Join(outdir, viper.GetString("output.file")), meta, viper.GetInt("output.batchSize"))
		if err != nil {
			log.Fatalf("open mbtiles sink: %v", err)
		}
		return sink
	}
	return tilesink.NewFileSink(viper.GetString("output.directory"))
}

func buildJournal(id string) *journal.Journal {
	addr := viper.GetString("redis.addr")
	if addr == "" {
		return nil
	}
	pool := &redis.Pool{
		MaxIdle:     16,
		MaxActive:   32,
		IdleTimeout: 120,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
	}
	return journal.New(pool, id, log.StandardLogger())
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}
	initConf(cf)

	jobID := viper.GetString("job.id")
	if jobID == "" {
		jobID = uuid.New().String()
	}

	p, opts := buildPipeline()
	sink := buildSink()
	defer func() {
		if err := sink.Close(); err != nil {
			log.Errorf("close sink: %v", err)
		}
	}()
	j := buildJournal(jobID)

	bbox := tilewalk.Bbox{
		West:  viper.GetFloat64("job.west"),
		South: viper.GetFloat64("job.south"),
		East:  viper.GetFloat64("job.east"),
		North: viper.GetFloat64("job.north"),
	}
	minZoom := viper.GetInt("job.minzoom")
	maxZoom := viper.GetInt("job.maxzoom")
	workers := viper.GetInt("source.workers")

	resumeZoom, resumeX := j.Cursor()
	start := time.Now()

	for zoom := minZoom; zoom <= maxZoom; zoom++ {
		if resumeZoom > zoom {
			continue
		}
		startX := -1
		if resumeZoom == zoom {
			startX = resumeX
		}
		runZoom(p, sink, j, opts, bbox, zoom, workers, startX)
	}

	log.Infof("job %s finished in %s", jobID, time.Since(start))
}

// runZoom renders every tile covering bbox at zoom with a bounded worker
// pool, the generalized form of the teacher's downloadLayer/tileFetcher
// pair in task.go: a buffered semaphore channel caps concurrency, and a
// WaitGroup joins the batch before moving to the next zoom.
func runZoom(p *pipeline.Pipeline, sink tilesink.Sink, j *journal.Journal, opts options.ContourOptions, bbox tilewalk.Bbox, zoom, workers, startX int) {
	total := tilewalk.Count(bbox, zoom)
	log.Infof("zoom %d: %d tiles", zoom, total)
	bar := pb.New64(int64(total)).Start()
	defer bar.Finish()

	tiles := make(chan tilekey.Key)
	go tilewalk.Generate(bbox, zoom, tiles)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var lastCol = -1

	for t := range tiles {
		if startX != -1 && t.X() < startX-1 {
			bar.Increment()
			continue
		}
		if t.X() != lastCol {
			lastCol = t.X()
			j.SaveCursor(zoom, lastCol)
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(t tilekey.Key) {
			defer wg.Done()
			defer func() { <-sem }()
			defer bar.Increment()
			renderAndSave(p, sink, j, opts, t)
		}(t)
	}
	wg.Wait()
}

func renderAndSave(p *pipeline.Pipeline, sink tilesink.Sink, j *journal.Journal, opts options.ContourOptions, t tilekey.Key) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := p.FetchContourTile(ctx, t.Z(), t.X(), t.Y(), opts)
	if err != nil {
		log.WithError(err).Warnf("render %d/%d/%d failed", t.Z(), t.X(), t.Y())
		j.RecordFailure(journal.FailedTile{Z: t.Z(), X: t.X(), Y: t.Y(), Reason: err.Error()})
		return
	}
	if err := sink.Save(t.Z(), t.X(), t.Y(), data); err != nil {
		log.WithError(err).Errorf("save %d/%d/%d failed", t.Z(), t.X(), t.Y())
		return
	}
	j.ClearFailure(t.Z(), t.X(), t.Y())
}

// Command contourserver exposes the contour pipeline over HTTP:
// GET /:z/:x/:y.mvt?<canonical options>. It reads the same viper config
// keys as contourcli and logs through the standard logrus logger (level
// only; no custom formatter or log file), generalizing the
// teacher's batch Task into a request-driven service with gin in place
// of the teacher's offline worker loop.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/csnight/contourtile/internal/options"
	"github.com/csnight/contourtile/internal/pipeline"
	"github.com/csnight/contourtile/internal/pipelineerr"
	"github.com/csnight/contourtile/internal/tilefetch"
)

var cf string

func init() {
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	log.SetLevel(log.InfoLevel)
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
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("source.url", "")
	viper.SetDefault("source.encoding", "terrarium")
	viper.SetDefault("source.maxzoom", 12)
	viper.SetDefault("source.rasterWidth", 256)
	viper.SetDefault("source.rasterHeight", 256)
	viper.SetDefault("source.timeoutMs", 10000)
	viper.SetDefault("source.cacheSize", 512)
	viper.SetDefault("source.workers", 16)
	viper.SetDefault("contour.levels", []float64{50, 100, 500})
	viper.SetDefault("contour.multiplier", 1.0)
	viper.SetDefault("contour.overzoom", 0)
	viper.SetDefault("contour.buffer", 1)
	viper.SetDefault("contour.extent", 4096)
	viper.SetDefault("contour.contourLayer", "contours")
	viper.SetDefault("contour.elevationKey", "ele")
	viper.SetDefault("contour.levelKey", "level")
	viper.SetDefault("contour.subsampleBelow", 0)
}

func defaultOptions() options.ContourOptions {
	return options.ContourOptions{
		Levels:         viper.GetFloat64Slice("contour.levels"),
		Multiplier:     viper.GetFloat64("contour.multiplier"),
		Overzoom:       viper.GetInt("contour.overzoom"),
		Buffer:         viper.GetInt("contour.buffer"),
		Extent:         viper.GetInt("contour.extent"),
		ContourLayer:   viper.GetString("contour.contourLayer"),
		ElevationKey:   viper.GetString("contour.elevationKey"),
		LevelKey:       viper.GetString("contour.levelKey"),
		SubsampleBelow: viper.GetInt("contour.subsampleBelow"),
	}
}

// requestOptions layers the request's "options" query parameter (the
// comma-joined canonical per-request form from spec section 6) over the
// server's configured defaults.
func requestOptions(c *gin.Context, base options.ContourOptions) (options.ContourOptions, error) {
	raw := c.Query("options")
	if raw == "" {
		return base, nil
	}
	// Decoding applies pairs in order, so the request's pairs override
	// the encoded defaults that precede them.
	return options.DecodeContourOptions(options.EncodeContourOptions(base) + "," + raw)
}

func tileHandler(p *pipeline.Pipeline, base options.ContourOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		z, err := strconv.Atoi(c.Param("z"))
		if err != nil {
			c.String(http.StatusBadRequest, "bad zoom")
			return
		}
		x, err := strconv.Atoi(c.Param("x"))
		if err != nil {
			c.String(http.StatusBadRequest, "bad x")
			return
		}
		yParam := strings.TrimSuffix(c.Param("y"), ".mvt")
		y, err := strconv.Atoi(yParam)
		if err != nil {
			c.String(http.StatusBadRequest, "bad y")
			return
		}

		opts, err := requestOptions(c, base)
		if err != nil {
			c.String(http.StatusBadRequest, "bad options: %v", err)
			return
		}

		data, err := p.FetchContourTile(c.Request.Context(), z, x, y, opts)
		if err != nil {
			status := http.StatusInternalServerError
			if pipelineerr.Is(err, pipelineerr.Canceled) || pipelineerr.Is(err, pipelineerr.TimedOut) {
				status = http.StatusGatewayTimeout
			}
			if pipelineerr.Is(err, pipelineerr.InvalidInput) {
				status = http.StatusBadRequest
			}
			c.String(status, "render failed: %v", err)
			return
		}
		c.Data(http.StatusOK, "application/vnd.mapbox-vector-tile", data)
	}
}

func main() {
	flag.Parse()
	initConf(cf)

	g := options.GlobalContourOptions{
		ContourOptions: defaultOptions(),
		URL:            viper.GetString("source.url"),
		Encoding:       viper.GetString("source.encoding"),
		MaxZoom:        viper.GetInt("source.maxzoom"),
		TimeoutMs:      viper.GetInt("source.timeoutMs"),
		CacheSize:      viper.GetInt("source.cacheSize"),
	}
	fetcher := tilefetch.NewHTTPFetcher(g.URL, viper.GetInt("source.workers"), time.Duration(g.TimeoutMs)*time.Millisecond)
	p := pipeline.New(fetcher, tilefetch.ImageDecoder{}, g, viper.GetInt("source.rasterWidth"), viper.GetInt("source.rasterHeight"))
	p.Log = log.StandardLogger()

	r := gin.Default()
	r.GET("/:z/:x/:y", tileHandler(p, g.ContourOptions))

	addr := viper.GetString("server.addr")
	log.Infof("listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatal(fmt.Errorf("server exited: %w", err))
	}
}

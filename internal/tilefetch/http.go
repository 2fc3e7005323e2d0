package tilefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/csnight/contourtile/internal/pipelineerr"
)

// HTTPFetcher fetches raster tiles over HTTP from a URL template
// containing {z}/{x}/{y} placeholders. Transport tuning mirrors the
// teacher's NewTask client setup in task.go (bounded idle/active
// connections per host, a blanket client timeout).
type HTTPFetcher struct {
	URLTemplate string
	Client      *http.Client
}

// NewHTTPFetcher builds an HTTPFetcher with a transport sized for
// workerCount concurrent fetches, the same tuning NewTask applies to
// http.DefaultTransport.
func NewHTTPFetcher(urlTemplate string, workerCount int, timeout time.Duration) *HTTPFetcher {
	transport := &http.Transport{
		MaxIdleConnsPerHost: workerCount,
		MaxConnsPerHost:     workerCount,
		MaxIdleConns:        workerCount,
		IdleConnTimeout:     5 * time.Second,
	}
	return &HTTPFetcher{
		URLTemplate: urlTemplate,
		Client:      &http.Client{Transport: transport, Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, z, x, y int) (FetchResult, error) {
	url := strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(f.URLTemplate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, pipelineerr.NewFetchFailed("build request", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return FetchResult{}, pipelineerr.NewTimedOut(err)
		}
		return FetchResult{}, pipelineerr.NewFetchFailed("do request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FetchResult{}, pipelineerr.NewFetchFailed(fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, pipelineerr.NewFetchFailed("read body", err)
	}
	if len(body) == 0 {
		return FetchResult{}, pipelineerr.NewFetchFailed("empty body", nil)
	}
	return FetchResult{Bytes: body}, nil
}

package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AnotherFullstackDev/httpreqx"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/previewops/ephemeral-env-platform/internal/manifests"
)

const (
	DefaultTimeout  = 2 * time.Minute
	DefaultInterval = 5 * time.Second

	maxConcurrentProbes = 4
)

// Config is the optional per-service "smoke" section of the environment
// config. Path is probed relative to the service's published route.
type Config struct {
	Path string `mapstructure:"path"`
}

// Result is the outcome of probing a single route. A failed probe is a
// warning, not an error: a service may simply have no HTTP endpoint at its
// prefix, or be slow to warm up.
type Result struct {
	Service string
	URL     string
	Healthy bool
	Status  int
	Err     error
}

func (r Result) String() string {
	if r.Healthy {
		return fmt.Sprintf("%s: %s responded with %d", r.Service, r.URL, r.Status)
	}
	if r.Err != nil {
		return fmt.Sprintf("%s: %s unreachable: %v", r.Service, r.URL, r.Err)
	}
	return fmt.Sprintf("%s: %s responded with %d", r.Service, r.URL, r.Status)
}

type probeFunc func(ctx context.Context, url string) (int, error)

type Checker struct {
	probe    probeFunc
	timeout  time.Duration
	interval time.Duration
}

func NewChecker() *Checker {
	client := httpreqx.NewHttpClient().
		SetBodyUnmarshaler(httpreqx.NewJSONBodyUnmarshaler()).
		SetStackTraceEnabled(false)

	return &Checker{
		probe: func(ctx context.Context, url string) (int, error) {
			resp, err := client.NewGetRequest(ctx, url).Do()
			if err != nil {
				return 0, err
			}
			return resp.StatusCode, nil
		},
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
	}
}

func (c *Checker) WithTimeout(timeout time.Duration) *Checker {
	c.timeout = timeout
	return c
}

// CheckRoutes polls every route until it answers with a non-5xx status or
// the per-route timeout expires. Results come back in route order.
func (c *Checker) CheckRoutes(ctx context.Context, routes []manifests.Route) []Result {
	results := make([]Result, len(routes))

	p := pool.New().WithMaxGoroutines(maxConcurrentProbes)
	for i, route := range routes {
		p.Go(func() {
			results[i] = c.checkRoute(ctx, route)
		})
	}
	p.Wait()

	return results
}

func (c *Checker) checkRoute(ctx context.Context, route manifests.Route) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := Result{Service: route.Service, URL: route.URL}

	for {
		status, err := c.probe(ctx, route.URL)
		result.Status = status
		result.Err = err

		if err == nil && status < http.StatusInternalServerError {
			result.Healthy = true
			return result
		}

		log.Debug().
			Str("service", route.Service).
			Str("url", route.URL).
			Int("status", status).
			Err(err).
			Msg("route not healthy yet, retrying")

		select {
		case <-ctx.Done():
			return result
		case <-time.After(c.interval):
		}
	}
}

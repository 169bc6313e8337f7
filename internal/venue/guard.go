package venue

import (
	"context"
	"net/http"

	"github.com/quantcandle/signalengine/internal/config"
	"github.com/quantcandle/signalengine/internal/net/ratelimit"
	"github.com/quantcandle/signalengine/infra/breakers"
)

// guard bundles the per-venue rate limiter and circuit breaker every
// concrete adapter embeds, so each venue file only implements the
// HTTP call + response decoding.
type guard struct {
	name    string
	client  *http.Client
	limiter *ratelimit.Limiter
	breaker *breakers.Breaker
	baseURL string
}

func newGuard(name, baseURL string, cfg config.ProviderConfig) *guard {
	rps := float64(cfg.RPS)
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &guard{
		name:    name,
		client:  &http.Client{Timeout: cfg.GetRequestTimeout()},
		limiter: ratelimit.NewLimiter(rps, burst),
		breaker: breakers.New(name),
		baseURL: baseURL,
	}
}

// do runs fn behind the rate limiter and circuit breaker, returning
// whatever fn returns. Callers wrap the resulting error into a
// *xerrors.VenueError with the venue name and failure kind.
func (g *guard) do(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := g.limiter.Wait(ctx, g.name); err != nil {
		return nil, err
	}
	return g.breaker.Execute(fn)
}

// Package geocode resolves postal addresses to coordinates via Nominatim
// (primary) and the French BAN API (fallback).
package geocode

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/carto-collectif/rostermap/internal/resilience"
)

// ErrNoMatch is returned when every provider answered but none could
// resolve the address. It is a definitive outcome, not a transient failure.
var ErrNoMatch = eris.New("geocode: no match")

// Client resolves a single address query to coordinates.
type Client interface {
	// Resolve geocodes one query string. It returns ErrNoMatch when no
	// provider finds the address, and a transient error (see
	// resilience.IsTransient) when the providers could not be reached.
	Resolve(ctx context.Context, query string) (*Result, error)
}

// Result holds the coordinates for a resolved address.
type Result struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Source    string  `json:"source,omitempty"`  // "nominatim" or "ban"
	Quality   string  `json:"quality,omitempty"` // provider match type, e.g. "house", "street", "municipality"
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client for all provider requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit applied to provider
// calls. Nominatim's usage policy allows at most one request per second.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithUserAgent sets the User-Agent header. Nominatim rejects requests
// without an identifying agent.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

// WithNominatimURL overrides the Nominatim endpoint.
func WithNominatimURL(u string) Option {
	return func(g *geocoder) {
		g.nominatimURL = u
	}
}

// WithBANURL overrides the BAN endpoint.
func WithBANURL(u string) Option {
	return func(g *geocoder) {
		g.banURL = u
	}
}

// WithRetry sets the retry policy for transient provider failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *geocoder) {
		g.retry = cfg
	}
}

type geocoder struct {
	httpClient   *http.Client
	limiter      *rate.Limiter
	userAgent    string
	nominatimURL string
	banURL       string
	retry        resilience.RetryConfig
}

// NewClient creates a geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(1, 1), // Nominatim policy: 1 req/s
		userAgent:    "rostermap",
		nominatimURL: defaultNominatimURL,
		banURL:       defaultBANURL,
		retry:        resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// leadingHouseNumberRE matches a house number prefix like "10 " or "12bis ".
var leadingHouseNumberRE = regexp.MustCompile(`^\d+\s*(bis|ter)?\s+`)

// queryVariants returns the query forms to try against Nominatim, most
// specific first: the full address, then the address without its leading
// house number (Nominatim often misses exact numbers on rural roads).
func queryVariants(query string) []string {
	variants := []string{query}
	if stripped := leadingHouseNumberRE.ReplaceAllString(query, ""); stripped != query && stripped != "" {
		variants = append(variants, stripped)
	}
	return variants
}

// Resolve tries Nominatim on each query variant, then BAN on the full
// query. A transient failure of one provider does not prevent trying the
// next; a transient error is only returned when no provider gave a
// definitive answer.
func (g *geocoder) Resolve(ctx context.Context, query string) (*Result, error) {
	if query == "" {
		return nil, ErrNoMatch
	}

	var transientErr error

	for _, q := range queryVariants(query) {
		result, err := resilience.DoVal(ctx, g.withRetryLog("nominatim"), func(ctx context.Context) (*Result, error) {
			return g.resolveNominatim(ctx, q)
		})
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !errors.Is(err, ErrNoMatch) {
			transientErr = err
		}
	}

	result, err := resilience.DoVal(ctx, g.withRetryLog("ban"), func(ctx context.Context) (*Result, error) {
		return g.resolveBAN(ctx, query)
	})
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, ErrNoMatch) {
		return nil, err
	}

	// BAN answered no-match; report an earlier Nominatim outage if there
	// was one, otherwise the miss is definitive.
	if transientErr != nil {
		return nil, transientErr
	}
	return nil, ErrNoMatch
}

func (g *geocoder) withRetryLog(provider string) resilience.RetryConfig {
	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(provider)
	}
	return cfg
}

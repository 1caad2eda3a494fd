package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carto-collectif/rostermap/internal/resilience"
)

const (
	nominatimHit = `[{"lat":"48.8692","lon":"2.3320","type":"house"}]`
	nominatimNil = `[]`
	banHit       = `{"features":[{"geometry":{"coordinates":[2.3320,48.8692]},"properties":{"type":"housenumber"}}]}`
	banNil       = `{"features":[]}`
)

func fastOptions() []Option {
	return []Option{
		WithRateLimit(1000),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}),
	}
}

func jsonServer(body string, calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
}

func TestResolve_NominatimSucceeds_NoBANCall(t *testing.T) {
	var banCalls atomic.Int32
	nominatimSrv := jsonServer(nominatimHit, nil)
	defer nominatimSrv.Close()
	banSrv := jsonServer(banHit, &banCalls)
	defer banSrv.Close()

	c := NewClient(append(fastOptions(),
		WithNominatimURL(nominatimSrv.URL),
		WithBANURL(banSrv.URL),
	)...)

	result, err := c.Resolve(context.Background(), "10 Rue de la Paix, 75002, Paris")
	require.NoError(t, err)
	assert.Equal(t, "nominatim", result.Source)
	assert.InDelta(t, 48.8692, result.Latitude, 1e-6)
	assert.InDelta(t, 2.3320, result.Longitude, 1e-6)
	assert.Equal(t, int32(0), banCalls.Load(), "BAN must not be called when Nominatim matches")
}

func TestResolve_RetriesWithoutHouseNumber(t *testing.T) {
	// Nominatim misses the exact house number but knows the street.
	nominatimSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") == "Rue de la Paix, 75002, Paris" {
			_, _ = io.WriteString(w, `[{"lat":"48.8690","lon":"2.3310","type":"street"}]`)
			return
		}
		_, _ = io.WriteString(w, nominatimNil)
	}))
	defer nominatimSrv.Close()
	banSrv := jsonServer(banNil, nil)
	defer banSrv.Close()

	c := NewClient(append(fastOptions(),
		WithNominatimURL(nominatimSrv.URL),
		WithBANURL(banSrv.URL),
	)...)

	result, err := c.Resolve(context.Background(), "10 Rue de la Paix, 75002, Paris")
	require.NoError(t, err)
	assert.Equal(t, "nominatim", result.Source)
	assert.Equal(t, "street", result.Quality)
}

func TestResolve_BANFallback(t *testing.T) {
	nominatimSrv := jsonServer(nominatimNil, nil)
	defer nominatimSrv.Close()
	banSrv := jsonServer(banHit, nil)
	defer banSrv.Close()

	c := NewClient(append(fastOptions(),
		WithNominatimURL(nominatimSrv.URL),
		WithBANURL(banSrv.URL),
	)...)

	result, err := c.Resolve(context.Background(), "10 Rue de la Paix, 75002, Paris")
	require.NoError(t, err)
	assert.Equal(t, "ban", result.Source)
	assert.Equal(t, "housenumber", result.Quality)
	assert.InDelta(t, 48.8692, result.Latitude, 1e-6)
}

func TestResolve_AllMiss_NoMatch(t *testing.T) {
	nominatimSrv := jsonServer(nominatimNil, nil)
	defer nominatimSrv.Close()
	banSrv := jsonServer(banNil, nil)
	defer banSrv.Close()

	c := NewClient(append(fastOptions(),
		WithNominatimURL(nominatimSrv.URL),
		WithBANURL(banSrv.URL),
	)...)

	_, err := c.Resolve(context.Background(), "000 Nulle Part, XXXXX, Ailleurs")
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.False(t, resilience.IsTransient(err))
}

func TestResolve_NominatimDown_BANStillTried(t *testing.T) {
	nominatimSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer nominatimSrv.Close()
	banSrv := jsonServer(banHit, nil)
	defer banSrv.Close()

	c := NewClient(append(fastOptions(),
		WithNominatimURL(nominatimSrv.URL),
		WithBANURL(banSrv.URL),
	)...)

	result, err := c.Resolve(context.Background(), "10 Rue de la Paix, 75002, Paris")
	require.NoError(t, err)
	assert.Equal(t, "ban", result.Source)
}

func TestResolve_AllDown_TransientError(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	c := NewClient(append(fastOptions(),
		WithNominatimURL(down.URL),
		WithBANURL(down.URL),
	)...)

	_, err := c.Resolve(context.Background(), "10 Rue de la Paix, 75002, Paris")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err), "outage must surface as transient, not no-match")
}

func TestResolve_EmptyQuery(t *testing.T) {
	c := NewClient(fastOptions()...)
	_, err := c.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestQueryVariants(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"10 Rue de la Paix, Paris", []string{"10 Rue de la Paix, Paris", "Rue de la Paix, Paris"}},
		{"12bis Avenue Foch, Lyon", []string{"12bis Avenue Foch, Lyon", "Avenue Foch, Lyon"}},
		{"Place de la Mairie, Brest", []string{"Place de la Mairie, Brest"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, queryVariants(tt.in), "queryVariants(%q)", tt.in)
	}
}

package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/carto-collectif/rostermap/internal/resilience"
)

// BAN is the French national address base (Base Adresse Nationale). It only
// knows French addresses but resolves them far better than Nominatim.
const defaultBANURL = "https://api-adresse.data.gouv.fr/search/"

// banResponse is the GeoJSON response of the BAN search API.
type banResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties struct {
			Type string `json:"type"` // "housenumber", "street", "locality", "municipality"
		} `json:"properties"`
	} `json:"features"`
}

// resolveBAN queries the BAN search API for a single address.
func (g *geocoder) resolveBAN(ctx context.Context, query string) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: ban rate limit")
	}

	params := url.Values{
		"q":     {query},
		"limit": {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.banURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: ban build request")
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: ban request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: ban returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: ban read body")
	}

	var banResp banResponse
	if err := json.Unmarshal(body, &banResp); err != nil {
		return nil, eris.Wrap(err, "geocode: ban parse response")
	}
	if len(banResp.Features) == 0 {
		return nil, ErrNoMatch
	}

	coords := banResp.Features[0].Geometry.Coordinates
	if len(coords) < 2 {
		return nil, eris.Errorf("geocode: ban returned %d coordinates", len(coords))
	}

	return &Result{
		Latitude:  coords[1],
		Longitude: coords[0],
		Source:    "ban",
		Quality:   banResp.Features[0].Properties.Type,
	}, nil
}

// Package geocode resolves place names to coordinates through the Amap
// REST geocoding API, with a cache in front so repeated runs over the
// same location list cost one API call per new place.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"weibogeo/pkg/config"
	errs "weibogeo/pkg/errors"
	"weibogeo/pkg/logger"
	"weibogeo/pkg/retry"
)

const amapGeoURL = "https://restapi.amap.com/v3/geocode/geo"

// Geocoder resolves place names to coordinates.
type Geocoder struct {
	httpClient *http.Client
	cache      Cache
	retryCfg   *retry.Config
	apiKey     string
	city       string
	log        logger.Logger
}

// New builds a geocoder. cache may be nil to disable caching.
func New(cfg *config.Config, cache Cache, log logger.Logger) *Geocoder {
	return &Geocoder{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
		retryCfg:   retry.FromConfig(&cfg.Retry, log),
		apiKey:     cfg.Geocode.AmapKey,
		city:       cfg.Geocode.City,
		log:        log,
	}
}

// SetHTTPClient replaces the underlying HTTP client, used by tests.
func (g *Geocoder) SetHTTPClient(hc *http.Client) {
	g.httpClient = hc
}

type amapResponse struct {
	Status   string `json:"status"`
	Info     string `json:"info"`
	Count    string `json:"count"`
	Geocodes []struct {
		Location string `json:"location"`
	} `json:"geocodes"`
}

// Resolve returns the coordinates for a place name, consulting the
// cache first. A place the API does not know yields a not_found error;
// callers keep such locations in the run with nil coordinates.
func (g *Geocoder) Resolve(ctx context.Context, name string) (Coordinates, error) {
	if g.cache != nil {
		coords, err := g.cache.Get(ctx, name)
		if err == nil {
			return coords, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			g.log.WarnWithFields("geocode cache unavailable", map[string]interface{}{
				"location": name,
				"error":    err.Error(),
			})
		}
	}

	cfg := *g.retryCfg
	cfg.Context = ctx
	coords, err := retry.DoWithResult(func() (Coordinates, error) {
		return g.resolveOnce(ctx, name)
	}, &cfg)
	if err != nil {
		return Coordinates{}, err
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, name, coords); err != nil {
			g.log.WarnWithFields("geocode cache write failed", map[string]interface{}{
				"location": name,
				"error":    err.Error(),
			})
		}
	}
	return coords, nil
}

// ResolveAll resolves a list of place names into locations, preserving
// order. Unresolvable names stay in the result with nil coordinates so
// the caller can report them instead of silently dropping them.
func (g *Geocoder) ResolveAll(ctx context.Context, names []string) ([]Location, error) {
	locations := make([]Location, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return locations, err
		}
		coords, err := g.Resolve(ctx, name)
		if err != nil {
			g.log.WarnWithFields("geocoding failed", map[string]interface{}{
				"location": name,
				"error":    err.Error(),
			})
			locations = append(locations, Location{Name: name})
			continue
		}
		locations = append(locations, Location{Name: name, Coordinates: &coords})
	}
	return locations, nil
}

func (g *Geocoder) resolveOnce(ctx context.Context, name string) (Coordinates, error) {
	if g.apiKey == "" {
		return Coordinates{}, errs.New(errs.ErrorTypeAuth, 0, "geocoding api key not configured")
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("address", name)
	if g.city != "" {
		params.Set("city", g.city)
	}
	params.Set("output", "JSON")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, amapGeoURL+"?"+params.Encode(), nil)
	if err != nil {
		return Coordinates{}, err
	}

	httpResp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Coordinates{}, ctx.Err()
		}
		return Coordinates{}, errs.New(errs.ErrorTypeNetwork, 0, "geocode request failed: %v", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return Coordinates{}, errs.New(errs.TypeForStatusCode(httpResp.StatusCode), httpResp.StatusCode,
			"geocode request status %d", httpResp.StatusCode)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Coordinates{}, errs.New(errs.ErrorTypeNetwork, 0, "reading geocode response: %v", err)
	}

	var resp amapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Coordinates{}, errs.New(errs.ErrorTypeParsing, 0, "decoding geocode response: %v", err)
	}

	if resp.Status != "1" {
		return Coordinates{}, errs.New(errs.ErrorTypeServerError, 0, "geocode api: %s", resp.Info)
	}
	if len(resp.Geocodes) == 0 {
		return Coordinates{}, errs.New(errs.ErrorTypeNotFound, 0, "no geocode result for %q", name)
	}

	coords, err := ParseCoordinates(resp.Geocodes[0].Location)
	if err != nil {
		return Coordinates{}, errs.New(errs.ErrorTypeParsing, 0, "geocode result for %q: %v", name, err)
	}
	return coords, nil
}

// Package query builds the container API URLs a collection run pages
// through. A Target binds a named location to its base query URL; the
// page controller then derives one URL per page from it.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"weibogeo/pkg/geocode"
)

const (
	apiHost       = "m.weibo.cn"
	apiPath       = "/api/container/getIndex"
	cardlistPath  = "/p/cardlist"
	containerTmpl = "2306570042_%s"
)

// Target is one location's paged query: a display name plus the base
// URL every page URL is derived from.
type Target struct {
	Location string `json:"location"`
	// Coordinates is the "lon,lat" string the target was built from,
	// "" for targets defined by a pasted URL.
	Coordinates string `json:"coordinates,omitempty"`
	BaseURL     string `json:"base_url"`
}

// FromLocation builds a target from a geocoded location. Returns an
// error for locations without coordinates; callers decide whether that
// skips the location or fails the run.
func FromLocation(loc geocode.Location) (Target, error) {
	if !loc.Resolved() {
		return Target{}, fmt.Errorf("location %q has no coordinates", loc.Name)
	}
	return Target{
		Location:    loc.Name,
		Coordinates: loc.Coordinates.String(),
		BaseURL:     ContainerURL(*loc.Coordinates),
	}, nil
}

// ContainerURL builds the base query URL for a coordinate pair. The
// containerid embeds the "lon,lat" string, which is how the mobile API
// addresses a place's feed.
func ContainerURL(coords geocode.Coordinates) string {
	containerid := fmt.Sprintf(containerTmpl, coords.String())
	params := url.Values{}
	params.Set("containerid", containerid)
	u := url.URL{
		Scheme:   "https",
		Host:     apiHost,
		Path:     apiPath,
		RawQuery: params.Encode(),
	}
	return u.String()
}

// FromCardlist rewrites a browser cardlist URL into its API equivalent.
// The mobile site's /p/cardlist pages are backed by the same endpoint,
// so pasting a browser URL is a supported way to define a target. All
// query parameters are preserved, only the path changes.
func FromCardlist(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("cardlist url: %w", err)
	}
	switch {
	case strings.HasPrefix(u.Path, cardlistPath):
		u.Path = apiPath
	case u.Path == apiPath:
		// already an API URL
	default:
		return "", fmt.Errorf("cardlist url %q: unexpected path %q", rawURL, u.Path)
	}
	if u.Query().Get("containerid") == "" {
		return "", fmt.Errorf("cardlist url %q: no containerid", rawURL)
	}
	return u.String(), nil
}

// PageURL derives the URL for one result page. Page numbers start at 1;
// any existing page parameter on the base URL is replaced.
func PageURL(baseURL string, page int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page %d: pages start at 1", page)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("base url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

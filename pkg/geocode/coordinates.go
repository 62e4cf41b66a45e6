package geocode

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinates is a WGS-ish longitude/latitude pair. The wire form used
// throughout the pipeline is "lon,lat" with up to six decimals, which
// is what both the geocoding API and the container API expect.
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%s,%s",
		strconv.FormatFloat(c.Lon, 'f', -1, 64),
		strconv.FormatFloat(c.Lat, 'f', -1, 64))
}

// ParseCoordinates parses the "lon,lat" wire form.
func ParseCoordinates(s string) (Coordinates, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coordinates{}, fmt.Errorf("coordinates %q: want \"lon,lat\"", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("coordinates %q: bad longitude: %w", s, err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("coordinates %q: bad latitude: %w", s, err)
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return Coordinates{}, fmt.Errorf("coordinates %q: out of range", s)
	}
	return Coordinates{Lon: lon, Lat: lat}, nil
}

// Location is a named place, resolved to coordinates once geocoding has
// run. Coordinates is nil for places the geocoder could not resolve.
type Location struct {
	Name        string       `json:"name"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Resolved reports whether the location carries usable coordinates.
func (l Location) Resolved() bool {
	return l.Coordinates != nil
}

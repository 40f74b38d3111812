// Package stops loads the static GTFS stop dataset and resolves the
// nearest stop to a coordinate.
package stops

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mfigueroa/linealert/internal/geo"
)

// ErrEmptyIndex is returned by Nearest when no stops are loaded. Callers
// should treat it as a configuration problem, not a per-request failure.
var ErrEmptyIndex = errors.New("stop index is empty")

// Stop is one row of the static stop dataset. Immutable after load.
type Stop struct {
	ID   string
	Name string
	Lat  float64
	Lng  float64
}

// Index is a read-only collection of stops built once at startup.
type Index struct {
	stops []Stop
	byID  map[string]int
}

// Load reads a GTFS stops.txt file into an Index. Columns are resolved by
// header name; rows with unparsable coordinates are skipped. An unreadable
// file or a file with zero usable rows is an error — the caller is
// expected to treat it as fatal.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stops file: %w", err)
	}
	defer f.Close()

	idx, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return idx, nil
}

// Read parses stop rows from r. Rows too short to carry the required
// columns are skipped like rows with unparsable coordinates. Split out of
// Load for tests.
func Read(r io.Reader) (*Index, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	needed := 0
	for _, required := range []string{"stop_id", "stop_name", "stop_lat", "stop_lon"} {
		i, ok := col[required]
		if !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
		if i > needed {
			needed = i
		}
	}

	idx := &Index{byID: make(map[string]int)}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(record) <= needed {
			continue
		}

		lat, latErr := strconv.ParseFloat(record[col["stop_lat"]], 64)
		lng, lngErr := strconv.ParseFloat(record[col["stop_lon"]], 64)
		if latErr != nil || lngErr != nil {
			continue
		}

		id := record[col["stop_id"]]
		idx.byID[id] = len(idx.stops)
		idx.stops = append(idx.stops, Stop{
			ID:   id,
			Name: record[col["stop_name"]],
			Lat:  lat,
			Lng:  lng,
		})
	}

	if len(idx.stops) == 0 {
		return nil, errors.New("no usable stop rows")
	}
	return idx, nil
}

// FromStops builds an Index from an in-memory slice. Used by tests and the
// CLI.
func FromStops(stops []Stop) *Index {
	idx := &Index{byID: make(map[string]int, len(stops))}
	for _, s := range stops {
		idx.byID[s.ID] = len(idx.stops)
		idx.stops = append(idx.stops, s)
	}
	return idx
}

// Lookup returns the stop with the given ID.
func (idx *Index) Lookup(id string) (Stop, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return Stop{}, false
	}
	return idx.stops[i], true
}

// Count returns the number of loaded stops.
func (idx *Index) Count() int { return len(idx.stops) }

// Nearest returns the stop with the minimal haversine distance to the
// given point, scanning every stop. The first stop encountered wins ties.
func (idx *Index) Nearest(lat, lng float64) (Stop, error) {
	if len(idx.stops) == 0 {
		return Stop{}, ErrEmptyIndex
	}

	best := idx.stops[0]
	bestDist := geo.Haversine(lat, lng, best.Lat, best.Lng)
	for _, s := range idx.stops[1:] {
		if d := geo.Haversine(lat, lng, s.Lat, s.Lng); d < bestDist {
			best = s
			bestDist = d
		}
	}
	return best, nil
}

// NearestDistance is Nearest plus the distance in miles to the winner.
func (idx *Index) NearestDistance(lat, lng float64) (Stop, float64, error) {
	s, err := idx.Nearest(lat, lng)
	if err != nil {
		return Stop{}, 0, err
	}
	return s, geo.Haversine(lat, lng, s.Lat, s.Lng), nil
}

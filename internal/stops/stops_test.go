package stops

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfigueroa/linealert/internal/geo"
)

const stopsCSV = `stop_id,stop_name,stop_desc,stop_lat,stop_lon
40380,Clark/Lake,Loop elevated,41.885737,-87.630886
40730,Washington/Wells,Loop elevated,41.882695,-87.63378
40680,Adams/Wabash,Loop elevated,41.879507,-87.626037
bad1,No Coordinates,,,
`

func TestRead(t *testing.T) {
	idx, err := Read(strings.NewReader(stopsCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Count(), "row without coordinates should be skipped")

	s, ok := idx.Lookup("40380")
	require.True(t, ok)
	assert.Equal(t, "Clark/Lake", s.Name)
	assert.InDelta(t, 41.885737, s.Lat, 1e-9)

	_, ok = idx.Lookup("99999")
	assert.False(t, ok)
}

func TestReadShortRows(t *testing.T) {
	csv := "stop_id,stop_name,stop_lat,stop_lon\n" +
		"40380,Clark/Lake\n" + // fewer fields than the header
		"40730\n" +
		"40680,Adams/Wabash,41.879507,-87.626037\n"

	idx, err := Read(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Count(), "short rows are skipped, not fatal")

	_, ok := idx.Lookup("40680")
	assert.True(t, ok)
	_, ok = idx.Lookup("40380")
	assert.False(t, ok)
}

func TestReadOnlyShortRows(t *testing.T) {
	csv := "stop_id,stop_name,stop_lat,stop_lon\n40380,Clark/Lake\n"
	_, err := Read(strings.NewReader(csv))
	assert.Error(t, err, "nothing usable left after skipping short rows")
}

func TestReadMissingColumn(t *testing.T) {
	_, err := Read(strings.NewReader("stop_id,stop_name\n1,Somewhere\n"))
	assert.Error(t, err)
}

func TestReadNoRows(t *testing.T) {
	_, err := Read(strings.NewReader("stop_id,stop_name,stop_lat,stop_lon\n"))
	assert.Error(t, err)
}

func TestNearestEmptyIndex(t *testing.T) {
	idx := FromStops(nil)
	_, err := idx.Nearest(41.88, -87.63)
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestNearestPicksMinimalDistance(t *testing.T) {
	idx, err := Read(strings.NewReader(stopsCSV))
	require.NoError(t, err)

	queries := [][2]float64{
		{41.885737, -87.630886}, // exactly Clark/Lake
		{41.8800, -87.6300},
		{41.8828, -87.6340},
		{41.8795, -87.6260},
		{42.0, -87.7},
	}

	for _, q := range queries {
		got, err := idx.Nearest(q[0], q[1])
		require.NoError(t, err)

		// Exhaustively confirm no other stop is strictly closer.
		gotDist := geo.Haversine(q[0], q[1], got.Lat, got.Lng)
		for _, id := range []string{"40380", "40730", "40680"} {
			s, _ := idx.Lookup(id)
			d := geo.Haversine(q[0], q[1], s.Lat, s.Lng)
			assert.LessOrEqual(t, gotDist, d,
				"query %v: stop %s is closer than returned stop %s", q, s.ID, got.ID)
		}
	}
}

func TestNearestDistanceAtStop(t *testing.T) {
	idx, err := Read(strings.NewReader(stopsCSV))
	require.NoError(t, err)

	s, dist, err := idx.NearestDistance(41.885737, -87.630886)
	require.NoError(t, err)
	assert.Equal(t, "40380", s.ID)
	assert.InDelta(t, 0, dist, 1e-6)
}

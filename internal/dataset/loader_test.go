package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusbus/shuttle_core/internal/models"
)

const testSchedule = `{
  "stops": [
    {"id": "KP1", "name": "Kolej Perdana", "lat": 1.5652, "lon": 103.6343},
    {"id": "CP", "name": "Central Point", "lat": 1.5584, "lon": 103.6321, "elevation": 38}
  ],
  "routes": [
    {
      "name": "Route A",
      "isLoop": true,
      "services": [
        {
          "service_id": "weekday",
          "days": ["Monday", "tuesday"],
          "trips": [
            {"headsign": "To CP", "stops_sequence": ["KP1", "CP"], "times": ["08:30", "07:00"]}
          ]
        }
      ]
    }
  ]
}`

const testLocations = `{
  "locations": [
    {"id": "arked_meranti", "name": "Arked Meranti", "lat": 1.5589, "lon": 103.6328, "nearestStop": "CP", "category": "food"}
  ]
}`

const testDurations = `{
  "Route A_To CP": {"segments": [{"fromStopId": "KP1", "toStopId": "CP", "totalSecs": 312}]}
}`

const testGeometries = `{
  "Route A : To CP": {"type": "LineString", "coordinates": [[103.6343, 1.5652], [103.6321, 1.5584]]}
}`

func writeDataset(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, ScheduleFile, testSchedule)
	writeDataset(t, dir, LocationsFile, testLocations)
	writeDataset(t, dir, DurationsFile, testDurations)
	writeDataset(t, dir, GeometriesFile, testGeometries)

	b, err := Load(dir)
	require.NoError(t, err)

	require.Len(t, b.Stops, 2)
	assert.Equal(t, "Kolej Perdana", b.Stops[0].Name)
	assert.Equal(t, 38.0, b.Stops[1].Elevation)

	require.Len(t, b.Routes, 1)
	route := b.Routes[0]
	assert.Equal(t, "Route A", route.Name)
	assert.True(t, route.IsLoop)
	require.Len(t, route.Services, 1)
	assert.Equal(t, []string{"monday", "tuesday"}, route.Services[0].Days)

	require.Len(t, route.Services[0].Trips, 1)
	trip := route.Services[0].Trips[0]
	assert.Equal(t, "To CP", trip.Headsign)
	assert.Equal(t, []string{"KP1", "CP"}, trip.Stops)
	assert.Equal(t, []int{420, 510}, trip.Times, "times parse to minutes and sort ascending")

	require.Len(t, b.Locations, 1)
	assert.Equal(t, "CP", b.Locations[0].NearestStop)

	entry, ok := b.Durations[DurationKey("Route A", "To CP")]
	require.True(t, ok)
	require.Len(t, entry.Segments, 1)
	assert.Equal(t, 312.0, entry.Segments[0].TotalSecs)

	geom, ok := b.Geometries[GeometryKey("Route A", "To CP")]
	require.True(t, ok)
	assert.Equal(t, "LineString", geom.Type)
	assert.Len(t, geom.Coordinates, 2)
}

func TestLoadStripsByteOrderMark(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, ScheduleFile, "\xEF\xBB\xBF"+testSchedule)
	writeDataset(t, dir, LocationsFile, testLocations)

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, b.Stops, 2)
}

func TestLoadOptionalFilesMayBeAbsent(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, ScheduleFile, testSchedule)
	writeDataset(t, dir, LocationsFile, testLocations)

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, b.Durations)
	assert.Empty(t, b.Geometries)
}

func TestLoadMissingSchedule(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, LocationsFile, testLocations)

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsBadTime(t *testing.T) {
	dir := t.TempDir()
	bad := `{"stops": [], "routes": [{"name": "Route B", "services": [
		{"service_id": "s", "days": ["monday"], "trips": [
			{"headsign": "To AM", "stops_sequence": ["AM"], "times": ["25:99"]}
		]}
	]}]}`
	writeDataset(t, dir, ScheduleFile, bad)
	writeDataset(t, dir, LocationsFile, testLocations)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Route B")
}

func TestLoadRejectsUnknownDay(t *testing.T) {
	dir := t.TempDir()
	bad := `{"stops": [], "routes": [{"name": "Route B", "services": [
		{"service_id": "s", "days": ["payday"], "trips": []}
	]}]}`
	writeDataset(t, dir, ScheduleFile, bad)
	writeDataset(t, dir, LocationsFile, testLocations)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payday")
}

func TestValidate(t *testing.T) {
	t.Run("clean bundle has no problems", func(t *testing.T) {
		dir := t.TempDir()
		writeDataset(t, dir, ScheduleFile, testSchedule)
		writeDataset(t, dir, LocationsFile, testLocations)
		writeDataset(t, dir, DurationsFile, testDurations)
		writeDataset(t, dir, GeometriesFile, testGeometries)

		b, err := Load(dir)
		require.NoError(t, err)
		assert.Empty(t, b.Validate())
	})

	t.Run("missing durations are reported", func(t *testing.T) {
		dir := t.TempDir()
		writeDataset(t, dir, ScheduleFile, testSchedule)
		writeDataset(t, dir, LocationsFile, testLocations)

		b, err := Load(dir)
		require.NoError(t, err)

		problems := b.Validate()
		require.Len(t, problems, 1)
		assert.Equal(t, ProblemMissingDurations, problems[0].Kind)
		assert.Equal(t, "Route A/To CP", problems[0].Ref)
	})

	t.Run("referential defects are reported", func(t *testing.T) {
		b := &Bundle{
			Stops: []models.Stop{
				{ID: "CP", Name: "Central Point", Lat: 1.5584, Lon: 103.6321},
				{ID: "CP", Name: "Central Point Again", Lat: 1.5584, Lon: 103.6321},
				{ID: "NUL", Name: "Null Island"},
			},
			Locations: []models.Location{
				{ID: "lib", Name: "Library", Lat: 1.56, Lon: 103.63, NearestStop: "GHOST"},
			},
			Routes: []models.Route{
				{
					Name: "Route X",
					Services: []models.Service{
						{
							ID:   "s1",
							Days: []string{"monday"},
							Trips: []models.Trip{
								{Headsign: "Out", Stops: []string{"CP", "GHOST"}, Times: []int{420}},
								{Headsign: "Out", Stops: []string{"CP"}, Times: nil},
							},
						},
					},
				},
			},
			Durations: map[string]DurationEntry{
				DurationKey("Route X", "Out"): {Segments: []Segment{
					{FromStopID: "CP", ToStopID: "ELSEWHERE", TotalSecs: 100},
				}},
			},
			Geometries: map[string]Geometry{
				"Route Z : Nowhere": {Type: "LineString"},
			},
		}

		problems := b.Validate()
		kinds := make(map[string]int)
		for _, p := range problems {
			kinds[p.Kind]++
		}

		assert.Equal(t, 1, kinds[ProblemDuplicateStop])
		assert.Equal(t, 1, kinds[ProblemBadCoordinates])
		assert.Equal(t, 1, kinds[ProblemUnknownNearest])
		assert.Equal(t, 1, kinds[ProblemUnknownStop])
		assert.Equal(t, 1, kinds[ProblemDuplicateHeadsign])
		assert.Equal(t, 1, kinds[ProblemNoTimes])
		assert.Equal(t, 1, kinds[ProblemOrphanGeometry])
		assert.GreaterOrEqual(t, kinds[ProblemSegmentMismatch], 1)
	})
}

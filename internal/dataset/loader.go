// Package dataset reads and validates the static JSON datasets the planner
// runs on: the timetable, the named campus locations, per-segment ride
// durations and route geometries.
package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"github.com/campusbus/shuttle_core/internal/models"
)

// Dataset file names expected under the data directory.
const (
	ScheduleFile   = "schedule.json"
	LocationsFile  = "locations.json"
	DurationsFile  = "route_durations.json"
	GeometriesFile = "route_geometries.json"
)

// Segment is one measured hop between consecutive stops of a trip pattern.
type Segment struct {
	FromStopID string  `json:"fromStopId"`
	ToStopID   string  `json:"toStopId"`
	TotalSecs  float64 `json:"totalSecs"`
}

// DurationEntry holds the per-segment travel times of one trip pattern.
// Segments[i] spans stop index i to i+1.
type DurationEntry struct {
	Segments []Segment `json:"segments"`
}

// Geometry is a GeoJSON LineString, coordinates ordered lon before lat.
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// Bundle is everything loaded from the data directory. Durations and
// geometries are optional; their absence degrades to estimates.
type Bundle struct {
	Stops      []models.Stop
	Locations  []models.Location
	Routes     []models.Route
	Durations  map[string]DurationEntry
	Geometries map[string]Geometry
}

// DurationKey builds the route_durations lookup key for a trip pattern.
func DurationKey(route, headsign string) string {
	return route + "_" + headsign
}

// GeometryKey builds the route_geometries lookup key for a trip pattern.
func GeometryKey(route, headsign string) string {
	return route + " : " + headsign
}

type scheduleFile struct {
	Stops  []stopRecord  `json:"stops"`
	Routes []routeRecord `json:"routes"`
}

type stopRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Elevation float64 `json:"elevation"`
}

type routeRecord struct {
	Name     string          `json:"name"`
	IsLoop   bool            `json:"isLoop"`
	Services []serviceRecord `json:"services"`
}

type serviceRecord struct {
	ServiceID string       `json:"service_id"`
	Days      []string     `json:"days"`
	Trips     []tripRecord `json:"trips"`
}

type tripRecord struct {
	Headsign      string   `json:"headsign"`
	StopsSequence []string `json:"stops_sequence"`
	Times         []string `json:"times"`
}

type locationsFile struct {
	Locations []locationRecord `json:"locations"`
}

type locationRecord struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Elevation   float64 `json:"elevation"`
	NearestStop string  `json:"nearestStop"`
	Category    string  `json:"category"`
}

// Load reads the four dataset files from dir. schedule.json and
// locations.json are required; durations and geometries may be absent.
func Load(dir string) (*Bundle, error) {
	b := &Bundle{
		Durations:  make(map[string]DurationEntry),
		Geometries: make(map[string]Geometry),
	}

	var sched scheduleFile
	if err := readJSON(filepath.Join(dir, ScheduleFile), &sched); err != nil {
		return nil, err
	}
	stops, routes, err := convertSchedule(sched)
	if err != nil {
		return nil, err
	}
	b.Stops = stops
	b.Routes = routes

	var locs locationsFile
	if err := readJSON(filepath.Join(dir, LocationsFile), &locs); err != nil {
		return nil, err
	}
	b.Locations = convertLocations(locs)

	if err := readJSONOptional(filepath.Join(dir, DurationsFile), &b.Durations); err != nil {
		return nil, err
	}
	if err := readJSONOptional(filepath.Join(dir, GeometriesFile), &b.Geometries); err != nil {
		return nil, err
	}

	return b, nil
}

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	if err := json.NewDecoder(bom.NewReader(f)).Decode(v); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	return nil
}

func readJSONOptional(path string, v interface{}) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return readJSON(path, v)
}

func convertSchedule(sched scheduleFile) ([]models.Stop, []models.Route, error) {
	stops := make([]models.Stop, 0, len(sched.Stops))
	for _, s := range sched.Stops {
		stops = append(stops, models.Stop{
			ID:        s.ID,
			Name:      s.Name,
			Lat:       s.Lat,
			Lon:       s.Lon,
			Elevation: s.Elevation,
		})
	}

	routes := make([]models.Route, 0, len(sched.Routes))
	for _, r := range sched.Routes {
		route := models.Route{Name: r.Name, IsLoop: r.IsLoop}
		for _, sv := range r.Services {
			service := models.Service{ID: sv.ServiceID}
			for _, d := range sv.Days {
				day, err := CanonicalDay(d)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "route %q service %q", r.Name, sv.ServiceID)
				}
				service.Days = append(service.Days, day)
			}
			for _, t := range sv.Trips {
				trip := models.Trip{Headsign: t.Headsign, Stops: t.StopsSequence}
				for _, raw := range t.Times {
					mins, err := ParseClock(raw)
					if err != nil {
						return nil, nil, errors.Wrapf(err, "route %q trip %q", r.Name, t.Headsign)
					}
					trip.Times = append(trip.Times, mins)
				}
				sort.Ints(trip.Times)
				service.Trips = append(service.Trips, trip)
			}
			route.Services = append(route.Services, service)
		}
		routes = append(routes, route)
	}

	return stops, routes, nil
}

func convertLocations(locs locationsFile) []models.Location {
	out := make([]models.Location, 0, len(locs.Locations))
	for _, l := range locs.Locations {
		out = append(out, models.Location{
			ID:          l.ID,
			Name:        l.Name,
			Lat:         l.Lat,
			Lon:         l.Lon,
			Elevation:   l.Elevation,
			NearestStop: l.NearestStop,
			Category:    l.Category,
		})
	}
	return out
}

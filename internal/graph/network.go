// Package graph holds the in-memory shuttle network: stops, locations,
// trip patterns and the derived indices every upper layer queries. A
// Network is immutable once built; reloads build a fresh one and swap it
// through a Holder.
package graph

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/models"
)

// PatternKey identifies a trip pattern. Headsigns are unique within a
// route, so the pair is unique network-wide.
type PatternKey struct {
	Route    string
	Headsign string
}

// TripRef binds a trip to its route and service and carries the
// pre-built stop-membership index.
type TripRef struct {
	Route   *models.Route
	Service *models.Service
	Trip    *models.Trip

	stopIdx map[string]int
	days    map[string]bool
}

// RouteName returns the owning route's display name.
func (r *TripRef) RouteName() string { return r.Route.Name }

// Headsign returns the trip's direction label.
func (r *TripRef) Headsign() string { return r.Trip.Headsign }

// Key returns the pattern identity.
func (r *TripRef) Key() PatternKey {
	return PatternKey{Route: r.Route.Name, Headsign: r.Trip.Headsign}
}

// StopIndex returns the position of a stop in the trip's sequence.
func (r *TripRef) StopIndex(stopID string) (int, bool) {
	i, ok := r.stopIdx[stopID]
	return i, ok
}

// Stops returns the ordered stop sequence.
func (r *TripRef) Stops() []string { return r.Trip.Stops }

// Times returns the trip's start times in minutes since midnight.
func (r *TripRef) Times() []int { return r.Trip.Times }

// Terminus returns the last stop id of the sequence.
func (r *TripRef) Terminus() string {
	if len(r.Trip.Stops) == 0 {
		return ""
	}
	return r.Trip.Stops[len(r.Trip.Stops)-1]
}

// ServesDay reports whether the trip runs on the given day.
func (r *TripRef) ServesDay(day string) bool { return r.days[day] }

// Days returns the service days as loaded.
func (r *TripRef) Days() []string { return r.Service.Days }

// DaysOverlap reports whether two trips share at least one service day.
func (r *TripRef) DaysOverlap(other *TripRef) bool {
	for d := range r.days {
		if other.days[d] {
			return true
		}
	}
	return false
}

// StopVisit records that a trip pattern calls at a stop at a given
// sequence position.
type StopVisit struct {
	Ref   *TripRef
	Index int
}

// StopDistance pairs a stop with its distance from a query point.
type StopDistance struct {
	Stop      *models.Stop
	DistanceM float64
}

// Network is the read-only static data store plus derived indices.
type Network struct {
	builtAt time.Time
	stamp   string

	stops       []*models.Stop
	stopsByID   map[string]*models.Stop
	stopsByName map[string]*models.Stop

	locations []*models.Location
	locByID   map[string]*models.Location
	locByName map[string]*models.Location

	routes       []*models.Route
	routesByName map[string]*models.Route

	patterns     map[PatternKey]*TripRef
	visitsByStop map[string][]StopVisit
	tripsByRoute map[string][]*TripRef

	durations  map[string][]float64
	geometries map[string]dataset.Geometry
}

// Build constructs the network and all indices from a loaded bundle.
func Build(b *dataset.Bundle) (*Network, error) {
	if len(b.Stops) == 0 {
		return nil, fmt.Errorf("bundle has no stops")
	}

	n := &Network{
		builtAt:      time.Now(),
		stopsByID:    make(map[string]*models.Stop, len(b.Stops)),
		stopsByName:  make(map[string]*models.Stop, len(b.Stops)),
		locByID:      make(map[string]*models.Location),
		locByName:    make(map[string]*models.Location),
		routesByName: make(map[string]*models.Route, len(b.Routes)),
		patterns:     make(map[PatternKey]*TripRef),
		visitsByStop: make(map[string][]StopVisit),
		tripsByRoute: make(map[string][]*TripRef),
		durations:    make(map[string][]float64, len(b.Durations)),
		geometries:   make(map[string]dataset.Geometry, len(b.Geometries)),
	}

	for i := range b.Stops {
		stop := &b.Stops[i]
		if _, dup := n.stopsByID[stop.ID]; dup {
			log.Printf("Warning: duplicate stop %s, keeping first", stop.ID)
			continue
		}
		n.stops = append(n.stops, stop)
		n.stopsByID[stop.ID] = stop
		if _, taken := n.stopsByName[strings.ToLower(stop.Name)]; !taken {
			n.stopsByName[strings.ToLower(stop.Name)] = stop
		}
	}
	sort.Slice(n.stops, func(i, j int) bool { return n.stops[i].ID < n.stops[j].ID })

	n.buildLocations(b)
	if err := n.buildPatterns(b); err != nil {
		return nil, err
	}

	for key, entry := range b.Durations {
		secs := make([]float64, len(entry.Segments))
		for i, seg := range entry.Segments {
			secs[i] = seg.TotalSecs
		}
		n.durations[key] = secs
	}
	for key, geom := range b.Geometries {
		n.geometries[key] = geom
	}

	n.stamp = fmt.Sprintf("%d-%d-%d", len(n.stops), len(n.patterns), n.builtAt.UnixNano())
	log.Printf("Network built: %d stops, %d locations, %d routes, %d trip patterns",
		len(n.stops), len(n.locations), len(n.routes), len(n.patterns))

	return n, nil
}

// buildLocations merges dataset locations with one synthetic bus-stop
// location per stop. On id collision the stop wins.
func (n *Network) buildLocations(b *dataset.Bundle) {
	for i := range b.Locations {
		loc := &b.Locations[i]
		if _, isStop := n.stopsByID[loc.ID]; isStop {
			continue
		}
		if _, dup := n.locByID[loc.ID]; dup {
			log.Printf("Warning: duplicate location %s, keeping first", loc.ID)
			continue
		}
		n.locations = append(n.locations, loc)
		n.locByID[loc.ID] = loc
		if _, taken := n.locByName[strings.ToLower(loc.Name)]; !taken {
			n.locByName[strings.ToLower(loc.Name)] = loc
		}
	}

	for _, stop := range n.stops {
		synthetic := &models.Location{
			ID:          stop.ID,
			Name:        stop.Name,
			Lat:         stop.Lat,
			Lon:         stop.Lon,
			Elevation:   stop.Elevation,
			NearestStop: stop.ID,
			Category:    "bus_stop",
			IsStop:      true,
		}
		n.locations = append(n.locations, synthetic)
		n.locByID[stop.ID] = synthetic
	}

	sort.Slice(n.locations, func(i, j int) bool { return n.locations[i].ID < n.locations[j].ID })
}

func (n *Network) buildPatterns(b *dataset.Bundle) error {
	for i := range b.Routes {
		route := &b.Routes[i]
		if _, dup := n.routesByName[route.Name]; dup {
			return fmt.Errorf("duplicate route name %q", route.Name)
		}
		n.routes = append(n.routes, route)
		n.routesByName[route.Name] = route

		for j := range route.Services {
			service := &route.Services[j]
			days := make(map[string]bool, len(service.Days))
			for _, d := range service.Days {
				days[d] = true
			}

			for k := range service.Trips {
				trip := &service.Trips[k]
				key := PatternKey{Route: route.Name, Headsign: trip.Headsign}
				if _, dup := n.patterns[key]; dup {
					log.Printf("Warning: duplicate headsign %q on route %q, keeping first",
						trip.Headsign, route.Name)
					continue
				}

				ref := &TripRef{
					Route:   route,
					Service: service,
					Trip:    trip,
					stopIdx: make(map[string]int, len(trip.Stops)),
					days:    days,
				}
				for idx, stopID := range trip.Stops {
					if _, seen := ref.stopIdx[stopID]; !seen {
						ref.stopIdx[stopID] = idx
					}
				}

				n.patterns[key] = ref
				n.tripsByRoute[route.Name] = append(n.tripsByRoute[route.Name], ref)
				for idx, stopID := range trip.Stops {
					n.visitsByStop[stopID] = append(n.visitsByStop[stopID], StopVisit{Ref: ref, Index: idx})
				}
			}
		}
	}

	sort.Slice(n.routes, func(i, j int) bool { return n.routes[i].Name < n.routes[j].Name })
	for _, refs := range n.tripsByRoute {
		sort.Slice(refs, func(i, j int) bool { return refs[i].Headsign() < refs[j].Headsign() })
	}
	for stopID, visits := range n.visitsByStop {
		sort.Slice(visits, func(i, j int) bool {
			a, b := visits[i], visits[j]
			if a.Ref.RouteName() != b.Ref.RouteName() {
				return a.Ref.RouteName() < b.Ref.RouteName()
			}
			if a.Ref.Headsign() != b.Ref.Headsign() {
				return a.Ref.Headsign() < b.Ref.Headsign()
			}
			return a.Index < b.Index
		})
		n.visitsByStop[stopID] = visits
	}

	return nil
}

// Stop looks up a stop by id.
func (n *Network) Stop(id string) (*models.Stop, bool) {
	s, ok := n.stopsByID[id]
	return s, ok
}

// StopByName looks up a stop by case-insensitive exact name.
func (n *Network) StopByName(name string) (*models.Stop, bool) {
	s, ok := n.stopsByName[strings.ToLower(name)]
	return s, ok
}

// StopsMatching returns stops whose name contains the query,
// case-insensitively, in id order.
func (n *Network) StopsMatching(q string) []*models.Stop {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	var out []*models.Stop
	for _, s := range n.stops {
		if strings.Contains(strings.ToLower(s.Name), q) {
			out = append(out, s)
		}
	}
	return out
}

// Stops returns every stop in id order.
func (n *Network) Stops() []*models.Stop { return n.stops }

// Location looks up a location (or synthetic bus-stop location) by id.
func (n *Network) Location(id string) (*models.Location, bool) {
	l, ok := n.locByID[id]
	return l, ok
}

// LocationByName looks up a dataset location by case-insensitive name.
func (n *Network) LocationByName(name string) (*models.Location, bool) {
	l, ok := n.locByName[strings.ToLower(name)]
	return l, ok
}

// Locations returns every queryable location in id order.
func (n *Network) Locations() []*models.Location { return n.locations }

// Route looks up a route by name.
func (n *Network) Route(name string) (*models.Route, bool) {
	r, ok := n.routesByName[name]
	return r, ok
}

// Routes returns every route in name order.
func (n *Network) Routes() []*models.Route { return n.routes }

// Pattern looks up a trip pattern.
func (n *Network) Pattern(route, headsign string) (*TripRef, bool) {
	ref, ok := n.patterns[PatternKey{Route: route, Headsign: headsign}]
	return ref, ok
}

// PatternsOf returns a route's trip patterns in headsign order.
func (n *Network) PatternsOf(routeName string) []*TripRef {
	return n.tripsByRoute[routeName]
}

// VisitsAt returns every (pattern, index) that calls at a stop, ordered by
// route then headsign.
func (n *Network) VisitsAt(stopID string) []StopVisit {
	return n.visitsByStop[stopID]
}

// SegmentSecs returns a pattern's measured per-segment seconds, or nil
// when the durations dataset has no entry.
func (n *Network) SegmentSecs(route, headsign string) []float64 {
	return n.durations[dataset.DurationKey(route, headsign)]
}

// Geometry returns a pattern's polyline, if the geometries dataset has one.
func (n *Network) Geometry(route, headsign string) (dataset.Geometry, bool) {
	g, ok := n.geometries[dataset.GeometryKey(route, headsign)]
	return g, ok
}

// StopsWithin returns all stops within radiusM of a point, closest first;
// ties break on stop id.
func (n *Network) StopsWithin(lat, lon, radiusM float64) []StopDistance {
	var out []StopDistance
	for _, s := range n.stops {
		d := geo.Haversine(lat, lon, s.Lat, s.Lon)
		if d <= radiusM {
			out = append(out, StopDistance{Stop: s, DistanceM: d})
		}
	}
	SortByDistance(out)
	return out
}

// NearestStops returns the k closest stops to a point, closest first.
func (n *Network) NearestStops(lat, lon float64, k int) []StopDistance {
	out := make([]StopDistance, 0, len(n.stops))
	for _, s := range n.stops {
		out = append(out, StopDistance{Stop: s, DistanceM: geo.Haversine(lat, lon, s.Lat, s.Lon)})
	}
	SortByDistance(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// SortByDistance orders stop distances closest first, breaking ties on
// stop id.
func SortByDistance(stops []StopDistance) {
	sort.Slice(stops, func(i, j int) bool {
		if stops[i].DistanceM != stops[j].DistanceM {
			return stops[i].DistanceM < stops[j].DistanceM
		}
		return stops[i].Stop.ID < stops[j].Stop.ID
	})
}

// Stamp identifies this build; it changes on every reload.
func (n *Network) Stamp() string { return n.stamp }

// BuiltAt returns the build time.
func (n *Network) BuiltAt() time.Time { return n.builtAt }

// Package locate maps free-form place queries onto the network and finds
// boardable stops near arbitrary points. Distances are straight-line unless
// a walking router is configured, in which case short lookups are refined
// against the path network and memoized.
package locate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/models"
	"github.com/campusbus/shuttle_core/internal/walking"
)

// ErrNotFound reports that a query matched nothing in the network.
var ErrNotFound = errors.New("location not found")

const (
	// nearbyPrefilter caps how many straight-line candidates are sent to
	// the walking router for refinement.
	nearbyPrefilter = 10

	matrixTimeout = 5 * time.Second
	pairTimeout   = 2 * time.Second

	walkCacheSize    = 128
	nearestCacheSize = 100
)

// WalkEstimate is a walking distance between two points. Refined means it
// came from the path network rather than the great-circle formula.
type WalkEstimate struct {
	Meters  float64
	Refined bool
}

// memo is a bounded map that evicts its oldest entry on overflow. Callers
// hold the Service mutex.
type memo[V any] struct {
	cap     int
	order   []string
	entries map[string]V
}

func newMemo[V any](cap int) *memo[V] {
	return &memo[V]{cap: cap, entries: make(map[string]V, cap)}
}

func (c *memo[V]) get(key string) (V, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *memo[V]) put(key string, v V) {
	if _, exists := c.entries[key]; exists {
		c.entries[key] = v
		return
	}
	if len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.order = append(c.order, key)
	c.entries[key] = v
}

// Service answers "where is this" and "what can I board from here".
type Service struct {
	holder *graph.Holder
	walker walking.Router

	mu      sync.Mutex
	walks   *memo[WalkEstimate]
	nearest *memo[[]graph.StopDistance]
}

// New builds a locator over the current network. A nil walker disables
// path-network refinement.
func New(holder *graph.Holder, walker walking.Router) *Service {
	if walker == nil {
		walker = walking.Disabled{}
	}
	return &Service{
		holder:  holder,
		walker:  walker,
		walks:   newMemo[WalkEstimate](walkCacheSize),
		nearest: newMemo[[]graph.StopDistance](nearestCacheSize),
	}
}

// Resolve turns a free-form query into a location. The cascade tries, in
// order: exact id (locations and stops share the id namespace), exact
// location name, exact stop name, then substring match over stop names.
// All name matching is case-insensitive; substring ties go to the first
// stop in id order. Fuzzy discovery over locations belongs to Search.
func (s *Service) Resolve(query string) (*models.Location, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrNotFound
	}
	net := s.holder.Get()
	if net == nil {
		return nil, ErrNotFound
	}

	if loc, ok := net.Location(q); ok {
		return loc, nil
	}
	if loc, ok := net.LocationByName(q); ok {
		return loc, nil
	}
	if stop, ok := net.StopByName(q); ok {
		if loc, ok := net.Location(stop.ID); ok {
			return loc, nil
		}
	}

	if matches := net.StopsMatching(q); len(matches) > 0 {
		if loc, ok := net.Location(matches[0].ID); ok {
			return loc, nil
		}
	}
	return nil, ErrNotFound
}

// Search lists locations whose name contains the query, in id order.
// A non-positive limit returns everything.
func (s *Service) Search(query string, limit int) []*models.Location {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	net := s.holder.Get()
	if net == nil {
		return nil
	}

	var out []*models.Location
	for _, loc := range net.Locations() {
		if strings.Contains(strings.ToLower(loc.Name), q) {
			out = append(out, loc)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// NearestStopTo returns the boarding stop for a location: the location
// itself when it is a stop, its curated nearest stop when one is recorded,
// otherwise the closest stop by distance.
func (s *Service) NearestStopTo(loc *models.Location) (*models.Stop, float64, bool) {
	net := s.holder.Get()
	if net == nil || loc == nil {
		return nil, 0, false
	}

	if loc.IsStop {
		if stop, ok := net.Stop(loc.ID); ok {
			return stop, 0, true
		}
	}
	if loc.NearestStop != "" {
		if stop, ok := net.Stop(loc.NearestStop); ok {
			return stop, geo.Haversine(loc.Lat, loc.Lon, stop.Lat, stop.Lon), true
		}
	}
	nearest := net.NearestStops(loc.Lat, loc.Lon, 1)
	if len(nearest) == 0 {
		return nil, 0, false
	}
	return nearest[0].Stop, nearest[0].DistanceM, true
}

// NearbyStops lists stops within radiusM of a point, straight-line,
// closest first. A positive k truncates the list.
func (s *Service) NearbyStops(lat, lon, radiusM float64, k int) []graph.StopDistance {
	net := s.holder.Get()
	if net == nil {
		return nil
	}
	out := net.StopsWithin(lat, lon, radiusM)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// RefinedNearest returns the k closest stops to a point. The top
// straight-line candidates are re-measured through the walking router when
// one is available; on any router failure the straight-line ranking stands.
// Rankings are memoized by the rounded point until the next Reset.
func (s *Service) RefinedNearest(ctx context.Context, p geo.Point, k int) []graph.StopDistance {
	net := s.holder.Get()
	if net == nil {
		return nil
	}

	key := pointKey(p)
	s.mu.Lock()
	ranked, ok := s.nearest.get(key)
	s.mu.Unlock()
	if !ok {
		ranked = s.rankNearest(ctx, net, p)
		s.mu.Lock()
		s.nearest.put(key, ranked)
		s.mu.Unlock()
	}

	out := append([]graph.StopDistance(nil), ranked...)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func (s *Service) rankNearest(ctx context.Context, net *graph.Network, p geo.Point) []graph.StopDistance {
	candidates := net.NearestStops(p.Lat, p.Lon, nearbyPrefilter)
	if len(candidates) == 0 {
		return nil
	}

	pts := make([]geo.Point, len(candidates))
	for i, c := range candidates {
		pts[i] = geo.Point{Lat: c.Stop.Lat, Lon: c.Stop.Lon}
	}

	mctx, cancel := context.WithTimeout(ctx, matrixTimeout)
	defer cancel()
	dists, err := s.walker.Matrix(mctx, p, pts)
	if err != nil || len(dists) != len(candidates) {
		return candidates
	}

	refined := make([]graph.StopDistance, len(candidates))
	for i, c := range candidates {
		d := c.DistanceM
		if dists[i] > 0 {
			d = dists[i]
		}
		refined[i] = graph.StopDistance{Stop: c.Stop, DistanceM: d}
	}
	graph.SortByDistance(refined)
	return refined
}

// WalkingDistance estimates the walk between two points in meters. Results
// are cached; the cache drops to straight-line when the router is away.
func (s *Service) WalkingDistance(ctx context.Context, from, to geo.Point) WalkEstimate {
	key := pairKey(from, to)

	s.mu.Lock()
	if est, ok := s.walks.get(key); ok {
		s.mu.Unlock()
		return est
	}
	s.mu.Unlock()

	est := WalkEstimate{Meters: geo.Distance(from, to)}
	pctx, cancel := context.WithTimeout(ctx, pairTimeout)
	defer cancel()
	if dists, err := s.walker.Matrix(pctx, from, []geo.Point{to}); err == nil && len(dists) == 1 && dists[0] > 0 {
		est = WalkEstimate{Meters: dists[0], Refined: true}
	}

	s.mu.Lock()
	s.walks.put(key, est)
	s.mu.Unlock()
	return est
}

// Reset drops cached walking estimates and nearest-stop rankings. Call it
// after a network swap.
func (s *Service) Reset() {
	s.mu.Lock()
	s.walks = newMemo[WalkEstimate](walkCacheSize)
	s.nearest = newMemo[[]graph.StopDistance](nearestCacheSize)
	s.mu.Unlock()
}

func pointKey(p geo.Point) string {
	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lon)
}

func pairKey(from, to geo.Point) string {
	return pointKey(from) + "|" + pointKey(to)
}

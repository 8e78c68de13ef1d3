// Package routing is the trip-planning core: a time-dependent multi-modal
// A* search over walk and bus edges, plus the discovery, cost model, and
// response assembly around it. The planner is pure over its inputs; two
// identical requests against the same network yield identical itineraries.
package routing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/locate"
	"github.com/campusbus/shuttle_core/internal/models"
	"github.com/campusbus/shuttle_core/internal/schedule"
	"github.com/campusbus/shuttle_core/internal/walking"
)

// Planner answers trip queries. It is safe for concurrent use; each call
// snapshots the current network from the holder.
type Planner struct {
	holder  *graph.Holder
	locator *locate.Service
	walker  walking.Router
	hubs    []string
}

// NewPlanner wires the planner. A nil walker disables enrichment and
// refinement; empty hubs fall back to the built-in set.
func NewPlanner(holder *graph.Holder, locator *locate.Service, walker walking.Router, hubs []string) *Planner {
	if walker == nil {
		walker = walking.Disabled{}
	}
	if len(hubs) == 0 {
		hubs = DefaultTransferHubs
	}
	return &Planner{holder: holder, locator: locator, walker: walker, hubs: hubs}
}

// Request describes one planning query. Exactly one of OriginStopID and
// OriginPoint must be set; Destination takes an id or name unless DestPoint
// pins coordinates directly.
type Request struct {
	OriginStopID string
	OriginPoint  *geo.Point
	Destination  string
	DestPoint    *geo.Point
	Day          string
	QueryMins    float64
	ForceBus     bool
	Anytime      bool
}

// usefulRide is a boardable candidate that reaches the destination area or
// a transfer hub, paired with its first-mile walk. usefulIdx is the first
// downstream index that makes the ride worth taking.
type usefulRide struct {
	ref       *graph.TripRef
	boardIdx  int
	usefulIdx int
	stop      *models.Stop
	walkM     float64
}

// Plan computes an itinerary. Logical failures come back as *PlanError;
// the walking router degrading never fails a plan.
func (p *Planner) Plan(ctx context.Context, req Request) (*models.Itinerary, error) {
	net := p.holder.Get()
	if net == nil {
		return nil, fmt.Errorf("network not loaded")
	}

	rawDay := req.Day
	if rawDay == "" {
		rawDay = time.Now().Weekday().String()
	}
	day, err := dataset.CanonicalDay(rawDay)
	if err != nil {
		return nil, err
	}

	var origin geo.Point
	var originName string
	switch {
	case req.OriginStopID != "":
		stop, ok := net.Stop(req.OriginStopID)
		if !ok {
			return nil, newPlanError(KindOriginNotFound, fmt.Sprintf("unknown stop %q", req.OriginStopID))
		}
		origin = geo.Point{Lat: stop.Lat, Lon: stop.Lon}
		originName = stop.Name
	case req.OriginPoint != nil:
		origin = *req.OriginPoint
		originName = "Your location"
	default:
		return nil, newPlanError(KindOriginMissing, "origin requires a stop id or coordinates")
	}

	var dest geo.Point
	destName := "Destination"
	var destStopID string
	if req.DestPoint != nil {
		dest = *req.DestPoint
		if req.Destination != "" {
			if loc, rerr := p.locator.Resolve(req.Destination); rerr == nil {
				destName = loc.Name
			}
		}
		if nearest := net.NearestStops(dest.Lat, dest.Lon, 1); len(nearest) > 0 && nearest[0].DistanceM <= MaxWalkDestM {
			destStopID = nearest[0].Stop.ID
		}
	} else {
		loc, rerr := p.locator.Resolve(req.Destination)
		if rerr != nil {
			return nil, newPlanError(KindDestinationNotFound, fmt.Sprintf("cannot resolve destination %q", req.Destination))
		}
		dest = geo.Point{Lat: loc.Lat, Lon: loc.Lon}
		destName = loc.Name
		if stop, _, ok := p.locator.NearestStopTo(loc); ok {
			destStopID = stop.ID
		}
	}

	b := &builder{
		net:        net,
		walker:     p.walker,
		origin:     origin,
		dest:       dest,
		originName: originName,
		destName:   destName,
		day:        day,
		queryMins:  req.QueryMins,
		anytime:    req.Anytime,
	}

	oracle := schedule.NewOracle(net)
	disc := NewDiscovery(net, p.hubs)
	directM := geo.Distance(origin, dest)

	if directM < SamePlaceThresholdM {
		return b.walkOnly(ctx, directM, "You are already at your destination", nil), nil
	}

	if !req.ForceBus {
		if directM < ShortWalkThresholdM {
			return b.walkOnly(ctx, directM, "", nil), nil
		}
		if directM < WalkOnlyThresholdM {
			rides := p.usefulRides(net, disc, origin, dest, destStopID)
			if _, _, ok := p.nextUsefulDeparture(oracle, rides, day, req.QueryMins, false, ImminentBusWaitMins); !ok {
				return b.walkOnly(ctx, directM, "", nil), nil
			}
		}
	}

	params := searchParams{
		origin:     origin,
		dest:       dest,
		destStopID: destStopID,
		day:        day,
		queryMins:  req.QueryMins,
		anytime:    req.Anytime,
	}

	res, serr := runSearch(ctx, net, oracle, params)
	if serr == nil && hasRides(res.hops) {
		return b.fromResult(ctx, res), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if serr == errNoBoardableStops {
		return b.walkOnly(ctx, directM, "No bus stops within walking range of your location", nil), nil
	}

	// Either the search exhausted, or its best journey never boards a bus.
	// A trip the user can walk outright keeps the walking answer; anything
	// longer probes the timetable for a departure beyond the horizon and
	// replans shortly before it.
	if serr == nil && directM <= MaxWalkDestM {
		return b.walkOnly(ctx, directM, "", nil), nil
	}

	rides := p.usefulRides(net, disc, origin, dest, destStopID)
	dep, ride, ok := p.nextUsefulDeparture(oracle, rides, day, req.QueryMins, true, 0)
	if !ok {
		if serr != nil && len(rides) > 0 {
			return nil, newPlanError(KindNoService, "buses serve this connection but none depart in the coming week")
		}
		return b.walkOnly(ctx, directM, "", nil), nil
	}

	depAbs := float64(dep.DaysAhead*schedule.MinutesPerDay + dep.ArrivalMins)
	if depAbs-req.QueryMins > SearchHorizonMins {
		rb := *b
		rb.day = dep.Day
		rb.queryMins = math.Max(0, float64(dep.ArrivalMins)-rescanLeadMins)

		rp := params
		rp.day = rb.day
		rp.queryMins = rb.queryMins
		if rres, rerr := runSearch(ctx, net, oracle, rp); rerr == nil && hasRides(rres.hops) {
			it := rb.fromResult(ctx, rres)
			if dep.DaysAhead > 0 {
				it.Summary.DepartureDay = dep.Day
			}
			return it, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	alt := &models.AlternativeBus{
		Route:       ride.ref.RouteName(),
		Headsign:    ride.ref.Headsign(),
		StopID:      ride.stop.ID,
		Stop:        ride.stop.Name,
		Departure:   dataset.FormatClock(dep.ArrivalMins),
		Day:         dep.Day,
		WaitMins:    depAbs - req.QueryMins,
		WalkToStopM: ride.walkM,
	}
	return b.walkOnly(ctx, directM, "", alt), nil
}

// usefulRides enumerates boardable (pattern, index) pairs near the origin
// whose downstream stops reach the destination area or a transfer hub.
func (p *Planner) usefulRides(net *graph.Network, disc *Discovery, origin, dest geo.Point, destStopID string) []usefulRide {
	nearDest := make(map[string]bool)
	for _, sd := range net.StopsWithin(dest.Lat, dest.Lon, AlternativeStopRadiusM) {
		nearDest[sd.Stop.ID] = true
	}
	if destStopID != "" {
		nearDest[destStopID] = true
	}
	hubSet := make(map[string]bool, len(disc.Hubs()))
	for _, h := range disc.Hubs() {
		hubSet[h] = true
	}

	type rideKey struct {
		key    graph.PatternKey
		idx    int
		stopID string
	}
	seen := make(map[rideKey]bool)

	var out []usefulRide
	for _, cand := range net.StopsWithin(origin.Lat, origin.Lon, MaxWalkOriginM) {
		for _, visit := range net.VisitsAt(cand.Stop.ID) {
			stops := visit.Ref.Stops()
			usefulIdx := -1
			for j := visit.Index + 1; j < len(stops); j++ {
				if nearDest[stops[j]] || hubSet[stops[j]] {
					usefulIdx = j
					break
				}
			}
			if usefulIdx < 0 {
				continue
			}
			k := rideKey{visit.Ref.Key(), visit.Index, cand.Stop.ID}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, usefulRide{
				ref:       visit.Ref,
				boardIdx:  visit.Index,
				usefulIdx: usefulIdx,
				stop:      cand.Stop,
				walkM:     cand.DistanceM,
			})
		}
	}
	return out
}

// nextUsefulDeparture finds the earliest catchable departure among the
// candidates, accounting for the walk to each boarding stop. Departures
// whose useful alighting falls in the blackout do not count. A positive
// maxWaitMins additionally requires the departure within that many minutes
// of the query.
func (p *Planner) nextUsefulDeparture(oracle *schedule.Oracle, rides []usefulRide, day string, queryMins float64, anyDay bool, maxWaitMins float64) (schedule.Departure, usefulRide, bool) {
	var best schedule.Departure
	var bestRide usefulRide
	bestAbs := math.Inf(1)

	for _, r := range rides {
		reach := queryMins + WalkMinutes(r.walkM)
		var dep schedule.Departure
		var ok bool
		if anyDay {
			dep, ok = oracle.NextRideableAnyDay(r.ref, r.boardIdx, r.usefulIdx, day, reach)
		} else {
			dep, ok = oracle.NextRideable(r.ref, r.boardIdx, r.usefulIdx, day, reach)
		}
		if !ok {
			continue
		}
		abs := float64(dep.DaysAhead*schedule.MinutesPerDay + dep.ArrivalMins)
		if maxWaitMins > 0 && abs-queryMins > maxWaitMins {
			continue
		}
		if abs < bestAbs {
			bestAbs = abs
			best = dep
			bestRide = r
		}
	}
	return best, bestRide, !math.IsInf(bestAbs, 1)
}

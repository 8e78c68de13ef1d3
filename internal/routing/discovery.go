package routing

import (
	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/models"
)

// DirectRideSpec is a single-trip ride: board one pattern and stay on it.
type DirectRideSpec struct {
	Ref         *graph.TripRef
	OriginIndex int
	DestIndex   int
}

// LoopRideSpec chains two patterns of one route at the first pattern's
// terminus into a logical through-ride. JoinIndex is the terminus position
// in the second pattern's sequence.
type LoopRideSpec struct {
	First       *graph.TripRef
	BoardIndex  int
	Second      *graph.TripRef
	JoinIndex   int
	AlightIndex int
}

// NearbyRide is a ride whose alighting stop lands within walking range of a
// target point.
type NearbyRide struct {
	Spec  DirectRideSpec
	Stop  *models.Stop
	WalkM float64
}

// TransferPlan pairs a ride to a hub with a ride onward from it.
type TransferPlan struct {
	Hub     *models.Stop
	ToHub   DirectRideSpec
	FromHub NearbyRide
}

// Discovery answers structural reachability questions: which rides exist at
// all, independent of the clock.
type Discovery struct {
	net  *graph.Network
	hubs []string
}

// NewDiscovery builds a discovery service. Empty hubs fall back to the
// built-in set.
func NewDiscovery(net *graph.Network, hubs []string) *Discovery {
	if len(hubs) == 0 {
		hubs = DefaultTransferHubs
	}
	return &Discovery{net: net, hubs: hubs}
}

// Hubs returns the interchange set in configured order.
func (d *Discovery) Hubs() []string { return d.hubs }

func firstIndexAfter(ref *graph.TripRef, stopID string, after int) (int, bool) {
	stops := ref.Stops()
	for i := after + 1; i < len(stops); i++ {
		if stops[i] == stopID {
			return i, true
		}
	}
	return 0, false
}

// DirectRides lists every pattern that carries a rider from origin to dest
// without leaving the vehicle, in (route, headsign) order.
func (d *Discovery) DirectRides(originStopID, destStopID string) []DirectRideSpec {
	var out []DirectRideSpec
	for _, visit := range d.net.VisitsAt(originStopID) {
		if destIdx, ok := firstIndexAfter(visit.Ref, destStopID, visit.Index); ok {
			out = append(out, DirectRideSpec{
				Ref:         visit.Ref,
				OriginIndex: visit.Index,
				DestIndex:   destIdx,
			})
		}
	}
	return out
}

// LoopRides lists through-rides formed by chaining two patterns of the same
// route at a shared terminus. Both patterns must share a service day, and
// the documented join suppression applies.
func (d *Discovery) LoopRides(originStopID, destStopID string) []LoopRideSpec {
	var out []LoopRideSpec
	for _, visit := range d.net.VisitsAt(originStopID) {
		first := visit.Ref
		terminus := first.Terminus()
		if terminus == "" || terminus == originStopID {
			continue
		}
		for _, second := range d.net.PatternsOf(first.RouteName()) {
			if second == first {
				continue
			}
			if suppressedLoopJoin(first.Headsign(), second.Headsign()) {
				continue
			}
			if !first.DaysOverlap(second) {
				continue
			}
			joinIdx, ok := second.StopIndex(terminus)
			if !ok {
				continue
			}
			alightIdx, ok := firstIndexAfter(second, destStopID, joinIdx)
			if !ok {
				continue
			}
			out = append(out, LoopRideSpec{
				First:       first,
				BoardIndex:  visit.Index,
				Second:      second,
				JoinIndex:   joinIdx,
				AlightIndex: alightIdx,
			})
		}
	}
	return out
}

// RidesTo lists direct rides first and loop rides only when no direct ride
// exists.
func (d *Discovery) RidesTo(originStopID, destStopID string) ([]DirectRideSpec, []LoopRideSpec) {
	direct := d.DirectRides(originStopID, destStopID)
	if len(direct) > 0 {
		return direct, nil
	}
	return nil, d.LoopRides(originStopID, destStopID)
}

// RoutesToNearbyStops lists rides from origin whose alighting stop lies
// within maxWalkM of the target point, one entry per (route, headsign,
// alighting stop).
func (d *Discovery) RoutesToNearbyStops(originStopID string, target geo.Point, maxWalkM float64) []NearbyRide {
	type dedupKey struct {
		route    string
		headsign string
		stopID   string
	}
	seen := make(map[dedupKey]bool)

	var out []NearbyRide
	for _, visit := range d.net.VisitsAt(originStopID) {
		stops := visit.Ref.Stops()
		for j := visit.Index + 1; j < len(stops); j++ {
			stop, ok := d.net.Stop(stops[j])
			if !ok {
				continue
			}
			walk := geo.Haversine(stop.Lat, stop.Lon, target.Lat, target.Lon)
			if walk > maxWalkM {
				continue
			}
			key := dedupKey{visit.Ref.RouteName(), visit.Ref.Headsign(), stop.ID}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, NearbyRide{
				Spec: DirectRideSpec{Ref: visit.Ref, OriginIndex: visit.Index, DestIndex: j},
				Stop: stop, WalkM: walk,
			})
		}
	}
	return out
}

// TransferCandidates combines rides into each configured hub with onward
// rides from the hub toward the target. Staying on the same pattern is not
// a transfer and is filtered out.
func (d *Discovery) TransferCandidates(originStopID string, target geo.Point, maxWalkM float64) []TransferPlan {
	var out []TransferPlan
	for _, hubID := range d.hubs {
		hub, ok := d.net.Stop(hubID)
		if !ok {
			continue
		}
		toHub := d.DirectRides(originStopID, hubID)
		if len(toHub) == 0 {
			continue
		}
		fromHub := d.RoutesToNearbyStops(hubID, target, maxWalkM)
		for _, in := range toHub {
			for _, on := range fromHub {
				if in.Ref.Key() == on.Spec.Ref.Key() {
					continue
				}
				out = append(out, TransferPlan{Hub: hub, ToHub: in, FromHub: on})
			}
		}
	}
	return out
}

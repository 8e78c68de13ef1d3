package routing

import (
	"container/heap"
	"context"
	"math"

	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/models"
	"github.com/campusbus/shuttle_core/internal/schedule"
)

// hop is one edge of a search path, either a walk or a bus ride.
type hop interface{ isHop() }

type walkHop struct {
	from      geo.Point
	fromLabel string
	to        *models.Stop
	distanceM float64
	startMins float64
	endMins   float64
}

// rideHop is a bus ride between two indices of one trip pattern. Times run
// on the query-day axis. In anytime mode departMins/arriveMins carry a
// waitless virtual clock and nextArrivalMins keeps the concrete one.
type rideHop struct {
	ref             *graph.TripRef
	boardIndex      int
	alightIndex     int
	departMins      float64
	arriveMins      float64
	waitMins        float64
	day             string
	daysAhead       int
	tripStartMins   int
	nextArrivalMins int
}

func (walkHop) isHop() {}
func (rideHop) isHop() {}

type searchNode struct {
	stop    *models.Stop
	arrival float64
	penalty float64
	hops    []hop

	f     float64
	seq   int
	index int
}

func (n *searchNode) g() float64 { return n.arrival + n.penalty }

// PriorityQueue implements heap.Interface for the A* open set. Equal f
// scores break on insertion order, which keeps the search deterministic.
type PriorityQueue []*searchNode

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	return pq[i].seq < pq[j].seq
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *PriorityQueue) Push(x interface{}) {
	n := x.(*searchNode)
	n.index = len(*pq)
	*pq = append(*pq, n)
}

func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*pq = old[0 : n-1]
	return node
}

type searchParams struct {
	origin     geo.Point
	dest       geo.Point
	destStopID string
	day        string
	queryMins  float64
	anytime    bool
}

type searchResult struct {
	hops        []hop
	lastStop    *models.Stop
	arrivalMins float64
	finalWalkM  float64
	totalCost   float64
}

type engine struct {
	net    *graph.Network
	oracle *schedule.Oracle
	p      searchParams

	destDist  map[string]float64
	nearDest  map[string]bool
	colocated []string

	pq        PriorityQueue
	bestG     map[string]float64
	seq       int
	explored  int
	incumbent *searchResult
}

// runSearch finds the cost-minimal journey from origin to dest, or reports
// errNoBoardableStops / errNoRoute for the planner to turn into fallbacks.
func runSearch(ctx context.Context, net *graph.Network, oracle *schedule.Oracle, p searchParams) (*searchResult, error) {
	e := &engine{
		net:      net,
		oracle:   oracle,
		p:        p,
		destDist: make(map[string]float64),
		nearDest: make(map[string]bool),
		bestG:    make(map[string]float64),
	}
	for _, sd := range net.StopsWithin(p.dest.Lat, p.dest.Lon, ColocationThresholdM) {
		e.colocated = append(e.colocated, sd.Stop.ID)
		e.nearDest[sd.Stop.ID] = true
	}
	if p.destStopID != "" {
		e.nearDest[p.destStopID] = true
	}

	if !e.seed() {
		return nil, errNoBoardableStops
	}
	if err := e.run(ctx); err != nil {
		return nil, err
	}
	if e.incumbent == nil {
		return nil, errNoRoute
	}
	return e.incumbent, nil
}

// seed builds the start frontier: stops within walking range of the origin,
// thinned to the closest stop per trip pattern so the same line is not
// boarded at two adjacent stops.
func (e *engine) seed() bool {
	claimed := make(map[graph.PatternKey]bool)
	for _, cand := range e.net.StopsWithin(e.p.origin.Lat, e.p.origin.Lon, MaxWalkOriginM) {
		fresh := false
		for _, visit := range e.net.VisitsAt(cand.Stop.ID) {
			if key := visit.Ref.Key(); !claimed[key] {
				claimed[key] = true
				fresh = true
			}
		}
		if !fresh {
			continue
		}

		walkMins := WalkMinutes(cand.DistanceM)
		reluctance := InitialWalkReluctance
		if e.servesDestDirectly(cand.Stop.ID) {
			reluctance *= DirectToDestBonus
		}
		e.push(&searchNode{
			stop:    cand.Stop,
			arrival: e.p.queryMins + walkMins,
			penalty: walkPenalty(walkMins, reluctance),
			hops: []hop{walkHop{
				from:      e.p.origin,
				fromLabel: "origin",
				to:        cand.Stop,
				distanceM: cand.DistanceM,
				startMins: e.p.queryMins,
				endMins:   e.p.queryMins + walkMins,
			}},
		})
	}
	return e.pq.Len() > 0
}

func (e *engine) servesDestDirectly(stopID string) bool {
	if len(e.nearDest) == 0 {
		return false
	}
	for _, visit := range e.net.VisitsAt(stopID) {
		stops := visit.Ref.Stops()
		for j := visit.Index + 1; j < len(stops); j++ {
			if e.nearDest[stops[j]] {
				return true
			}
		}
	}
	return false
}

func (e *engine) run(ctx context.Context) error {
	for e.pq.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		node := heap.Pop(&e.pq).(*searchNode)
		if e.incumbent != nil && node.f >= e.incumbent.totalCost {
			break
		}
		if best, ok := e.bestG[node.stop.ID]; ok && best <= node.g() {
			continue
		}
		e.bestG[node.stop.ID] = node.g()

		e.explored++
		if e.explored > maxExploredNodes {
			break
		}

		e.tryGoal(node)
		e.expand(node)
	}
	return nil
}

// tryGoal completes a popped state with the final walk when the stop is in
// range of the destination, updating the incumbent on improvement. The
// heavy reluctance applies when the destination sits at a stop this journey
// did not reach, so the search prefers waiting for a bus that serves it
// over alighting early.
func (e *engine) tryGoal(node *searchNode) {
	dist := e.distToDest(node.stop)
	if dist > MaxWalkDestM {
		return
	}

	walkMins := WalkMinutes(dist)
	reluctance := RelaxedWalkReluctance
	for _, id := range e.colocated {
		if id != node.stop.ID {
			reluctance = FinalWalkReluctance
			break
		}
	}

	total := node.arrival + walkMins + node.penalty + walkPenalty(walkMins, reluctance)
	if e.incumbent == nil || total < e.incumbent.totalCost {
		hops := make([]hop, len(node.hops))
		copy(hops, node.hops)
		e.incumbent = &searchResult{
			hops:        hops,
			lastStop:    node.stop,
			arrivalMins: node.arrival,
			finalWalkM:  dist,
			totalCost:   total,
		}
	}
}

// expand generates walk-and-board successors: every stop within the
// transfer walk limit, including the zero-distance loopback onto the
// current stop, crossed with every pattern visiting it.
func (e *engine) expand(node *searchNode) {
	for _, cand := range e.net.StopsWithin(node.stop.Lat, node.stop.Lon, TransferWalkLimitM) {
		walked := cand.Stop.ID != node.stop.ID
		walkMins := 0.0
		if walked {
			walkMins = WalkMinutes(cand.DistanceM)
		}
		boardAt := node.arrival + walkMins
		for _, visit := range e.net.VisitsAt(cand.Stop.ID) {
			e.expandRides(node, cand.Stop, visit, boardAt, walked, cand.DistanceM, walkMins)
		}
	}
}

// boarding carries the resolved clock and penalty context of one act of
// getting on a bus, shared by every alighting it generates.
type boarding struct {
	departAbs   float64
	wait        float64
	day         string
	daysAhead   int
	tripStart   int
	nextArrival int
	extend      bool
	walked      bool
	walkDist    float64
	walkMins    float64
}

func (e *engine) expandRides(node *searchNode, board *models.Stop, visit graph.StopVisit, boardAt float64, walked bool, walkDist, walkMins float64) {
	ref, bIdx := visit.Ref, visit.Index
	stops := ref.Stops()
	if bIdx >= len(stops)-1 {
		return
	}

	lastRide, wasRiding := lastHopRide(node.hops)
	extend := !walked && wasRiding && lastRide.ref.Key() == ref.Key() && lastRide.alightIndex == bIdx

	b := boarding{walked: walked, walkDist: walkDist, walkMins: walkMins}
	switch {
	case extend:
		// Already aboard this trip instance; the clock just continues.
		b.extend = true
		b.departAbs = node.arrival
		b.day = lastRide.day
		b.daysAhead = lastRide.daysAhead
		b.tripStart = lastRide.tripStartMins
		b.nextArrival = lastRide.nextArrivalMins
	case e.p.anytime:
		dep, ok := e.oracle.NextDepartureAnyDay(ref, bIdx, e.p.day, math.Mod(e.p.queryMins, schedule.MinutesPerDay))
		if !ok {
			return
		}
		b.departAbs = boardAt
		b.day = dep.Day
		b.daysAhead = dep.DaysAhead
		b.tripStart = dep.TripStartMins
		b.nextArrival = dep.ArrivalMins
	default:
		// Scheduled boarding. A departure whose reachable arrivals all fall
		// inside the blackout is stepped over in favor of the next one.
		probe := boardAt
		for {
			dep, ok := e.oracle.NextDepartureOnAxis(ref, bIdx, e.p.day, probe)
			if !ok {
				return
			}
			b.departAbs = float64(dep.AbsMins)
			if b.departAbs-e.p.queryMins > SearchHorizonMins {
				return
			}
			b.wait = b.departAbs - boardAt
			b.day = dep.Day
			b.daysAhead = dep.DaysAhead
			b.tripStart = dep.TripStartMins
			b.nextArrival = dep.AbsMins % schedule.MinutesPerDay
			if !e.pushAlightings(node, board, visit, b, wasRiding, lastRide) {
				return
			}
			probe = b.departAbs + 1
		}
	}

	if b.departAbs-e.p.queryMins > SearchHorizonMins {
		return
	}
	e.pushAlightings(node, board, visit, b, wasRiding, lastRide)
}

// pushAlightings enqueues a successor for every reachable downstream stop of
// the boarding. It reports whether any arrival was suppressed by the Friday
// blackout, which tells a scheduled caller to probe a later departure.
func (e *engine) pushAlightings(node *searchNode, board *models.Stop, visit graph.StopVisit, b boarding, wasRiding bool, lastRide rideHop) bool {
	ref, bIdx := visit.Ref, visit.Index
	stops := ref.Stops()
	suppressed := false

	boardOffset := e.oracle.OffsetMins(ref, bIdx)
	for j := bIdx + 1; j < len(stops); j++ {
		alight, ok := e.net.Stop(stops[j])
		if !ok {
			continue
		}
		arriveAbs := b.departAbs + float64(e.oracle.OffsetMins(ref, j)-boardOffset)
		if arriveAbs-e.p.queryMins > SearchHorizonMins {
			break
		}
		if e.blackoutOnAxis(arriveAbs) {
			suppressed = true
			continue
		}

		var inc float64
		var hops []hop
		if b.extend {
			inc = SameRouteHopPenaltyMins * float64(j-bIdx)
			hops = cloneHops(node.hops)
			last := hops[len(hops)-1].(rideHop)
			last.alightIndex = j
			last.arriveMins = arriveAbs
			hops[len(hops)-1] = last
		} else {
			inc = BusBoardPenaltyMins
			if wasRiding && lastRide.ref.RouteName() != ref.RouteName() {
				inc += TransferPenaltyMins
			}
			if b.walked {
				inc += walkPenalty(b.walkMins, WalkReluctanceFactor) + TransferWalkPenaltyMins
			}
			hops = cloneHops(node.hops)
			if b.walked {
				hops = append(hops, walkHop{
					from:      geo.Point{Lat: node.stop.Lat, Lon: node.stop.Lon},
					fromLabel: node.stop.ID,
					to:        board,
					distanceM: b.walkDist,
					startMins: node.arrival,
					endMins:   node.arrival + b.walkMins,
				})
			}
			hops = append(hops, rideHop{
				ref:             ref,
				boardIndex:      bIdx,
				alightIndex:     j,
				departMins:      b.departAbs,
				arriveMins:      arriveAbs,
				waitMins:        b.wait,
				day:             b.day,
				daysAhead:       b.daysAhead,
				tripStartMins:   b.tripStart,
				nextArrivalMins: b.nextArrival,
			})
		}

		e.push(&searchNode{
			stop:    alight,
			arrival: arriveAbs,
			penalty: node.penalty + inc,
			hops:    hops,
		})
	}
	return suppressed
}

// blackoutOnAxis checks the Friday window for an axis time. Anytime mode
// runs on a virtual clock; there only the oracle-side check applies.
func (e *engine) blackoutOnAxis(absMins float64) bool {
	if e.p.anytime {
		return false
	}
	days := int(absMins) / schedule.MinutesPerDay
	minute := int(absMins) - days*schedule.MinutesPerDay
	return schedule.InBlackout(dataset.ShiftDay(e.p.day, days), minute)
}

func (e *engine) push(n *searchNode) {
	n.f = n.g() + busMinutes(e.distToDest(n.stop))
	n.seq = e.seq
	e.seq++
	heap.Push(&e.pq, n)
}

func (e *engine) distToDest(s *models.Stop) float64 {
	if d, ok := e.destDist[s.ID]; ok {
		return d
	}
	d := geo.Haversine(s.Lat, s.Lon, e.p.dest.Lat, e.p.dest.Lon)
	e.destDist[s.ID] = d
	return d
}

func lastHopRide(hops []hop) (rideHop, bool) {
	if len(hops) == 0 {
		return rideHop{}, false
	}
	ride, ok := hops[len(hops)-1].(rideHop)
	return ride, ok
}

func cloneHops(hops []hop) []hop {
	out := make([]hop, len(hops), len(hops)+2)
	copy(out, hops)
	return out
}

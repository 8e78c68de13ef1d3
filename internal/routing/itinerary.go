package routing

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/models"
	"github.com/campusbus/shuttle_core/internal/schedule"
	"github.com/campusbus/shuttle_core/internal/walking"
)

const enrichTimeout = 5 * time.Second

// builder turns search results into response itineraries.
type builder struct {
	net        *graph.Network
	walker     walking.Router
	origin     geo.Point
	dest       geo.Point
	originName string
	destName   string
	day        string
	queryMins  float64
	anytime    bool
}

func clock(absMins float64) string {
	return dataset.FormatClock(int(math.Round(absMins)))
}

// leg groups the rides of one boarded vehicle. Two rides appear when a loop
// pair chains at a terminus.
type leg struct {
	rides []rideHop
}

func (l leg) first() rideHop { return l.rides[0] }
func (l leg) last() rideHop  { return l.rides[len(l.rides)-1] }

func (l leg) headsigns() []string {
	out := make([]string, len(l.rides))
	for i, r := range l.rides {
		out[i] = r.ref.Headsign()
	}
	return out
}

func (l leg) displayHeadsign() string {
	return strings.Join(l.headsigns(), " → ")
}

func (l leg) segments() int {
	n := 0
	for _, r := range l.rides {
		n += r.alightIndex - r.boardIndex
	}
	return n
}

// mergeLegs folds consecutive rides of the same route with no walk between
// them into single legs.
func mergeLegs(hops []hop) []leg {
	var legs []leg
	walked := true
	for _, h := range hops {
		ride, ok := h.(rideHop)
		if !ok {
			walked = true
			continue
		}
		if !walked && len(legs) > 0 {
			prev := &legs[len(legs)-1]
			if prev.last().ref.RouteName() == ride.ref.RouteName() &&
				prev.last().alightStopID() == ride.boardStopID() {
				prev.rides = append(prev.rides, ride)
				continue
			}
		}
		legs = append(legs, leg{rides: []rideHop{ride}})
		walked = false
	}
	return legs
}

func (r rideHop) boardStopID() string  { return r.ref.Stops()[r.boardIndex] }
func (r rideHop) alightStopID() string { return r.ref.Stops()[r.alightIndex] }

func hasRides(hops []hop) bool {
	for _, h := range hops {
		if _, ok := h.(rideHop); ok {
			return true
		}
	}
	return false
}

// fromResult assembles a DIRECT or TRANSFER itinerary. The result must
// contain at least one ride; rideless results are the planner's walk-only
// business.
func (b *builder) fromResult(ctx context.Context, res *searchResult) *models.Itinerary {
	legs := mergeLegs(res.hops)
	finalWalkMins := WalkMinutes(res.finalWalkM)
	etaMins := res.arrivalMins + finalWalkMins

	it := &models.Itinerary{Type: models.ItineraryDirect}
	if len(legs) > 1 {
		it.Type = models.ItineraryTransfer
	} else {
		it.Route = legs[0].first().ref.RouteName()
		it.Headsign = legs[0].displayHeadsign()
	}

	walkDistance := res.finalWalkM
	for _, h := range res.hops {
		if w, ok := h.(walkHop); ok {
			walkDistance += w.distanceM
		}
	}

	it.BusLegs = b.busLegs(legs)
	it.Steps = b.steps(res, legs, etaMins)

	summary := &models.Summary{
		Departure:         it.BusLegs[0].Departure,
		BusArrivalTime:    it.BusLegs[len(it.BusLegs)-1].Arrival,
		TotalDurationMins: etaMins - b.queryMins,
		ETA:               clock(etaMins),
		ETAMins:           etaMins,
		Transfers:         len(legs) - 1,
		WalkDistanceM:     walkDistance,
	}
	if boarded := legs[0].first(); boarded.daysAhead > 0 {
		summary.DepartureDay = boarded.day
	}
	it.Summary = summary

	b.enrichWalks(ctx, it.Steps)
	return it
}

func (b *builder) busLegs(legs []leg) []models.BusLeg {
	out := make([]models.BusLeg, 0, len(legs))
	for _, l := range legs {
		first, last := l.first(), l.last()
		boardStop := b.stopName(first.boardStopID())
		alightStop := b.stopName(last.alightStopID())

		bl := models.BusLeg{
			Route:        first.ref.RouteName(),
			Headsign:     l.displayHeadsign(),
			BoardStopID:  first.boardStopID(),
			BoardStop:    boardStop,
			AlightStopID: last.alightStopID(),
			AlightStop:   alightStop,
			DepartureDay: first.day,
			Segments:     l.segments(),
		}
		if len(l.rides) > 1 {
			bl.Headsigns = l.headsigns()
		}

		if b.anytime {
			rideMins := last.arriveMins - first.departMins
			concrete := float64(first.daysAhead*schedule.MinutesPerDay + first.nextArrivalMins)
			bl.Departure = clock(float64(first.nextArrivalMins))
			bl.Arrival = clock(float64(first.nextArrivalMins) + rideMins)
			bl.NextDeparture = &models.DepartureInfo{
				Time:     clock(float64(first.nextArrivalMins)),
				Day:      first.day,
				WaitMins: concrete - b.queryMins,
			}
		} else {
			bl.Departure = clock(first.departMins)
			bl.Arrival = clock(last.arriveMins)
		}
		out = append(out, bl)
	}
	return out
}

func (b *builder) steps(res *searchResult, legs []leg, etaMins float64) []models.Step {
	var steps []models.Step
	legIdx := 0

	for i := 0; i < len(res.hops); i++ {
		switch h := res.hops[i].(type) {
		case walkHop:
			from := b.originName
			if h.fromLabel != "origin" {
				from = b.stopName(h.fromLabel)
			}
			steps = append(steps, models.Step{
				Type:         models.StepWalk,
				From:         from,
				To:           h.to.Name,
				DistanceM:    h.distanceM,
				DurationMins: h.endMins - h.startMins,
				StartTime:    clock(h.startMins),
				EndTime:      clock(h.endMins),
				StartMins:    h.startMins,
				EndMins:      h.endMins,
			})
		case rideHop:
			// Only the first ride of a merged leg emits steps; the rest
			// are the same vehicle continuing.
			if legIdx >= len(legs) || legs[legIdx].first() != h {
				continue
			}
			l := legs[legIdx]
			legIdx++
			steps = append(steps, b.legSteps(l)...)
		}
	}

	steps = append(steps, models.Step{
		Type:         models.StepWalk,
		From:         b.stopName(res.lastStop.ID),
		To:           b.destName,
		DistanceM:    res.finalWalkM,
		DurationMins: etaMins - res.arrivalMins,
		StartTime:    clock(res.arrivalMins),
		EndTime:      clock(etaMins),
		StartMins:    res.arrivalMins,
		EndMins:      etaMins,
	})
	return steps
}

func (b *builder) legSteps(l leg) []models.Step {
	first, last := l.first(), l.last()
	boardStop := b.stopName(first.boardStopID())
	alightStop := b.stopName(last.alightStopID())

	board := models.Step{
		Type:      models.StepBoard,
		Stop:      boardStop,
		StopID:    first.boardStopID(),
		Route:     first.ref.RouteName(),
		Headsign:  first.ref.Headsign(),
		StartTime: clock(first.departMins),
		StartMins: first.departMins,
		WaitMins:  first.waitMins,
	}

	ride := models.Step{
		Type:         models.StepRide,
		From:         boardStop,
		To:           alightStop,
		Route:        first.ref.RouteName(),
		Headsign:     l.displayHeadsign(),
		StartTime:    clock(first.departMins),
		EndTime:      clock(last.arriveMins),
		StartMins:    first.departMins,
		EndMins:      last.arriveMins,
		DurationMins: last.arriveMins - first.departMins,
		Stops:        l.segments(),
	}
	for _, r := range l.rides {
		if geom, ok := b.net.Geometry(r.ref.RouteName(), r.ref.Headsign()); ok {
			ride.Geometry = append(ride.Geometry, geom.Coordinates...)
		}
	}

	alight := models.Step{
		Type:      models.StepAlight,
		Stop:      alightStop,
		StopID:    last.alightStopID(),
		Route:     first.ref.RouteName(),
		StartTime: clock(last.arriveMins),
		StartMins: last.arriveMins,
	}
	return []models.Step{board, ride, alight}
}

// walkOnly assembles a pure walking itinerary, optionally annotated with an
// alternative bus. Turn-by-turn details come from the walking router when
// it answers in time.
func (b *builder) walkOnly(ctx context.Context, distanceM float64, message string, alt *models.AlternativeBus) *models.Itinerary {
	durationMins := WalkMinutes(distanceM)
	step := models.Step{
		Type:         models.StepWalk,
		From:         b.originName,
		To:           b.destName,
		DistanceM:    distanceM,
		DurationMins: durationMins,
		StartTime:    clock(b.queryMins),
		EndTime:      clock(b.queryMins + durationMins),
		StartMins:    b.queryMins,
		EndMins:      b.queryMins + durationMins,
	}

	wctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()
	if dirs, err := b.walker.Directions(wctx, b.origin, b.dest); err == nil {
		distanceM = dirs.DistanceM
		durationMins = dirs.DurationMins
		step.DistanceM = dirs.DistanceM
		step.DurationMins = dirs.DurationMins
		step.EndTime = clock(b.queryMins + durationMins)
		step.EndMins = b.queryMins + durationMins
		step.Geometry = dirs.Geometry
		step.WalkSteps = dirs.Steps
	}

	return &models.Itinerary{
		Type:           models.ItineraryWalkOnly,
		DistanceM:      distanceM,
		DurationMins:   durationMins,
		ETA:            clock(b.queryMins + durationMins),
		Steps:          []models.Step{step},
		Message:        message,
		AlternativeBus: alt,
	}
}

// enrichWalks fetches turn-by-turn details for the initial and final walk
// steps concurrently. Failures leave the estimates in place.
func (b *builder) enrichWalks(ctx context.Context, steps []models.Step) {
	type target struct {
		idx      int
		from, to geo.Point
	}
	var targets []target
	if len(steps) > 0 && steps[0].Type == models.StepWalk && steps[0].DistanceM > 0 {
		targets = append(targets, target{idx: 0, from: b.origin, to: b.stepEndPoint(steps[0])})
	}
	if last := len(steps) - 1; last > 0 && steps[last].Type == models.StepWalk && steps[last].DistanceM > 0 {
		targets = append(targets, target{idx: last, from: b.stepStartPoint(steps[last]), to: b.dest})
	}
	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	results := make([]*walking.Directions, len(targets))
	for i, tg := range targets {
		wg.Add(1)
		go func(i int, tg target) {
			defer wg.Done()
			wctx, cancel := context.WithTimeout(ctx, enrichTimeout)
			defer cancel()
			if dirs, err := b.walker.Directions(wctx, tg.from, tg.to); err == nil {
				results[i] = dirs
			}
		}(i, tg)
	}
	wg.Wait()

	for i, tg := range targets {
		if results[i] == nil {
			continue
		}
		steps[tg.idx].Geometry = results[i].Geometry
		steps[tg.idx].WalkSteps = results[i].Steps
	}
}

func (b *builder) stepEndPoint(s models.Step) geo.Point {
	if stop, ok := b.net.StopByName(s.To); ok {
		return geo.Point{Lat: stop.Lat, Lon: stop.Lon}
	}
	return b.dest
}

func (b *builder) stepStartPoint(s models.Step) geo.Point {
	if stop, ok := b.net.StopByName(s.From); ok {
		return geo.Point{Lat: stop.Lat, Lon: stop.Lon}
	}
	return b.origin
}

func (b *builder) stopName(id string) string {
	if stop, ok := b.net.Stop(id); ok {
		return stop.Name
	}
	return id
}

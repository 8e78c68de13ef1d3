// Package schedule answers "when does the next bus leave": it turns trip
// start times and per-stop offsets into concrete departures, filtered by
// service day and the Friday prayer blackout, rolling over to later days
// when today is exhausted.
package schedule

import (
	"math"

	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/graph"
)

const (
	// FallbackSegmentMins is the per-stop travel estimate used when the
	// durations dataset has no measurement for a segment.
	FallbackSegmentMins = 2

	// Friday blackout window, minutes since midnight. [start, end).
	BlackoutStartMins = 12*60 + 40
	BlackoutEndMins   = 14 * 60

	MinutesPerDay = 1440

	// Lookahead probes today plus the next seven days, so weekly services
	// wrap around to their next occurrence.
	maxLookaheadDays = 8
)

// Departure is a concrete catchable bus at a stop.
type Departure struct {
	// ArrivalMins is the minute of day the bus reaches the stop.
	ArrivalMins   int
	TripStartMins int
	// WaitMins measures from the query instant and includes rolled-over
	// days.
	WaitMins  float64
	Day       string
	DaysAhead int
}

// AxisDeparture is a departure located on a continuous minute axis whose
// zero is midnight of the query day.
type AxisDeparture struct {
	AbsMins       int
	TripStartMins int
	Day           string
	DaysAhead     int
}

// InBlackout reports whether a minute of day falls inside the Friday
// blackout. The window is hard-coded: no arrival inside it is served, even
// at intermediate stops.
func InBlackout(day string, minuteOfDay int) bool {
	return day == "friday" && minuteOfDay >= BlackoutStartMins && minuteOfDay < BlackoutEndMins
}

// Oracle evaluates the timetable against a network build.
type Oracle struct {
	net *graph.Network
}

// NewOracle binds an oracle to a network.
func NewOracle(net *graph.Network) *Oracle {
	return &Oracle{net: net}
}

// OffsetMins is the cumulative travel time from a trip's start to the stop
// at targetIndex, rounded to whole minutes. Measured segment seconds are
// used where present; missing segments fall back to FallbackSegmentMins.
func (o *Oracle) OffsetMins(ref *graph.TripRef, targetIndex int) int {
	if targetIndex <= 0 {
		return 0
	}
	secs := o.net.SegmentSecs(ref.RouteName(), ref.Headsign())

	var total float64
	for i := 0; i < targetIndex; i++ {
		if i < len(secs) {
			total += secs[i]
		} else {
			total += FallbackSegmentMins * 60
		}
	}
	return int(math.Round(total / 60))
}

// NextDepartureAt returns the first departure of the trip at stopIndex on
// the given day with arrival at or after queryMins. It fails when the trip
// does not serve the day, when every time has passed, and skips arrivals
// inside the Friday blackout.
func (o *Oracle) NextDepartureAt(ref *graph.TripRef, stopIndex int, day string, queryMins float64) (Departure, bool) {
	if !ref.ServesDay(day) {
		return Departure{}, false
	}

	offset := o.OffsetMins(ref, stopIndex)
	for _, start := range ref.Times() {
		arrival := start + offset
		if InBlackout(day, arrival) {
			continue
		}
		if float64(arrival) >= queryMins {
			return Departure{
				ArrivalMins:   arrival,
				TripStartMins: start,
				WaitMins:      float64(arrival) - queryMins,
				Day:           day,
			}, true
		}
	}
	return Departure{}, false
}

// NextDepartureAnyDay searches day by day, a week forward, for the trip's
// next departure at stopIndex. WaitMins accounts for the skipped days.
func (o *Oracle) NextDepartureAnyDay(ref *graph.TripRef, stopIndex int, day string, queryMins float64) (Departure, bool) {
	for d := 0; d < maxLookaheadDays; d++ {
		dayD := dataset.ShiftDay(day, d)
		q := queryMins
		if d > 0 {
			q = 0
		}
		dep, ok := o.NextDepartureAt(ref, stopIndex, dayD, q)
		if !ok {
			continue
		}
		dep.DaysAhead = d
		dep.WaitMins = float64(d*MinutesPerDay) + float64(dep.ArrivalMins) - queryMins
		return dep, true
	}
	return Departure{}, false
}

// NextRideable returns the first departure of the trip whose boarding
// arrival at boardIdx and alighting arrival at alightIdx both clear the
// blackout. An arrival past midnight is checked against the following day.
func (o *Oracle) NextRideable(ref *graph.TripRef, boardIdx, alightIdx int, day string, queryMins float64) (Departure, bool) {
	if !ref.ServesDay(day) {
		return Departure{}, false
	}

	offBoard := o.OffsetMins(ref, boardIdx)
	offAlight := o.OffsetMins(ref, alightIdx)
	for _, start := range ref.Times() {
		board := start + offBoard
		if float64(board) < queryMins || InBlackout(day, board) {
			continue
		}
		arrive := start + offAlight
		arriveDay := dataset.ShiftDay(day, arrive/MinutesPerDay)
		if InBlackout(arriveDay, arrive%MinutesPerDay) {
			continue
		}
		return Departure{
			ArrivalMins:   board,
			TripStartMins: start,
			WaitMins:      float64(board) - queryMins,
			Day:           day,
		}, true
	}
	return Departure{}, false
}

// NextRideableAnyDay is NextRideable with the week-forward day scan of
// NextDepartureAnyDay.
func (o *Oracle) NextRideableAnyDay(ref *graph.TripRef, boardIdx, alightIdx int, day string, queryMins float64) (Departure, bool) {
	for d := 0; d < maxLookaheadDays; d++ {
		dayD := dataset.ShiftDay(day, d)
		q := queryMins
		if d > 0 {
			q = 0
		}
		dep, ok := o.NextRideable(ref, boardIdx, alightIdx, dayD, q)
		if !ok {
			continue
		}
		dep.DaysAhead = d
		dep.WaitMins = float64(d*MinutesPerDay) + float64(dep.ArrivalMins) - queryMins
		return dep, true
	}
	return Departure{}, false
}

// NextDepartureOnAxis resolves the next departure at or after an absolute
// minute on the query-day axis, where minute 0 is midnight of day0. The
// result's AbsMins lives on the same axis, so mid-journey day wraps need no
// special casing in the caller.
func (o *Oracle) NextDepartureOnAxis(ref *graph.TripRef, stopIndex int, day0 string, absMins float64) (AxisDeparture, bool) {
	baseDays := 0
	if absMins > 0 {
		baseDays = int(absMins) / MinutesPerDay
	}
	minuteOfDay := absMins - float64(baseDays*MinutesPerDay)
	day := dataset.ShiftDay(day0, baseDays)

	dep, ok := o.NextDepartureAnyDay(ref, stopIndex, day, minuteOfDay)
	if !ok {
		return AxisDeparture{}, false
	}
	return AxisDeparture{
		AbsMins:       (baseDays+dep.DaysAhead)*MinutesPerDay + dep.ArrivalMins,
		TripStartMins: dep.TripStartMins,
		Day:           dep.Day,
		DaysAhead:     baseDays + dep.DaysAhead,
	}, true
}

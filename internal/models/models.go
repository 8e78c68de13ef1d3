package models

// ItineraryType classifies a planned journey.
type ItineraryType string

const (
	ItineraryWalkOnly ItineraryType = "WALK_ONLY"
	ItineraryDirect   ItineraryType = "DIRECT"
	ItineraryTransfer ItineraryType = "TRANSFER"
)

// StepType identifies one element of an itinerary's step sequence.
type StepType string

const (
	StepWalk   StepType = "walk"
	StepBoard  StepType = "board"
	StepRide   StepType = "ride"
	StepAlight StepType = "alight"
)

// Stop is a physical boarding point on the shuttle network.
type Stop struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Elevation float64 `json:"elevation,omitempty"`
}

// Location is a named, queryable destination. Every stop is also exposed as
// a synthetic bus-stop location; IsStop marks those.
type Location struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Elevation   float64 `json:"elevation,omitempty"`
	NearestStop string  `json:"nearest_stop,omitempty"`
	Category    string  `json:"category,omitempty"`
	IsStop      bool    `json:"is_stop,omitempty"`
}

// Route groups one or more timetabled services under a display name.
type Route struct {
	Name     string
	IsLoop   bool
	Services []Service
}

// Service is a set of trips sharing the same operating days. Days are
// lowercase weekday names.
type Service struct {
	ID    string
	Days  []string
	Trips []Trip
}

// Trip is a single directional pattern: an ordered stop sequence and the
// start times at which the pattern runs. Headsigns are unique within a
// route. Times are minutes since midnight.
type Trip struct {
	Headsign string
	Stops    []string
	Times    []int
}

// Summary carries the headline numbers of a bus journey.
type Summary struct {
	Departure         string  `json:"departure"`
	DepartureDay      string  `json:"departure_day,omitempty"`
	BusArrivalTime    string  `json:"bus_arrival_time"`
	TotalDurationMins float64 `json:"total_duration_mins"`
	ETA               string  `json:"eta"`
	ETAMins           float64 `json:"eta_mins"`
	Transfers         int     `json:"transfers"`
	WalkDistanceM     float64 `json:"walk_distance_m"`
}

// TurnInstruction is one turn-by-turn hint from the walking router.
type TurnInstruction struct {
	Text      string  `json:"text"`
	DistanceM float64 `json:"distance_m"`
}

// Step is one element of the response step sequence. Which fields are set
// depends on Type: walk steps carry from/to and distance, board steps carry
// the stop and wait, ride steps carry the route and the stop span. Minute
// fields count from midnight of the journey's departure day.
type Step struct {
	Type         StepType          `json:"type"`
	From         string            `json:"from,omitempty"`
	To           string            `json:"to,omitempty"`
	Stop         string            `json:"stop,omitempty"`
	StopID       string            `json:"stop_id,omitempty"`
	Route        string            `json:"route,omitempty"`
	Headsign     string            `json:"headsign,omitempty"`
	DistanceM    float64           `json:"distance_m,omitempty"`
	DurationMins float64           `json:"duration_mins,omitempty"`
	StartTime    string            `json:"start_time,omitempty"`
	EndTime      string            `json:"end_time,omitempty"`
	StartMins    float64           `json:"start_mins,omitempty"`
	EndMins      float64           `json:"end_mins,omitempty"`
	WaitMins     float64           `json:"wait_mins,omitempty"`
	Stops        int               `json:"stops,omitempty"`
	Geometry     [][]float64       `json:"geometry,omitempty"`
	WalkSteps    []TurnInstruction `json:"walk_steps,omitempty"`
}

// BusLeg is one boarded vehicle in the journey. A loop through-ride is a
// single leg whose Headsigns holds both pattern identities; Headsign is the
// joined display form.
type BusLeg struct {
	Route         string         `json:"route"`
	Headsign      string         `json:"headsign"`
	Headsigns     []string       `json:"headsigns,omitempty"`
	BoardStopID   string         `json:"board_stop_id"`
	BoardStop     string         `json:"board_stop"`
	AlightStopID  string         `json:"alight_stop_id"`
	AlightStop    string         `json:"alight_stop"`
	Departure     string         `json:"departure"`
	Arrival       string         `json:"arrival"`
	DepartureDay  string         `json:"departure_day,omitempty"`
	Segments      int            `json:"segments"`
	NextDeparture *DepartureInfo `json:"next_departure,omitempty"`
}

// DepartureInfo names a concrete upcoming departure.
type DepartureInfo struct {
	Time     string  `json:"time"`
	Day      string  `json:"day"`
	WaitMins float64 `json:"wait_mins"`
}

// AlternativeBus annotates a walk-only answer with the next feasible bus.
type AlternativeBus struct {
	Route       string  `json:"route"`
	Headsign    string  `json:"headsign"`
	StopID      string  `json:"stop_id"`
	Stop        string  `json:"stop"`
	Departure   string  `json:"departure"`
	Day         string  `json:"day,omitempty"`
	WaitMins    float64 `json:"wait_mins"`
	WalkToStopM float64 `json:"walk_to_stop_m"`
}

// Itinerary is the planner's answer. Type selects which fields are
// populated: WALK_ONLY uses the distance/duration/ETA/message group, DIRECT
// and TRANSFER use summary, steps and bus legs.
type Itinerary struct {
	Type           ItineraryType   `json:"type"`
	PlanID         string          `json:"plan_id,omitempty"`
	Route          string          `json:"route,omitempty"`
	Headsign       string          `json:"headsign,omitempty"`
	Summary        *Summary        `json:"summary,omitempty"`
	Steps          []Step          `json:"steps,omitempty"`
	BusLegs        []BusLeg        `json:"bus_legs,omitempty"`
	DistanceM      float64         `json:"distance_m,omitempty"`
	DurationMins   float64         `json:"duration_mins,omitempty"`
	ETA            string          `json:"eta,omitempty"`
	Message        string          `json:"message,omitempty"`
	AlternativeBus *AlternativeBus `json:"alternative_bus,omitempty"`
	Cached         bool            `json:"cached,omitempty"`
}

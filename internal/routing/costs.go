package routing

// Calibration constants. Penalties are in equivalent minutes: the search
// minimizes arrival time plus accumulated penalty, so a 10 minute penalty
// trades off against 10 minutes of real travel time.
const (
	WalkSpeedKmh = 5.0
	// BusSpeedKmh is the heuristic speed bound. No shuttle exceeds it, which
	// keeps the heuristic admissible.
	BusSpeedKmh = 40.0

	MaxWalkOriginM     = 800.0
	MaxWalkDestM       = 800.0
	TransferWalkLimitM = 300.0

	SearchHorizonMins = 120.0

	InitialWalkReluctance = 10.0
	// FinalWalkReluctance applies when the destination sits at a stop the
	// journey did not reach; RelaxedWalkReluctance applies otherwise.
	FinalWalkReluctance   = 100.0
	RelaxedWalkReluctance = 1.1
	WalkReluctanceFactor  = 3.0

	TransferPenaltyMins     = 10.0
	BusBoardPenaltyMins     = 2.0
	SameRouteHopPenaltyMins = 0.8
	TransferWalkPenaltyMins = 2.0

	DirectToDestBonus = 0.35

	WalkOnlyThresholdM     = 500.0
	ShortWalkThresholdM    = 300.0
	AlternativeStopRadiusM = 500.0
	ColocationThresholdM   = 150.0
	SamePlaceThresholdM    = 100.0

	ImminentBusWaitMins = 10.0

	// rescanLeadMins is how far before a rolled-over departure the follow-up
	// search starts, leaving room for the first-mile walk.
	rescanLeadMins = 45.0

	maxExploredNodes = 50000
)

// DefaultTransferHubs is the built-in interchange set. It is configuration
// in the server; changing it changes reachability for transfer journeys.
var DefaultTransferHubs = []string{"CP", "KTC", "AM", "KRP"}

// WalkMinutes converts a walk distance to minutes at walking speed.
func WalkMinutes(meters float64) float64 {
	return meters / 1000 / WalkSpeedKmh * 60
}

// busMinutes lower-bounds travel time over a distance at bus speed.
func busMinutes(meters float64) float64 {
	return meters / 1000 / BusSpeedKmh * 60
}

// walkPenalty converts walk minutes to penalty minutes. Reluctance 1 walks
// free; the time itself is already in the clock.
func walkPenalty(walkMins, reluctance float64) float64 {
	return walkMins * (reluctance - 1)
}

// suppressedLoopJoin filters the one headsign chain that looks like a loop
// continuation in the data but is not operated as a through-ride.
func suppressedLoopJoin(first, second string) bool {
	return first == "To KDOJ" && second == "To Cluster"
}

package dataset

import (
	"fmt"

	"github.com/campusbus/shuttle_core/internal/models"
)

// Problem kinds reported by Validate.
const (
	ProblemDuplicateStop     = "duplicate_stop"
	ProblemBadCoordinates    = "bad_coordinates"
	ProblemDuplicateLocation = "duplicate_location"
	ProblemEmptyService      = "empty_service"
	ProblemNoServiceDays     = "no_service_days"
	ProblemDuplicateHeadsign = "duplicate_headsign"
	ProblemUnknownStop       = "unknown_stop"
	ProblemNoTimes           = "no_times"
	ProblemMissingDurations  = "missing_durations"
	ProblemSegmentMismatch   = "segment_mismatch"
	ProblemUnknownNearest    = "unknown_nearest_stop"
	ProblemOrphanGeometry    = "orphan_geometry"
)

// Problem is one dataset defect. Kind is machine-readable; Ref names the
// offending record.
type Problem struct {
	Kind    string
	Ref     string
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s %s: %s", p.Kind, p.Ref, p.Message)
}

// Validate lints the bundle and reports every defect found. Loading already
// rejects structurally unparseable data; Validate covers referential and
// coverage issues, notably trips that will run on the duration fallback.
func (b *Bundle) Validate() []Problem {
	var problems []Problem

	stopIDs := make(map[string]bool, len(b.Stops))
	for _, s := range b.Stops {
		if stopIDs[s.ID] {
			problems = append(problems, Problem{ProblemDuplicateStop, s.ID, "stop id appears more than once"})
		}
		stopIDs[s.ID] = true
		if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 || (s.Lat == 0 && s.Lon == 0) {
			problems = append(problems, Problem{ProblemBadCoordinates, s.ID,
				fmt.Sprintf("suspect coordinates (%f, %f)", s.Lat, s.Lon)})
		}
	}

	locIDs := make(map[string]bool, len(b.Locations))
	for _, l := range b.Locations {
		if locIDs[l.ID] {
			problems = append(problems, Problem{ProblemDuplicateLocation, l.ID, "location id appears more than once"})
		}
		locIDs[l.ID] = true
		if l.NearestStop != "" && !stopIDs[l.NearestStop] {
			problems = append(problems, Problem{ProblemUnknownNearest, l.ID,
				fmt.Sprintf("nearestStop %q is not a known stop", l.NearestStop)})
		}
	}

	patterns := make(map[string]bool)
	for _, r := range b.Routes {
		if len(r.Services) == 0 {
			problems = append(problems, Problem{ProblemEmptyService, r.Name, "route has no services"})
		}
		headsigns := make(map[string]bool)
		for _, sv := range r.Services {
			ref := fmt.Sprintf("%s/%s", r.Name, sv.ID)
			if len(sv.Days) == 0 {
				problems = append(problems, Problem{ProblemNoServiceDays, ref, "service has no operating days"})
			}
			if len(sv.Trips) == 0 {
				problems = append(problems, Problem{ProblemEmptyService, ref, "service has no trips"})
			}
			for _, t := range sv.Trips {
				tripRef := fmt.Sprintf("%s/%s", r.Name, t.Headsign)
				if headsigns[t.Headsign] {
					problems = append(problems, Problem{ProblemDuplicateHeadsign, tripRef,
						"headsign is not unique within the route"})
				}
				headsigns[t.Headsign] = true
				patterns[GeometryKey(r.Name, t.Headsign)] = true

				if len(t.Stops) == 0 {
					problems = append(problems, Problem{ProblemUnknownStop, tripRef, "trip has an empty stop sequence"})
				}
				for _, id := range t.Stops {
					if !stopIDs[id] {
						problems = append(problems, Problem{ProblemUnknownStop, tripRef,
							fmt.Sprintf("trip references unknown stop %q", id)})
					}
				}
				if len(t.Times) == 0 {
					problems = append(problems, Problem{ProblemNoTimes, tripRef, "trip has no start times"})
				}

				problems = append(problems, b.checkDurations(r.Name, t)...)
			}
		}
	}

	for key := range b.Geometries {
		if !patterns[key] {
			problems = append(problems, Problem{ProblemOrphanGeometry, key, "geometry matches no trip pattern"})
		}
	}

	return problems
}

// checkDurations flags trips the schedule oracle will have to estimate
// with the per-stop fallback instead of measured segment times.
func (b *Bundle) checkDurations(route string, t models.Trip) []Problem {
	ref := fmt.Sprintf("%s/%s", route, t.Headsign)

	entry, ok := b.Durations[DurationKey(route, t.Headsign)]
	if !ok {
		return []Problem{{ProblemMissingDurations, ref, "no route_durations entry; per-stop fallback applies"}}
	}

	var problems []Problem
	if want := len(t.Stops) - 1; len(entry.Segments) != want && want >= 0 {
		problems = append(problems, Problem{ProblemSegmentMismatch, ref,
			fmt.Sprintf("%d segments for %d stops", len(entry.Segments), len(t.Stops))})
	}
	for i, seg := range entry.Segments {
		if i+1 >= len(t.Stops) {
			break
		}
		if seg.FromStopID != t.Stops[i] || seg.ToStopID != t.Stops[i+1] {
			problems = append(problems, Problem{ProblemSegmentMismatch, ref,
				fmt.Sprintf("segment %d spans %s→%s, sequence has %s→%s",
					i, seg.FromStopID, seg.ToStopID, t.Stops[i], t.Stops[i+1])})
		}
	}
	return problems
}

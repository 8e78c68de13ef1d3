package api

import (
	"net/url"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/campusbus/shuttle_core/internal/cache"
	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/models"
	"github.com/campusbus/shuttle_core/internal/schedule"
)

// DepartureRow is a single upcoming departure at a stop
type DepartureRow struct {
	Route        string `json:"route"`
	Headsign     string `json:"headsign"`
	Time         string `json:"time"`
	Mins         int    `json:"mins"`
	MinutesUntil int    `json:"minutes_until"`
	TripStart    string `json:"trip_start"`
}

// DeparturesResponse is the response for the departures endpoint
type DeparturesResponse struct {
	Stop       *models.Stop   `json:"stop"`
	Day        string         `json:"day"`
	Time       string         `json:"time"`
	Departures []DepartureRow `json:"departures"`
	Total      int            `json:"total"`
}

// StopDepartures handles GET /api/v1/stops/:id/departures
func (s *Server) StopDepartures(c *fiber.Ctx) error {
	stopID := c.Params("id")
	if stopID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "stop ID is required",
		})
	}

	day, queryMins, err := resolveWhen(c.Query("day"), c.Query("time"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": err.Error(),
		})
	}

	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > 50 {
		limit = 10
	}

	net := s.holder.Get()
	if net == nil {
		return c.Status(503).JSON(fiber.Map{
			"error":   "network_unavailable",
			"message": "shuttle network is not loaded",
		})
	}

	stop, ok := net.Stop(stopID)
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error":   "stop_not_found",
			"message": "no stop with id " + stopID,
		})
	}

	// Check cache
	cacheKey := cache.DeparturesKey(net.Stamp(), stopID, day, queryMins)
	if s.cacheEnabled {
		var cachedResp DeparturesResponse
		if err := cache.GetJSON(c.Context(), cacheKey, &cachedResp); err == nil {
			return c.JSON(cachedResp)
		}
	}

	oracle := schedule.NewOracle(net)

	departures := []DepartureRow{}
	for _, visit := range net.VisitsAt(stopID) {
		ref := visit.Ref
		if !ref.ServesDay(day) {
			continue
		}
		// Departures off the last stop make no sense on a board
		if visit.Index == len(ref.Stops())-1 {
			continue
		}

		offset := oracle.OffsetMins(ref, visit.Index)
		for _, start := range ref.Times() {
			dep := start + offset
			if float64(dep) < queryMins {
				continue
			}
			if schedule.InBlackout(day, dep) {
				continue
			}
			departures = append(departures, DepartureRow{
				Route:        ref.RouteName(),
				Headsign:     ref.Headsign(),
				Time:         dataset.FormatClock(dep),
				Mins:         dep,
				MinutesUntil: dep - int(queryMins),
				TripStart:    dataset.FormatClock(start),
			})
		}
	}

	sort.Slice(departures, func(i, j int) bool {
		if departures[i].Mins != departures[j].Mins {
			return departures[i].Mins < departures[j].Mins
		}
		return departures[i].Route < departures[j].Route
	})
	if len(departures) > limit {
		departures = departures[:limit]
	}

	resp := DeparturesResponse{
		Stop:       stop,
		Day:        day,
		Time:       dataset.FormatClock(int(queryMins)),
		Departures: departures,
		Total:      len(departures),
	}

	// Boards go stale fast; cache for 60 seconds
	if s.cacheEnabled {
		_ = cache.SetJSON(c.Context(), cacheKey, resp, 60*time.Second)
	}

	return c.JSON(resp)
}

// TimetableStop is one row of a pattern's stop column
type TimetableStop struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

// TimetableTrip is one run of a pattern with its per-stop times
type TimetableTrip struct {
	Start string   `json:"start"`
	Times []string `json:"times"`
}

// TimetablePattern is one directional pattern with its full timetable
type TimetablePattern struct {
	Headsign string          `json:"headsign"`
	Days     []string        `json:"days"`
	Stops    []TimetableStop `json:"stops"`
	Trips    []TimetableTrip `json:"trips"`
}

// TimetableResponse is the response for the timetable endpoint
type TimetableResponse struct {
	Route    string             `json:"route"`
	IsLoop   bool               `json:"is_loop,omitempty"`
	Patterns []TimetablePattern `json:"patterns"`
}

// RouteTimetable handles GET /api/v1/routes/:name/timetable
func (s *Server) RouteTimetable(c *fiber.Ctx) error {
	routeName := c.Params("name")
	if decoded, err := url.PathUnescape(routeName); err == nil {
		routeName = decoded
	}
	if routeName == "" {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "route name is required",
		})
	}

	headsignFilter := c.Query("headsign")

	net := s.holder.Get()
	if net == nil {
		return c.Status(503).JSON(fiber.Map{
			"error":   "network_unavailable",
			"message": "shuttle network is not loaded",
		})
	}

	route, ok := net.Route(routeName)
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error":   "route_not_found",
			"message": "no route named " + routeName,
		})
	}

	// Check cache
	cacheKey := cache.TimetableKey(net.Stamp(), routeName, headsignFilter)
	if s.cacheEnabled {
		var cachedResp TimetableResponse
		if err := cache.GetJSON(c.Context(), cacheKey, &cachedResp); err == nil {
			return c.JSON(cachedResp)
		}
	}

	oracle := schedule.NewOracle(net)

	resp := TimetableResponse{
		Route:    route.Name,
		IsLoop:   route.IsLoop,
		Patterns: []TimetablePattern{},
	}

	for _, ref := range net.PatternsOf(route.Name) {
		if headsignFilter != "" && ref.Headsign() != headsignFilter {
			continue
		}

		pattern := TimetablePattern{
			Headsign: ref.Headsign(),
			Days:     ref.Days(),
			Stops:    []TimetableStop{},
			Trips:    []TimetableTrip{},
		}

		offsets := make([]int, len(ref.Stops()))
		for j, stopID := range ref.Stops() {
			offsets[j] = oracle.OffsetMins(ref, j)

			name := stopID
			if stop, ok := net.Stop(stopID); ok {
				name = stop.Name
			}
			pattern.Stops = append(pattern.Stops, TimetableStop{
				Index: j,
				ID:    stopID,
				Name:  name,
			})
		}

		for _, start := range ref.Times() {
			trip := TimetableTrip{
				Start: dataset.FormatClock(start),
				Times: make([]string, len(offsets)),
			}
			for j, off := range offsets {
				trip.Times[j] = dataset.FormatClock(start + off)
			}
			pattern.Trips = append(pattern.Trips, trip)
		}

		resp.Patterns = append(resp.Patterns, pattern)
	}

	if headsignFilter != "" && len(resp.Patterns) == 0 {
		return c.Status(404).JSON(fiber.Map{
			"error":   "pattern_not_found",
			"message": "route " + routeName + " has no headsign " + headsignFilter,
		})
	}

	// Timetables only change on reload; cache for an hour
	if s.cacheEnabled {
		_ = cache.SetJSON(c.Context(), cacheKey, resp, time.Hour)
	}

	return c.JSON(resp)
}

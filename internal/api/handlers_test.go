package api

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/locate"
	"github.com/campusbus/shuttle_core/internal/models"
	"github.com/campusbus/shuttle_core/internal/routing"
)

// The handler fixture sits on a metre grid: a three-stop spine served by one
// morning route, a food court by the southern hub, and a detached western
// pair whose only trip lands inside the friday blackout.
const (
	gridBaseLat = 1.5500
	gridBaseLon = 103.6300
	gridMPerDeg = 6371000 * math.Pi / 180
)

func gridAt(northM, eastM float64) geo.Point {
	return geo.Point{
		Lat: gridBaseLat + northM/gridMPerDeg,
		Lon: gridBaseLon + eastM/(gridMPerDeg*math.Cos(gridBaseLat*math.Pi/180)),
	}
}

func gridStop(id, name string, northM, eastM float64) models.Stop {
	p := gridAt(northM, eastM)
	return models.Stop{ID: id, Name: name, Lat: p.Lat, Lon: p.Lon}
}

func apiBundle() *dataset.Bundle {
	arked := gridAt(250, 60)
	return &dataset.Bundle{
		Stops: []models.Stop{
			gridStop("CP", "Central Point", 0, 0),
			gridStop("KTC", "Kolej Tun Chancellor", 600, 0),
			gridStop("KP1", "Kolej Perdana 1", 1200, 0),
			gridStop("FKT", "Fakulti Teknologi", 0, -1200),
			gridStop("KLG_E", "Kolej Lestari Gate East", 2000, -1500),
		},
		Locations: []models.Location{
			{ID: "arked_meranti", Name: "Arked Meranti", Lat: arked.Lat, Lon: arked.Lon, NearestStop: "CP", Category: "food"},
		},
		Routes: []models.Route{
			{
				Name: "Route A",
				Services: []models.Service{{
					ID:   "spine_weekday",
					Days: []string{"monday", "thursday", "friday"},
					Trips: []models.Trip{{
						Headsign: "To CP",
						Stops:    []string{"KP1", "KTC", "CP"},
						Times:    []int{420, 630, 900},
					}},
				}},
			},
			{
				Name: "Route N",
				Services: []models.Service{{
					ID:   "noon_friday",
					Days: []string{"friday"},
					Trips: []models.Trip{{
						Headsign: "To Gate",
						Stops:    []string{"FKT", "KLG_E"},
						Times:    []int{765},
					}},
				}},
			},
		},
		Durations: map[string]dataset.DurationEntry{
			"Route A_To CP": {Segments: []dataset.Segment{
				{FromStopID: "KP1", ToStopID: "KTC", TotalSecs: 300},
				{FromStopID: "KTC", ToStopID: "CP", TotalSecs: 240},
			}},
			"Route N_To Gate": {Segments: []dataset.Segment{
				{FromStopID: "FKT", ToStopID: "KLG_E", TotalSecs: 720},
			}},
		},
	}
}

// newTestApp mounts the production routes over the fixture network with
// cache and analytics off, so handlers hit the planner directly.
func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	net, err := graph.Build(apiBundle())
	require.NoError(t, err)

	holder := graph.NewHolder(net)
	locator := locate.New(holder, nil)
	planner := routing.NewPlanner(holder, locator, nil, nil)

	srv := NewServer(holder, locator, planner, Options{DataDir: "testdata"})
	app := fiber.New()
	srv.Register(app, "sekret")
	return app
}

func get(t *testing.T, app *fiber.App, path string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Error
}

func TestPlanTrip(t *testing.T) {
	app := newTestApp(t)

	t.Run("direct bus trip", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/plan?from=KP1&to=CP&day=monday&time=06:30")
		require.Equal(t, 200, status, string(body))

		var itin models.Itinerary
		require.NoError(t, json.Unmarshal(body, &itin))
		assert.Equal(t, models.ItineraryDirect, itin.Type)
		assert.Equal(t, "Route A", itin.Route)
		require.NotNil(t, itin.Summary)
		assert.Equal(t, "07:09", itin.Summary.ETA)
		assert.NotEmpty(t, itin.PlanID)
		assert.NotEmpty(t, itin.Steps)
		assert.False(t, itin.Cached)
	})

	t.Run("coordinate origin boards the nearest stop", func(t *testing.T) {
		p := gridAt(620, 30)
		path := fmt.Sprintf("/api/v1/plan?from=%.6f,%.6f&to=CP&day=monday&time=06:30", p.Lat, p.Lon)
		status, body := get(t, app, path)
		require.Equal(t, 200, status, string(body))

		var itin models.Itinerary
		require.NoError(t, json.Unmarshal(body, &itin))
		assert.Equal(t, models.ItineraryDirect, itin.Type)
		assert.Equal(t, "Route A", itin.Route)
	})

	t.Run("short hops stay on foot", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/plan?from=CP&to=arked_meranti&day=monday&time=06:30")
		require.Equal(t, 200, status, string(body))

		var itin models.Itinerary
		require.NoError(t, json.Unmarshal(body, &itin))
		assert.Equal(t, models.ItineraryWalkOnly, itin.Type)
		assert.NotEmpty(t, itin.Steps)
	})

	t.Run("missing destination", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/plan?from=CP")
		assert.Equal(t, 400, status)
		assert.Equal(t, "missing_destination", errorCode(t, body))
	})

	t.Run("missing origin", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/plan?to=CP")
		assert.Equal(t, 400, status)
		assert.Equal(t, "OriginMissing", errorCode(t, body))
	})

	t.Run("unknown origin stop", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/plan?from=NOPE&to=CP")
		assert.Equal(t, 404, status)
		assert.Equal(t, "OriginNotFound", errorCode(t, body))
	})

	t.Run("unknown destination", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/plan?from=KP1&to=Atlantis")
		assert.Equal(t, 404, status)
		assert.Equal(t, "DestinationNotFound", errorCode(t, body))
	})

	t.Run("connection that never departs", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/plan?from=FKT&to=KLG_E&day=monday&time=10:00")
		assert.Equal(t, 422, status)
		assert.Equal(t, "NoService", errorCode(t, body))
	})

	t.Run("invalid day", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/plan?from=KP1&to=CP&day=funday")
		assert.Equal(t, 400, status)
		assert.Equal(t, "bad_request", errorCode(t, body))
	})

	t.Run("invalid time", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/plan?from=KP1&to=CP&time=25:99")
		assert.Equal(t, 400, status)
		assert.Equal(t, "bad_request", errorCode(t, body))
	})
}

func TestStopDepartures(t *testing.T) {
	app := newTestApp(t)

	t.Run("board lists upcoming departures", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/stops/KP1/departures?day=monday&time=06:00")
		require.Equal(t, 200, status, string(body))

		var resp DeparturesResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		require.NotNil(t, resp.Stop)
		assert.Equal(t, "KP1", resp.Stop.ID)
		assert.Equal(t, "monday", resp.Day)
		require.Len(t, resp.Departures, 3)

		first := resp.Departures[0]
		assert.Equal(t, "Route A", first.Route)
		assert.Equal(t, "To CP", first.Headsign)
		assert.Equal(t, "07:00", first.Time)
		assert.Equal(t, 420, first.Mins)
		assert.Equal(t, 60, first.MinutesUntil)
		assert.Equal(t, 3, resp.Total)
	})

	t.Run("mid-route stop shifts times by the travel offset", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/stops/KTC/departures?day=monday&time=06:00")
		require.Equal(t, 200, status, string(body))

		var resp DeparturesResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		require.NotEmpty(t, resp.Departures)
		assert.Equal(t, "07:05", resp.Departures[0].Time)
		assert.Equal(t, "07:00", resp.Departures[0].TripStart)
	})

	t.Run("terminal stop shows nothing", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/stops/CP/departures?day=monday&time=06:00")
		require.Equal(t, 200, status, string(body))

		var resp DeparturesResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.Empty(t, resp.Departures)
		assert.Equal(t, 0, resp.Total)
	})

	t.Run("friday blackout hides midday trips", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/stops/FKT/departures?day=friday&time=06:00")
		require.Equal(t, 200, status, string(body))

		var resp DeparturesResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.Empty(t, resp.Departures)
	})

	t.Run("unknown stop", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/stops/NOPE/departures")
		assert.Equal(t, 404, status)
		assert.Equal(t, "stop_not_found", errorCode(t, body))
	})
}

func TestStopsNearby(t *testing.T) {
	app := newTestApp(t)

	t.Run("finds stops inside the radius", func(t *testing.T) {
		p := gridAt(0, 0)
		path := fmt.Sprintf("/api/v1/stops/nearby?lat=%.6f&lon=%.6f&radius=700", p.Lat, p.Lon)
		status, body := get(t, app, path)
		require.Equal(t, 200, status, string(body))

		var resp NearbyStopsResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		require.Len(t, resp.Stops, 2)
		assert.Equal(t, "CP", resp.Stops[0].ID)
		assert.Equal(t, 0, resp.Stops[0].DistanceM)
		assert.Equal(t, "KTC", resp.Stops[1].ID)
		assert.InDelta(t, 600, resp.Stops[1].DistanceM, 2)

		require.NotEmpty(t, resp.Stops[0].Routes)
		assert.Equal(t, "Route A", resp.Stops[0].Routes[0].Route)
		assert.Equal(t, 1, resp.Stops[0].RoutesCount)
	})

	t.Run("missing coordinates", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/stops/nearby?lat=1.55")
		assert.Equal(t, 400, status)
		assert.Equal(t, "bad_request", errorCode(t, body))
	})

	t.Run("radius out of range", func(t *testing.T) {
		p := gridAt(0, 0)
		path := fmt.Sprintf("/api/v1/stops/nearby?lat=%.6f&lon=%.6f&radius=9000", p.Lat, p.Lon)
		status, _ := get(t, app, path)
		assert.Equal(t, 400, status)
	})
}

func TestRoutesList(t *testing.T) {
	app := newTestApp(t)

	status, body := get(t, app, "/api/v1/routes")
	require.Equal(t, 200, status, string(body))

	var resp RoutesListResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 2, resp.Total)

	var routeA *RouteInfo
	for i := range resp.Routes {
		if resp.Routes[i].Name == "Route A" {
			routeA = &resp.Routes[i]
		}
	}
	require.NotNil(t, routeA)
	require.Len(t, routeA.Patterns, 1)
	pat := routeA.Patterns[0]
	assert.Equal(t, "To CP", pat.Headsign)
	assert.Equal(t, 3, pat.Stops)
	assert.Equal(t, []string{"monday", "thursday", "friday"}, pat.Days)
	assert.Equal(t, "07:00", pat.FirstTrip)
	assert.Equal(t, "15:00", pat.LastTrip)
}

func TestRouteTimetable(t *testing.T) {
	app := newTestApp(t)

	t.Run("expands per-stop times", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/routes/Route%20A/timetable")
		require.Equal(t, 200, status, string(body))

		var resp TimetableResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.Equal(t, "Route A", resp.Route)
		require.Len(t, resp.Patterns, 1)

		pat := resp.Patterns[0]
		assert.Equal(t, "To CP", pat.Headsign)
		require.Len(t, pat.Stops, 3)
		assert.Equal(t, "KTC", pat.Stops[1].ID)
		assert.Equal(t, "Kolej Tun Chancellor", pat.Stops[1].Name)

		require.Len(t, pat.Trips, 3)
		assert.Equal(t, "07:00", pat.Trips[0].Start)
		assert.Equal(t, []string{"07:00", "07:05", "07:09"}, pat.Trips[0].Times)
	})

	t.Run("unknown route", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/routes/Route%20Z/timetable")
		assert.Equal(t, 404, status)
		assert.Equal(t, "route_not_found", errorCode(t, body))
	})

	t.Run("headsign filter with no match", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/routes/Route%20A/timetable?headsign=Nowhere")
		assert.Equal(t, 404, status)
		assert.Equal(t, "pattern_not_found", errorCode(t, body))
	})
}

func TestLocationsSearch(t *testing.T) {
	app := newTestApp(t)

	t.Run("matches by name fragment", func(t *testing.T) {
		status, body := get(t, app, "/api/v1/locations/search?q=arked")
		require.Equal(t, 200, status, string(body))

		var resp struct {
			Locations []*models.Location `json:"locations"`
			Total     int                `json:"total"`
		}
		require.NoError(t, json.Unmarshal(body, &resp))
		require.Equal(t, 1, resp.Total)
		assert.Equal(t, "Arked Meranti", resp.Locations[0].Name)
	})

	t.Run("missing query", func(t *testing.T) {
		status, _ := get(t, app, "/api/v1/locations/search")
		assert.Equal(t, 400, status)
	})
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	status, body := get(t, app, "/health")
	require.Equal(t, 200, status, string(body))

	var resp struct {
		Status string                 `json:"status"`
		Checks map[string]interface{} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "5 stops, 2 routes", resp.Checks["network"])
}

func TestAdminEndpoints(t *testing.T) {
	app := newTestApp(t)

	t.Run("reload requires the admin token", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("POST", "/admin/reload", nil))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, 401, resp.StatusCode)
	})

	t.Run("stats is unavailable without a database", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/stats", nil)
		req.Header.Set("Authorization", "Bearer sekret")
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, 503, resp.StatusCode)
		assert.Equal(t, "analytics_disabled", errorCode(t, body))
	})

	t.Run("ratelimit status requires an ip", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/ratelimit", nil)
		req.Header.Set("Authorization", "Bearer sekret")
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "bad_request", errorCode(t, body))
	})

	t.Run("ratelimit status is unavailable without redis", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/ratelimit?ip=1.2.3.4", nil)
		req.Header.Set("Authorization", "Bearer sekret")
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, 503, resp.StatusCode)
		assert.Equal(t, "rate_limit_disabled", errorCode(t, body))
	})
}

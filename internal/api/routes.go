package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campusbus/shuttle_core/internal/middleware"
)

// Register mounts every route. The plan endpoint takes extra per-route
// middleware (rate limiting, analytics) so the cheap read endpoints stay
// unmetered; admin endpoints sit behind the bearer token.
func (s *Server) Register(app *fiber.App, adminToken string, planMiddleware ...fiber.Handler) {
	planChain := append(append([]fiber.Handler{}, planMiddleware...), s.PlanTrip)
	app.Get("/api/v1/plan", planChain...)

	app.Get("/api/v1/stops/nearby", s.StopsNearby)
	app.Get("/api/v1/stops/:id/departures", s.StopDepartures)
	app.Get("/api/v1/routes", s.RoutesList)
	app.Get("/api/v1/routes/:name/timetable", s.RouteTimetable)
	app.Get("/api/v1/locations/search", s.LocationsSearch)
	app.Get("/health", s.Health)

	admin := middleware.RequireAdmin(adminToken)
	app.Post("/admin/reload", admin, s.Reload)
	app.Get("/admin/stats", admin, s.Stats)
	app.Get("/admin/ratelimit", admin, s.RateLimitStatus)
	app.Post("/admin/ratelimit/reset", admin, s.RateLimitReset)
}

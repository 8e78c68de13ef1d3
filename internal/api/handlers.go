package api

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/campusbus/shuttle_core/internal/cache"
	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/db"
	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/locate"
	"github.com/campusbus/shuttle_core/internal/middleware"
	"github.com/campusbus/shuttle_core/internal/models"
	"github.com/campusbus/shuttle_core/internal/routing"
)

// Server carries the shared services behind every handler. Requests read the
// network through the holder, so an admin reload swaps it in atomically
// while in-flight plans keep the build they started with.
type Server struct {
	holder  *graph.Holder
	locator *locate.Service
	planner *routing.Planner
	dataDir string

	cacheEnabled bool
	cacheTTL     time.Duration
	mutexTTL     time.Duration
	dbEnabled    bool
	rateLimit    int
}

// Options toggles the optional subsystems per deployment.
type Options struct {
	DataDir            string
	CacheEnabled       bool
	DBEnabled          bool
	RateLimitPerMinute int
}

// NewServer wires the handler set.
func NewServer(holder *graph.Holder, locator *locate.Service, planner *routing.Planner, opts Options) *Server {
	s := &Server{
		holder:       holder,
		locator:      locator,
		planner:      planner,
		dataDir:      opts.DataDir,
		cacheEnabled: opts.CacheEnabled,
		dbEnabled:    opts.DBEnabled,
		rateLimit:    opts.RateLimitPerMinute,
		cacheTTL:     5 * time.Minute,
		mutexTTL:     5 * time.Second,
	}
	if opts.CacheEnabled {
		cfg := cache.LoadConfigFromEnv()
		s.cacheTTL = cfg.TTL
		s.mutexTTL = cfg.MutexTTL
	}
	return s
}

// PlanTrip handles GET /api/v1/plan
func (s *Server) PlanTrip(c *fiber.Ctx) error {
	fromStr := strings.TrimSpace(c.Query("from"))
	toStr := strings.TrimSpace(c.Query("to"))

	if toStr == "" {
		return c.Status(400).JSON(fiber.Map{
			"error":   "missing_destination",
			"message": "missing required parameter: to",
		})
	}

	req := routing.Request{
		ForceBus: c.QueryBool("force_bus"),
		Anytime:  c.QueryBool("anytime"),
	}

	// Origin is either "lat,lon" or a stop id. A missing origin flows into
	// the planner, which reports it as a typed error.
	if fromStr != "" {
		if lat, lon, err := parseCoordinates(fromStr); err == nil {
			req.OriginPoint = &geo.Point{Lat: lat, Lon: lon}
		} else {
			req.OriginStopID = fromStr
		}
	}

	if lat, lon, err := parseCoordinates(toStr); err == nil {
		req.DestPoint = &geo.Point{Lat: lat, Lon: lon}
	} else {
		req.Destination = toStr
	}

	// Day and clock defaults resolve here, not in the planner, so the cache
	// key is always concrete.
	day, queryMins, err := resolveWhen(c.Query("day"), c.Query("time"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": err.Error(),
		})
	}
	req.Day = day
	req.QueryMins = queryMins

	c.Locals("plan_query_mins", int(queryMins))

	net := s.holder.Get()
	if net == nil {
		return c.Status(503).JSON(fiber.Map{
			"error":   "network_unavailable",
			"message": "shuttle network is not loaded",
		})
	}

	itin, hit, err := s.planWithCache(c.Context(), net, req, fromStr, toStr)
	if err != nil {
		if perr, ok := routing.AsPlanError(err); ok {
			return c.Status(statusForKind(perr.Kind)).JSON(fiber.Map{
				"error":   string(perr.Kind),
				"message": perr.Message,
			})
		}
		log.Printf("Plan failed: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error":   "internal_error",
			"message": "internal server error",
		})
	}

	itin.PlanID = uuid.NewString()
	itin.Cached = hit

	c.Locals("plan_id", itin.PlanID)
	c.Locals("plan_type", string(itin.Type))
	c.Locals("cache_hit", hit)

	return c.JSON(itin)
}

// planWithCache wraps the planner in the cache-then-lock-then-compute
// protocol. Only one process computes a given plan at a time; concurrent
// requests wait briefly for its result and compute themselves if waiting
// runs out. Without Redis the planner is called directly.
func (s *Server) planWithCache(ctx context.Context, net *graph.Network, req routing.Request, fromStr, toStr string) (*models.Itinerary, bool, error) {
	if !s.cacheEnabled {
		itin, err := s.planner.Plan(ctx, req)
		return itin, false, err
	}

	cacheKey := cache.PlanKey(net.Stamp(), fromStr, toStr, req.Day, req.QueryMins, req.ForceBus, req.Anytime)
	lockKey := cache.LockKey(cacheKey)

	cached, err := cache.GetItinerary(ctx, cacheKey)
	if err == nil && cached != nil {
		return cached, true, nil
	}

	acquired, err := cache.AcquireLock(ctx, lockKey, s.mutexTTL)
	if err != nil {
		log.Printf("Failed to acquire plan lock: %v", err)
		// Continue without lock (degrade gracefully)
	} else if !acquired {
		// Another request is computing this plan, wait for it
		cached, err := cache.WaitForLock(ctx, cacheKey, 3*time.Second)
		if err == nil && cached != nil {
			return cached, true, nil
		}
		// If waiting failed, compute anyway
	}

	defer func() {
		if acquired {
			cache.ReleaseLock(ctx, lockKey)
		}
	}()

	itin, err := s.planner.Plan(ctx, req)
	if err != nil {
		return nil, false, err
	}

	if err := cache.SetItinerary(ctx, cacheKey, itin, s.cacheTTL); err != nil {
		log.Printf("Failed to cache plan: %v", err)
	}

	return itin, false, nil
}

// statusForKind maps planning failures onto HTTP statuses. NoPath never
// reaches here; the planner answers it with a walk-only itinerary.
func statusForKind(kind routing.ErrorKind) int {
	switch kind {
	case routing.KindOriginMissing:
		return 400
	case routing.KindOriginNotFound, routing.KindDestinationNotFound:
		return 404
	case routing.KindNoService:
		return 422
	default:
		return 500
	}
}

// resolveWhen fills day and clock defaults from the wall clock.
func resolveWhen(dayStr, timeStr string) (string, float64, error) {
	now := time.Now()

	day := strings.TrimSpace(dayStr)
	if day == "" {
		day = strings.ToLower(now.Weekday().String())
	} else {
		canonical, err := dataset.CanonicalDay(day)
		if err != nil {
			return "", 0, err
		}
		day = canonical
	}

	if strings.TrimSpace(timeStr) == "" {
		return day, float64(now.Hour()*60 + now.Minute()), nil
	}

	mins, err := dataset.ParseClock(timeStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid time format (use HH:MM): %v", err)
	}
	return day, float64(mins), nil
}

// parseCoordinates parses "lat,lon" string into floats
func parseCoordinates(coordStr string) (lat, lon float64, err error) {
	parts := strings.Split(coordStr, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected format: lat,lon")
	}

	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude: %w", err)
	}

	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude: %w", err)
	}

	// Validate ranges
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("longitude must be between -180 and 180")
	}

	return lat, lon, nil
}

// NearbyStopsResponse represents the response for nearby stops
type NearbyStopsResponse struct {
	Stops []NearbyStop `json:"stops"`
}

// NearbyRouteInfo represents a pattern serving a nearby stop
type NearbyRouteInfo struct {
	Route    string `json:"route"`
	Headsign string `json:"headsign"`
}

// NearbyStop represents a nearby stop with the patterns calling there
type NearbyStop struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	DistanceM   int               `json:"distance_meters"`
	Routes      []NearbyRouteInfo `json:"routes"`
	RoutesCount int               `json:"routes_count"`
}

// StopsNearby handles GET /api/v1/stops/nearby
func (s *Server) StopsNearby(c *fiber.Ctx) error {
	latStr := c.Query("lat")
	lonStr := c.Query("lon")

	if latStr == "" || lonStr == "" {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "missing required parameters: lat and lon",
		})
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "invalid latitude",
		})
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "invalid longitude",
		})
	}

	radius, err := strconv.Atoi(c.Query("radius", "500"))
	if err != nil || radius < 0 || radius > 5000 {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "invalid radius (must be between 0 and 5000 meters)",
		})
	}

	limit := c.QueryInt("limit", 5)
	if limit < 1 || limit > 20 {
		limit = 5
	}

	net := s.holder.Get()
	if net == nil {
		return c.Status(503).JSON(fiber.Map{
			"error":   "network_unavailable",
			"message": "shuttle network is not loaded",
		})
	}

	var candidates []graph.StopDistance
	if c.QueryBool("refine") {
		// Walking-matrix refinement; distances come back as walking meters,
		// so the straight-line radius does not apply.
		candidates = s.locator.RefinedNearest(c.Context(), geo.Point{Lat: lat, Lon: lon}, limit)
	} else {
		candidates = s.locator.NearbyStops(lat, lon, float64(radius), limit)
	}

	stops := make([]NearbyStop, 0, len(candidates))
	for _, sd := range candidates {
		entry := NearbyStop{
			ID:        sd.Stop.ID,
			Name:      sd.Stop.Name,
			Lat:       sd.Stop.Lat,
			Lon:       sd.Stop.Lon,
			DistanceM: int(math.Round(sd.DistanceM)),
			Routes:    []NearbyRouteInfo{},
		}

		seen := map[string]bool{}
		for _, visit := range net.VisitsAt(sd.Stop.ID) {
			key := visit.Ref.RouteName() + "|" + visit.Ref.Headsign()
			if seen[key] {
				continue
			}
			seen[key] = true
			entry.Routes = append(entry.Routes, NearbyRouteInfo{
				Route:    visit.Ref.RouteName(),
				Headsign: visit.Ref.Headsign(),
			})
		}
		entry.RoutesCount = len(entry.Routes)
		stops = append(stops, entry)
	}

	return c.JSON(NearbyStopsResponse{Stops: stops})
}

// LocationsSearch handles GET /api/v1/locations/search
func (s *Server) LocationsSearch(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "missing required parameter: q",
		})
	}

	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > 50 {
		limit = 10
	}

	results := s.locator.Search(q, limit)
	if results == nil {
		results = []*models.Location{}
	}

	return c.JSON(fiber.Map{
		"locations": results,
		"total":     len(results),
	})
}

// RoutesListResponse represents the response for the routes list
type RoutesListResponse struct {
	Routes []RouteInfo `json:"routes"`
	Total  int         `json:"total"`
}

// RoutePattern is one directional pattern of a route
type RoutePattern struct {
	Headsign  string   `json:"headsign"`
	Stops     int      `json:"stops"`
	Days      []string `json:"days"`
	FirstTrip string   `json:"first_trip,omitempty"`
	LastTrip  string   `json:"last_trip,omitempty"`
}

// RouteInfo represents route information
type RouteInfo struct {
	Name     string         `json:"name"`
	IsLoop   bool           `json:"is_loop,omitempty"`
	Patterns []RoutePattern `json:"patterns"`
}

// RoutesList handles GET /api/v1/routes
func (s *Server) RoutesList(c *fiber.Ctx) error {
	net := s.holder.Get()
	if net == nil {
		return c.Status(503).JSON(fiber.Map{
			"error":   "network_unavailable",
			"message": "shuttle network is not loaded",
		})
	}

	routes := make([]RouteInfo, 0, len(net.Routes()))
	for _, route := range net.Routes() {
		info := RouteInfo{
			Name:     route.Name,
			IsLoop:   route.IsLoop,
			Patterns: []RoutePattern{},
		}
		for _, ref := range net.PatternsOf(route.Name) {
			pattern := RoutePattern{
				Headsign: ref.Headsign(),
				Stops:    len(ref.Stops()),
				Days:     ref.Days(),
			}
			if times := ref.Times(); len(times) > 0 {
				pattern.FirstTrip = dataset.FormatClock(times[0])
				pattern.LastTrip = dataset.FormatClock(times[len(times)-1])
			}
			info.Patterns = append(info.Patterns, pattern)
		}
		routes = append(routes, info)
	}

	return c.JSON(RoutesListResponse{Routes: routes, Total: len(routes)})
}

// Health handles GET /health. Redis and Postgres degrade the status but
// never fail it; planning works without them.
func (s *Server) Health(c *fiber.Ctx) error {
	ctx := c.Context()

	status := "healthy"
	httpStatus := 200
	checks := fiber.Map{}

	net := s.holder.Get()
	if net == nil {
		checks["network"] = "not loaded"
		status = "unhealthy"
		httpStatus = 503
	} else {
		checks["network"] = fmt.Sprintf("%d stops, %d routes", len(net.Stops()), len(net.Routes()))
		checks["dataset_built_at"] = net.BuiltAt().Format(time.RFC3339)
	}

	if s.cacheEnabled {
		if err := cache.HealthCheck(ctx); err != nil {
			checks["redis"] = err.Error()
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["redis"] = "ok"
		}
	}

	if s.dbEnabled {
		if err := db.HealthCheck(ctx); err != nil {
			checks["database"] = err.Error()
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["database"] = "ok"
		}
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}

// Reload handles POST /admin/reload: rebuild the network from the datasets
// and swap it in without interrupting in-flight requests.
func (s *Server) Reload(c *fiber.Ctx) error {
	bundle, err := dataset.Load(s.dataDir)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error":   "reload_failed",
			"message": err.Error(),
		})
	}

	problems := bundle.Validate()
	problemStrs := make([]string, 0, len(problems))
	for _, p := range problems {
		problemStrs = append(problemStrs, p.String())
	}

	net, err := graph.Build(bundle)
	if err != nil {
		return c.Status(422).JSON(fiber.Map{
			"error":    "dataset_invalid",
			"message":  err.Error(),
			"problems": problemStrs,
		})
	}

	s.holder.Swap(net)
	s.locator.Reset()

	log.Printf("Network reloaded: %d stops, %d routes, stamp %s",
		len(net.Stops()), len(net.Routes()), net.Stamp())

	return c.JSON(fiber.Map{
		"status":   "reloaded",
		"stops":    len(net.Stops()),
		"routes":   len(net.Routes()),
		"stamp":    net.Stamp(),
		"problems": problemStrs,
	})
}

// Stats handles GET /admin/stats
func (s *Server) Stats(c *fiber.Ctx) error {
	if !s.dbEnabled {
		return c.Status(503).JSON(fiber.Map{
			"error":   "analytics_disabled",
			"message": "set DB_HOST to enable request analytics",
		})
	}

	pool, err := db.GetDB()
	if err != nil {
		log.Printf("Database error: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error":   "internal_error",
			"message": "internal server error",
		})
	}

	days := c.QueryInt("days", 7)
	if days < 1 || days > 90 {
		days = 7
	}
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	stats, err := middleware.GetDailyStats(pool, start, end)
	if err != nil {
		log.Printf("Stats query error: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error":   "internal_error",
			"message": "internal server error",
		})
	}

	if s.cacheEnabled {
		if cacheStats, err := cache.Stats(c.Context()); err == nil {
			stats["cache"] = cacheStats
		}
	}

	return c.JSON(stats)
}

// RateLimitStatus handles GET /admin/ratelimit
func (s *Server) RateLimitStatus(c *fiber.Ctx) error {
	ip := c.Query("ip")
	if ip == "" {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "missing required parameter: ip",
		})
	}

	if !s.cacheEnabled || s.rateLimit <= 0 {
		return c.Status(503).JSON(fiber.Map{
			"error":   "rate_limit_disabled",
			"message": "rate limiting is not enabled",
		})
	}

	rdb, err := cache.GetClient()
	if err != nil {
		log.Printf("Redis error: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error":   "internal_error",
			"message": "internal server error",
		})
	}

	return c.JSON(middleware.GetRateLimitStatus(rdb, ip, s.rateLimit))
}

// RateLimitReset handles POST /admin/ratelimit/reset. Clears the current
// window for one client so support can unblock a throttled user.
func (s *Server) RateLimitReset(c *fiber.Ctx) error {
	ip := c.Query("ip")
	if ip == "" {
		return c.Status(400).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "missing required parameter: ip",
		})
	}

	if !s.cacheEnabled || s.rateLimit <= 0 {
		return c.Status(503).JSON(fiber.Map{
			"error":   "rate_limit_disabled",
			"message": "rate limiting is not enabled",
		})
	}

	rdb, err := cache.GetClient()
	if err != nil {
		log.Printf("Redis error: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error":   "internal_error",
			"message": "internal server error",
		})
	}

	if err := middleware.ResetRateLimit(rdb, ip); err != nil {
		log.Printf("Rate limit reset error: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error":   "internal_error",
			"message": "internal server error",
		})
	}

	return c.JSON(fiber.Map{"status": "reset", "ip": ip})
}

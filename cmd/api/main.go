package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/campusbus/shuttle_core/internal/api"
	"github.com/campusbus/shuttle_core/internal/cache"
	"github.com/campusbus/shuttle_core/internal/config"
	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/db"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/locate"
	"github.com/campusbus/shuttle_core/internal/middleware"
	"github.com/campusbus/shuttle_core/internal/routing"
	"github.com/campusbus/shuttle_core/internal/walking"
)

func main() {
	log.Println("Starting shuttle API server...")

	// .env is a convenience for local runs; absence is fine
	_ = godotenv.Load()

	cfg := config.Load()

	// Load datasets and build the in-memory network
	bundle, err := dataset.Load(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to load datasets from %s: %v", cfg.DataDir, err)
	}
	for _, p := range bundle.Validate() {
		log.Printf("dataset: %s", p)
	}

	net, err := graph.Build(bundle)
	if err != nil {
		log.Fatalf("Failed to build network: %v", err)
	}
	holder := graph.NewHolder(net)
	log.Printf("✓ Network loaded: %d stops, %d routes", len(net.Stops()), len(net.Routes()))

	// Walking router is optional; without it the planner falls back to
	// straight-line estimates
	var walker walking.Router
	if cfg.WalkRouterURL != "" {
		walker = walking.NewClient(cfg.WalkRouterURL)
		log.Printf("✓ Walking router at %s", cfg.WalkRouterURL)
	} else {
		walker = walking.Disabled{}
		log.Println("Walking router not configured; using straight-line estimates")
	}

	locator := locate.New(holder, walker)
	planner := routing.NewPlanner(holder, locator, walker, cfg.TransferHubs)

	// Redis plan cache is optional
	if cfg.RedisEnabled {
		if _, err := cache.GetClient(); err != nil {
			log.Printf("Redis unavailable, running without plan cache: %v", err)
			cfg.RedisEnabled = false
		} else {
			defer cache.Close()
			log.Println("✓ Redis connection established")
		}
	} else {
		log.Println("Redis not configured; plan cache disabled")
	}

	// Postgres analytics is optional
	var planMW []fiber.Handler
	if cfg.DBEnabled {
		pool, err := db.GetDB()
		if err != nil {
			log.Printf("Postgres unavailable, running without analytics: %v", err)
			cfg.DBEnabled = false
		} else {
			defer db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := db.EnsureSchema(ctx, pool); err != nil {
				log.Printf("Analytics schema: %v", err)
			}
			cancel()

			planMW = append(planMW, middleware.Analytics(pool))
			log.Println("✓ Postgres connection established")
		}
	} else {
		log.Println("Postgres not configured; request analytics disabled")
	}

	srv := api.NewServer(holder, locator, planner, api.Options{
		DataDir:            cfg.DataDir,
		CacheEnabled:       cfg.RedisEnabled,
		DBEnabled:          cfg.DBEnabled,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	app := fiber.New(fiber.Config{
		AppName:      "Campus Shuttle API",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	if cfg.RedisEnabled && cfg.RateLimitPerMinute > 0 {
		rdb, _ := cache.GetClient()
		app.Use("/api/v1", middleware.RateLimit(rdb, cfg.RateLimitPerMinute))
		log.Printf("✓ Rate limiting at %d requests/minute per client", cfg.RateLimitPerMinute)
	}

	srv.Register(app, cfg.AdminToken, planMW...)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	addr := fmt.Sprintf(":%s", cfg.Port)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("🚀 Server listening on http://localhost%s", addr)
	log.Printf("📍 Trip planning: http://localhost%s/api/v1/plan?from=LAT,LON&to=NAME", addr)
	log.Printf("❤️  Health check: http://localhost%s/health", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// customErrorHandler handles errors returned from handlers
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Printf("Error: %v", err)

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

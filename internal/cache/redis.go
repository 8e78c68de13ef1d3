package cache

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/campusbus/shuttle_core/internal/models"
	"github.com/redis/go-redis/v9"
)

var (
	client     *redis.Client
	clientOnce sync.Once
	clientErr  error
)

// Config holds Redis configuration
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
	MutexTTL time.Duration
}

// LoadConfigFromEnv loads Redis configuration from environment variables
func LoadConfigFromEnv() *Config {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttlSecs, _ := strconv.Atoi(getEnv("CACHE_TTL_SECONDS", "300"))
	mutexSecs, _ := strconv.Atoi(getEnv("CACHE_MUTEX_TTL_SECONDS", "5"))

	return &Config{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     port,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
		TTL:      time.Duration(ttlSecs) * time.Second,
		MutexTTL: time.Duration(mutexSecs) * time.Second,
	}
}

// GetClient returns the global Redis client (singleton pattern)
func GetClient() (*redis.Client, error) {
	clientOnce.Do(func() {
		config := LoadConfigFromEnv()

		opts := &redis.Options{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Password:     config.Password,
			DB:           config.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		}

		// Enable TLS if configured (required for Upstash)
		if getEnv("REDIS_TLS_ENABLED", "false") == "true" {
			opts.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}

		client = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			clientErr = fmt.Errorf("failed to connect to Redis: %w", err)
			return
		}
	})

	return client, clientErr
}

// Close closes the Redis client
func Close() {
	if client != nil {
		client.Close()
	}
}

// PlanKey generates a cache key for one planning request. The network stamp
// is part of the hashed input so a dataset reload invalidates every cached
// plan without an explicit flush.
func PlanKey(stamp, origin, dest, day string, queryMins float64, forceBus, anytime bool) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%.1f|%t|%t", stamp, origin, dest, day, queryMins, forceBus, anytime)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("plan:%x", hash[:8])
}

// DeparturesKey generates a cache key for a stop departures query
func DeparturesKey(stamp, stopID, day string, queryMins float64) string {
	data := fmt.Sprintf("%s|%s|%s|%.0f", stamp, stopID, day, queryMins)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("dep:%x", hash[:8])
}

// TimetableKey generates a cache key for a route timetable query
func TimetableKey(stamp, route, headsign string) string {
	data := fmt.Sprintf("%s|%s|%s", stamp, route, headsign)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("tt:%x", hash[:8])
}

// LockKey generates a mutex lock key
func LockKey(planKey string) string {
	return fmt.Sprintf("lock:%s", planKey)
}

// GetItinerary retrieves a cached itinerary. A cache miss returns (nil, nil).
func GetItinerary(ctx context.Context, key string) (*models.Itinerary, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, err
	}

	var itin models.Itinerary
	if err := json.Unmarshal(data, &itin); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached itinerary: %w", err)
	}

	return &itin, nil
}

// SetItinerary caches an itinerary
func SetItinerary(ctx context.Context, key string, itin *models.Itinerary, ttl time.Duration) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	data, err := json.Marshal(itin)
	if err != nil {
		return fmt.Errorf("failed to marshal itinerary: %w", err)
	}

	return client.Set(ctx, key, data, ttl).Err()
}

// GetJSON retrieves an arbitrary cached value into out. Misses and errors
// both come back as errors so callers can fall through to compute.
func GetJSON(ctx context.Context, key string, out interface{}) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, out)
}

// SetJSON caches an arbitrary value as JSON
func SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return client.Set(ctx, key, data, ttl).Err()
}

// AcquireLock attempts to acquire a distributed lock
// Returns true if lock was acquired, false if already locked
func AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	client, err := GetClient()
	if err != nil {
		return false, err
	}

	// Try to set the lock key with NX (only if not exists)
	ok, err := client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseLock releases a distributed lock
func ReleaseLock(ctx context.Context, key string) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	return client.Del(ctx, key).Err()
}

// WaitForLock waits for a lock to be released and then retrieves the result
// This implements the "wait for result" pattern to avoid thundering herd
func WaitForLock(ctx context.Context, planKey string, maxWait time.Duration) (*models.Itinerary, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	lockKey := LockKey(planKey)
	deadline := time.Now().Add(maxWait)

	for time.Now().Before(deadline) {
		// Check if lock is released
		exists, err := client.Exists(ctx, lockKey).Result()
		if err != nil {
			return nil, err
		}

		if exists == 0 {
			// Lock released, try to get cached result
			return GetItinerary(ctx, planKey)
		}

		// Wait a bit before checking again
		time.Sleep(100 * time.Millisecond)
	}

	return nil, fmt.Errorf("timeout waiting for lock")
}

// HealthCheck performs a health check on the Redis connection
func HealthCheck(ctx context.Context) error {
	client, err := GetClient()
	if err != nil {
		return fmt.Errorf("Redis client not initialized: %w", err)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}

	return nil
}

// Stats returns Redis stats
func Stats(ctx context.Context) (map[string]interface{}, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	info, err := client.Info(ctx, "stats").Result()
	if err != nil {
		return nil, err
	}

	poolStats := client.PoolStats()

	return map[string]interface{}{
		"info":        info,
		"hits":        poolStats.Hits,
		"misses":      poolStats.Misses,
		"timeouts":    poolStats.Timeouts,
		"total_conns": poolStats.TotalConns,
		"idle_conns":  poolStats.IdleConns,
		"stale_conns": poolStats.StaleConns,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

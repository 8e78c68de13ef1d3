package middleware

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlanRequestLog holds one row for the plan_request analytics table
type PlanRequestLog struct {
	PlanID        string
	Origin        string
	Destination   string
	Day           string
	QueryMins     int
	ItineraryType string
	StatusCode    int
	DurationMs    int
	CacheHit      bool
	IPAddress     string
	UserAgent     string
	Timestamp     time.Time
}

// Analytics logs planning requests for usage analysis. Mount it on the plan
// route only; the insert runs on its own goroutine and never delays the
// response. The plan handler fills the plan_id, plan_type and cache_hit
// locals after computing.
func Analytics(db *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		responseTime := time.Since(start)

		cacheHit := false
		if val := c.Locals("cache_hit"); val != nil {
			cacheHit = val.(bool)
		}

		planID, _ := c.Locals("plan_id").(string)
		planType, _ := c.Locals("plan_type").(string)
		queryMins, _ := c.Locals("plan_query_mins").(int)

		requestLog := &PlanRequestLog{
			PlanID:        planID,
			Origin:        c.Query("from"),
			Destination:   c.Query("to"),
			Day:           c.Query("day"),
			QueryMins:     queryMins,
			ItineraryType: planType,
			StatusCode:    c.Response().StatusCode(),
			DurationMs:    int(responseTime.Milliseconds()),
			CacheHit:      cacheHit,
			IPAddress:     c.IP(),
			UserAgent:     c.Get("User-Agent"),
			Timestamp:     time.Now(),
		}

		// Log asynchronously (non-blocking)
		go logPlanRequest(db, requestLog)

		c.Set("X-Response-Time", responseTime.String())
		c.Set("X-Cache-Hit", boolToString(cacheHit))

		return err
	}
}

// logPlanRequest inserts one analytics row
func logPlanRequest(db *pgxpool.Pool, reqLog *PlanRequestLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO plan_request (
			plan_id,
			requested_at,
			origin,
			destination,
			day,
			query_mins,
			itinerary_type,
			status_code,
			duration_ms,
			cache_hit,
			client_ip,
			user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := db.Exec(ctx, query,
		reqLog.PlanID,
		reqLog.Timestamp,
		reqLog.Origin,
		reqLog.Destination,
		reqLog.Day,
		reqLog.QueryMins,
		reqLog.ItineraryType,
		reqLog.StatusCode,
		reqLog.DurationMs,
		reqLog.CacheHit,
		reqLog.IPAddress,
		reqLog.UserAgent,
	)

	if err != nil {
		log.Println("Failed to log plan request:", err)
	}
}

// boolToString converts bool to string for headers
func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// GetDailyStats retrieves per-day planning statistics for the admin stats
// endpoint
func GetDailyStats(db *pgxpool.Pool, startDate, endDate time.Time) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT
			DATE(requested_at) as date,
			COUNT(*) as total_requests,
			COUNT(*) FILTER (WHERE status_code >= 200 AND status_code < 300) as successful,
			COUNT(*) FILTER (WHERE status_code >= 400) as failed,
			COUNT(*) FILTER (WHERE itinerary_type = 'WALK_ONLY') as walk_only,
			COUNT(*) FILTER (WHERE itinerary_type = 'DIRECT') as direct,
			COUNT(*) FILTER (WHERE itinerary_type = 'TRANSFER') as transfer,
			AVG(duration_ms) as avg_duration_ms,
			MAX(duration_ms) as max_duration_ms,
			COUNT(*) FILTER (WHERE cache_hit = true) as cache_hits,
			COUNT(DISTINCT client_ip) as unique_ips
		FROM plan_request
		WHERE requested_at >= $1
			AND requested_at <= $2
		GROUP BY DATE(requested_at)
		ORDER BY date DESC
	`

	rows, err := db.Query(ctx, query, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []map[string]interface{}
	for rows.Next() {
		var (
			date        time.Time
			total       int64
			successful  int64
			failed      int64
			walkOnly    int64
			direct      int64
			transfer    int64
			avgDuration float64
			maxDuration int
			cacheHits   int64
			uniqueIPs   int64
		)

		err := rows.Scan(&date, &total, &successful, &failed, &walkOnly, &direct, &transfer, &avgDuration, &maxDuration, &cacheHits, &uniqueIPs)
		if err != nil {
			continue
		}

		stats = append(stats, map[string]interface{}{
			"date":            date.Format("2006-01-02"),
			"total_requests":  total,
			"successful":      successful,
			"failed":          failed,
			"walk_only":       walkOnly,
			"direct":          direct,
			"transfer":        transfer,
			"avg_duration_ms": avgDuration,
			"max_duration_ms": maxDuration,
			"cache_hits":      cacheHits,
			"cache_hit_rate":  float64(cacheHits) / float64(total) * 100,
			"unique_ips":      uniqueIPs,
		})
	}

	return map[string]interface{}{
		"stats":   stats,
		"summary": calculateSummary(stats),
	}, nil
}

// calculateSummary calculates aggregate statistics
func calculateSummary(stats []map[string]interface{}) map[string]interface{} {
	if len(stats) == 0 {
		return map[string]interface{}{}
	}

	var totalRequests, totalSuccessful, totalFailed int64
	var totalCacheHits int64
	var sumAvgDuration float64

	for _, stat := range stats {
		totalRequests += stat["total_requests"].(int64)
		totalSuccessful += stat["successful"].(int64)
		totalFailed += stat["failed"].(int64)
		totalCacheHits += stat["cache_hits"].(int64)
		sumAvgDuration += stat["avg_duration_ms"].(float64)
	}

	return map[string]interface{}{
		"total_requests":     totalRequests,
		"total_successful":   totalSuccessful,
		"total_failed":       totalFailed,
		"success_rate":       float64(totalSuccessful) / float64(totalRequests) * 100,
		"total_cache_hits":   totalCacheHits,
		"overall_cache_rate": float64(totalCacheHits) / float64(totalRequests) * 100,
		"avg_duration_ms":    sumAvgDuration / float64(len(stats)),
		"days_analyzed":      len(stats),
	}
}

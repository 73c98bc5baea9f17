package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthPingTimeout = 3 * time.Second

// Pinger is the part of *pgxpool.Pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats is the connection pool snapshot reported by /health.
type PoolStats struct {
	Total    int32 `json:"totalConns"`
	Idle     int32 `json:"idleConns"`
	Acquired int32 `json:"acquiredConns"`
	Max      int32 `json:"maxConns"`
}

type databaseReport struct {
	Reachable bool      `json:"reachable"`
	LatencyMS int64     `json:"latencyMs"`
	Pool      PoolStats `json:"pool"`
}

type healthReport struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Uptime    string         `json:"uptime"`
	CheckedAt time.Time      `json:"checkedAt"`
	Database  databaseReport `json:"database"`
}

// HealthChecker answers GET /health.
type HealthChecker struct {
	db      Pinger
	stats   func() PoolStats
	version string
	started time.Time
	now     func() time.Time
}

// NewHealthChecker reports on pool and stamps responses with version.
func NewHealthChecker(pool *pgxpool.Pool, version string) *HealthChecker {
	return newHealthChecker(pool, func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			Total:    s.TotalConns(),
			Idle:     s.IdleConns(),
			Acquired: s.AcquiredConns(),
			Max:      s.MaxConns(),
		}
	}, version)
}

func newHealthChecker(db Pinger, stats func() PoolStats, version string) *HealthChecker {
	return &HealthChecker{
		db:      db,
		stats:   stats,
		version: version,
		started: time.Now(),
		now:     time.Now,
	}
}

// Handler returns 200 while the database answers a ping and 503 otherwise.
// The ping error is logged, never returned to the caller.
func (h *HealthChecker) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()

		start := h.now()
		err := h.db.Ping(ctx)
		report := healthReport{
			Status:    "ok",
			Version:   h.version,
			Uptime:    h.now().Sub(h.started).Truncate(time.Second).String(),
			CheckedAt: start.UTC(),
			Database: databaseReport{
				Reachable: err == nil,
				LatencyMS: h.now().Sub(start).Milliseconds(),
				Pool:      h.stats(),
			},
		}

		if err != nil {
			c.Logger().Errorf("health check: database ping: %v", err)
			report.Status = "unavailable"
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}

package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	Driver          string `json:"driver"`
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// Checker is a store that can be pinged and report pool statistics.
type Checker interface {
	Ping(ctx context.Context) error
	Stats() *PoolStats
}

type pgChecker struct {
	pool *pgxpool.Pool
}

// PostgresChecker reports health for a pgx pool.
func PostgresChecker(pool *pgxpool.Pool) Checker {
	return &pgChecker{pool: pool}
}

func (p *pgChecker) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *pgChecker) Stats() *PoolStats {
	stat := p.pool.Stat()
	return &PoolStats{
		Driver:          DriverPostgres,
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

type sqlChecker struct {
	db *sql.DB
}

// SQLiteChecker reports health for a database/sql handle.
func SQLiteChecker(sqlDB *sql.DB) Checker {
	return &sqlChecker{db: sqlDB}
}

func (s *sqlChecker) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlChecker) Stats() *PoolStats {
	stat := s.db.Stats()
	return &PoolStats{
		Driver:          DriverSQLite,
		TotalConns:      int32(stat.OpenConnections),
		IdleConns:       int32(stat.Idle),
		AcquiredConns:   int32(stat.InUse),
		MaxConns:        int32(stat.MaxOpenConnections),
		AcquireCount:    stat.WaitCount,
		AcquireDuration: stat.WaitDuration.String(),
		Healthy:         true,
	}
}

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(checker Checker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := checker.Ping(ctx)
		stats := checker.Stats()

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}

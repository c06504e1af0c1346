package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/domain/user"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/internal/platform/middleware"
	"github.com/ehr/patients/migrations"
)

// store is the opened database behind DATABASE_URL. Exactly one of pool and
// sqlDB is set.
type store struct {
	driver string
	pool   *pgxpool.Pool
	sqlDB  *sql.DB
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	driver, err := db.Driver(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	switch driver {
	case db.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &store{driver: driver, pool: pool}, nil
	default:
		sqlDB, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &store{driver: driver, sqlDB: sqlDB}, nil
	}
}

func (s *store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlDB != nil {
		s.sqlDB.Close()
	}
}

func (s *store) migrator() *db.Migrator {
	if s.pool != nil {
		return db.NewMigrator(db.PostgresTarget(s.pool), migrations.FS, migrations.PostgresDir)
	}
	return db.NewMigrator(db.SQLiteTarget(s.sqlDB), migrations.FS, migrations.SQLiteDir)
}

func (s *store) users() user.Repository {
	if s.pool != nil {
		return user.NewRepoPG(s.pool)
	}
	return user.NewRepoSQLite(s.sqlDB)
}

func (s *store) patients() patient.Repository {
	if s.pool != nil {
		return patient.NewRepoPG(s.pool)
	}
	return patient.NewRepoSQLite(s.sqlDB)
}

func (s *store) checker() db.Checker {
	if s.pool != nil {
		return db.PostgresChecker(s.pool)
	}
	return db.SQLiteChecker(s.sqlDB)
}

// session pins one pooled PostgreSQL connection to each request. SQLite
// needs no per-request session.
func (s *store) session() echo.MiddlewareFunc {
	if s.pool == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return db.SessionMiddleware(s.pool, auth.PublicSkipper)
}

// inTx runs fn in one PostgreSQL transaction. SQLite runs fn directly.
func (s *store) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.RunInTx(ctx, s.pool, fn)
}

// prepare applies pending migrations and seeds the demo accounts. The
// accounts are created all or none.
func (s *store) prepare(ctx context.Context, tokens *auth.TokenIssuer) (applied, seeded int, err error) {
	applied, err = s.migrator().Up(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("migrate: %w", err)
	}
	svc := user.NewService(s.users(), tokens)
	err = s.inTx(ctx, func(ctx context.Context) error {
		seeded, err = svc.SeedDefaults(ctx)
		return err
	})
	if err != nil {
		return applied, 0, fmt.Errorf("seed: %w", err)
	}
	return applied, seeded, nil
}

const insertAudit = `
	INSERT INTO audit_log (recorded_at, request_id, username, role, action, patient_id,
		method, path, remote_ip, user_agent, status)
	VALUES (%s)`

// auditRecorder writes audit entries to the audit_log table.
func (s *store) auditRecorder() middleware.AuditRecorder {
	return middleware.AuditRecorderFunc(func(e middleware.AuditEntry) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if s.pool != nil {
			_, err := s.pool.Exec(ctx, fmt.Sprintf(insertAudit, "$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11"),
				e.Timestamp, e.RequestID, e.Username, e.Role, e.Action, e.PatientID,
				e.Method, e.Path, e.IPAddress, e.UserAgent, e.StatusCode)
			return err
		}
		_, err := s.sqlDB.ExecContext(ctx, fmt.Sprintf(insertAudit, "?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?"),
			db.FormatTimestamp(e.Timestamp), e.RequestID, e.Username, e.Role, e.Action, e.PatientID,
			e.Method, e.Path, e.IPAddress, e.UserAgent, e.StatusCode)
		return err
	})
}

// Package archive persists call outcomes and delivered alerts to Postgres
// so past sessions can be reviewed and summarized.
package archive

import (
	"context"
	"embed"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/shestorm/callguard/pkg/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store archives calls and alerts. It implements the monitor's sink.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects to Postgres, runs pending migrations and returns a store.
// The initial ping retries with exponential backoff for up to connectWait
// so a database that is still coming up does not fail startup.
func Open(ctx context.Context, dsn string, connectWait time.Duration, logger zerolog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, core.NewStorageError("parse database config", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, core.NewStorageError("create connection pool", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectWait
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pool.Ping(pingCtx)
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		pool.Close()
		return nil, core.NewStorageError("database unreachable", err)
	}

	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Msg("archive ready")
	return &Store{pool: pool, logger: logger}, nil
}

func migrate(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return core.NewStorageError("set migration dialect", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return core.NewStorageError("run migrations", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// StartCall records a new call in the active status. Re-registering the
// same session id is a no-op.
func (s *Store) StartCall(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calls (session_id) VALUES ($1)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID)
	if err != nil {
		return core.NewStorageError("start call", err)
	}
	return nil
}

// RecordAlert stores a delivered alert and bumps the call's risk score.
func (s *Store) RecordAlert(ctx context.Context, sessionID, message string, score int, danger bool) error {
	alertType := "caution"
	if danger {
		alertType = "danger"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (call_id, alert_type, risk_score, message)
		 SELECT id, $2, $3, $4 FROM calls WHERE session_id = $1`,
		sessionID, alertType, score, message)
	if err != nil {
		return core.NewStorageError("record alert", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE calls SET risk_score = $2, updated_at = now() WHERE session_id = $1`,
		sessionID, score)
	if err != nil {
		return core.NewStorageError("update call risk", err)
	}
	return nil
}

// FinishCall records the final score and terminal status of a call.
func (s *Store) FinishCall(ctx context.Context, sessionID string, finalScore int, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE calls SET risk_score = $2, status = $3, updated_at = now()
		 WHERE session_id = $1`,
		sessionID, finalScore, status)
	if err != nil {
		return core.NewStorageError("finish call", err)
	}
	return nil
}

// Summary aggregates archived calls.
type Summary struct {
	TotalCalls       int     `json:"total_calls"`
	TotalAlerts      int     `json:"total_alerts"`
	AverageRiskScore float64 `json:"average_risk_score"`
}

// Summarize returns call and alert totals with the average risk score
// rounded to two decimals.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var out Summary
	var avg float64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), coalesce(avg(risk_score), 0) FROM calls`).
		Scan(&out.TotalCalls, &avg)
	if err != nil {
		return Summary{}, core.NewStorageError("summarize calls", err)
	}
	out.AverageRiskScore = roundScore(avg)
	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM alerts`).Scan(&out.TotalAlerts)
	if err != nil {
		return Summary{}, core.NewStorageError("summarize alerts", err)
	}
	return out, nil
}

// Call is one archived call row.
type Call struct {
	ID        int       `json:"id"`
	SessionID string    `json:"session_id"`
	RiskScore float64   `json:"risk_score"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecentCalls returns up to limit calls, newest first.
func (s *Store) RecentCalls(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, risk_score, status, created_at, updated_at
		 FROM calls ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, core.NewStorageError("list calls", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var c Call
		if err := rows.Scan(&c.ID, &c.SessionID, &c.RiskScore, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, core.NewStorageError("scan call", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list calls", err)
	}
	return calls, nil
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

// SessionStatus is the terminal status recorded for a call.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusDropped   SessionStatus = "dropped"
)

func (s SessionStatus) String() string { return string(s) }

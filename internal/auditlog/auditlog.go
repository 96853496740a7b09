// Package auditlog records a best-effort, append-only trail of arbitration
// decisions to Postgres, for after-the-fact production diagnosis. It is
// never consulted by the engine and never fails a request: each write is
// bounded by a 2-second timeout, and a failed or timed-out write is logged
// and dropped, not retried.
package auditlog

import (
	"context"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/afengine/afengine/internal/focus"
)

// Logger writes decision records to Postgres.
type Logger struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens a pool against databaseURL and applies pending migrations.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*Logger, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 5
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Str("url", maskDSN(databaseURL)).Msg("audit log database connected")

	if err := Migrate(databaseURL, log); err != nil {
		pool.Close()
		return nil, err
	}

	return &Logger{pool: pool, log: log}, nil
}

// Record implements focus.DecisionSink. It inserts synchronously, so the
// caller waits for the write for at most 2 seconds; on failure it logs and
// returns without retrying.
func (l *Logger) Record(displayID focus.DisplayID, appID, requestType string, result focus.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := l.pool.Exec(ctx,
		`INSERT INTO focus_decisions (display_id, app_id, request_type, result, decided_at) VALUES ($1, $2, $3, $4, now())`,
		int(displayID), appID, requestType, string(result),
	)
	if err != nil {
		l.log.Warn().Err(err).Str("app", appID).Msg("audit log write failed, dropping")
	}
}

// HealthCheck implements transport.HealthChecker.
func (l *Logger) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return l.pool.Ping(ctx)
}

// Close releases the pool.
func (l *Logger) Close() {
	l.log.Info().Msg("closing audit log pool")
	l.pool.Close()
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

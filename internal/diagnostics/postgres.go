package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkuran/shopbot/internal/models"
)

// Store mirrors failure records and account results to Postgres so
// runs can be queried across machines. Optional; every write is
// best-effort.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS account_results (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	account_index INT NOT NULL,
	masked_username TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS failure_records (
	id TEXT PRIMARY KEY,
	account_index INT NOT NULL,
	step TEXT NOT NULL,
	url TEXT,
	error TEXT,
	recorded_at TIMESTAMPTZ NOT NULL
);
`

// NewStore connects, pings and ensures the schema.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &Store{
		pool:   pool,
		logger: slog.Default().With("component", "result_store"),
	}, nil
}

func (s *Store) SaveFailure(record models.FailureRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO failure_records (id, account_index, step, url, error, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		record.ID, record.AccountIndex, record.Step, record.URL, record.Error, record.Timestamp)
	if err != nil {
		s.logger.Warn("failed to save failure record", "error", err)
	}
}

func (s *Store) SaveResults(runID string, results []models.AccountResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, res := range results {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO account_results (run_id, account_index, masked_username, status, message, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			runID, res.Index, res.MaskedUsername, string(res.Status), res.Message, res.Timestamp)
		if err != nil {
			s.logger.Warn("failed to save account result", "index", res.Index, "error", err)
		}
	}
}

func (s *Store) Close() {
	s.pool.Close()
}

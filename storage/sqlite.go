package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"paper-auditor/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS api_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	timestamp TEXT NOT NULL,
	service TEXT NOT NULL,
	method TEXT,
	url TEXT,
	params TEXT,
	response_status INTEGER,
	response_time_ms INTEGER,
	success INTEGER,
	result_count INTEGER,
	cache_hit INTEGER,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_api_calls_run_id ON api_calls(run_id);
`

// SQLiteCallLog is a file based call log for runs without Postgres.
type SQLiteCallLog struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLiteCallLog opens or creates the call log at path.
func OpenSQLiteCallLog(path string, logger *zap.Logger) (*SQLiteCallLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening call log %s: %w", path, err)
	}
	// One writer; concurrent audits queue on the connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating call log schema: %w", err)
	}
	return &SQLiteCallLog{db: db, logger: logger}, nil
}

// Record implements gateway.CallSink.
func (l *SQLiteCallLog) Record(ctx context.Context, c *models.APICall) {
	_, err := l.db.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO api_calls (run_id, timestamp, service, method, url, params, response_status,
			response_time_ms, success, result_count, cache_hit, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RunID, c.Timestamp.UTC().Format(time.RFC3339Nano), c.Service, c.Method, c.URL, c.Params,
		c.ResponseStatus, c.ResponseTimeMs, c.Success, c.ResultCount, c.CacheHit, c.Error)
	if err != nil {
		l.logger.Warn("Failed to write call log entry", zap.String("service", c.Service), zap.Error(err))
	}
}

// Calls returns the entries of runID in insertion order.
func (l *SQLiteCallLog) Calls(ctx context.Context, runID string) ([]models.APICall, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, run_id, timestamp, service, method, url, params, response_status,
			response_time_ms, success, result_count, cache_hit, error
		FROM api_calls WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.APICall
	for rows.Next() {
		var (
			c  models.APICall
			ts string
		)
		if err := rows.Scan(&c.ID, &c.RunID, &ts, &c.Service, &c.Method, &c.URL, &c.Params,
			&c.ResponseStatus, &c.ResponseTimeMs, &c.Success, &c.ResultCount, &c.CacheHit, &c.Error); err != nil {
			return nil, err
		}
		if c.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp %q: %w", ts, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (l *SQLiteCallLog) Close() error {
	return l.db.Close()
}

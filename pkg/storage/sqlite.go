package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/starlink-awaken/omo-quota/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements the Storage interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The monitor and the CLI may hold the database at the same time.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) RecordSwitch(ctx context.Context, record *model.SwitchRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO switch_history (id, from_strategy, to_strategy, outcome, stage, error, automatic, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.From, record.To, string(record.Outcome),
		record.Stage, record.Error, record.Automatic, record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert switch record: %w", err)
	}
	return nil
}

func (s *SQLite) ListSwitches(ctx context.Context, filter model.HistoryFilter) ([]model.SwitchRecord, error) {
	query := "SELECT id, from_strategy, to_strategy, outcome, stage, error, automatic, timestamp FROM switch_history"
	where, args := buildWhereClause(filter, "to_strategy")
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query switches: %w", err)
	}
	defer rows.Close()

	var records []model.SwitchRecord
	for rows.Next() {
		var r model.SwitchRecord
		var outcome string
		if err := rows.Scan(&r.ID, &r.From, &r.To, &outcome, &r.Stage, &r.Error, &r.Automatic, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan switch row: %w", err)
		}
		r.Outcome = model.SwitchOutcome(outcome)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite) CountSwitches(ctx context.Context, filter model.HistoryFilter) (map[model.SwitchOutcome]int64, error) {
	query := "SELECT outcome, COUNT(*) FROM switch_history"
	where, args := buildWhereClause(filter, "to_strategy")
	if where != "" {
		query += " WHERE " + where
	}
	query += " GROUP BY outcome"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count switches: %w", err)
	}
	defer rows.Close()

	result := make(map[model.SwitchOutcome]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan switch count: %w", err)
		}
		result[model.SwitchOutcome(outcome)] = n
	}
	return result, rows.Err()
}

func (s *SQLite) RecordAlert(ctx context.Context, record *model.AlertRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_history (id, provider, level, used_pct, message, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.Provider, record.Level, record.UsedPct, record.Message, record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert alert record: %w", err)
	}
	return nil
}

func (s *SQLite) ListAlerts(ctx context.Context, filter model.HistoryFilter) ([]model.AlertRecord, error) {
	query := "SELECT id, provider, level, used_pct, message, timestamp FROM alert_history"
	where, args := buildWhereClause(filter, "")
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var records []model.AlertRecord
	for rows.Next() {
		var r model.AlertRecord
		if err := rows.Scan(&r.ID, &r.Provider, &r.Level, &r.UsedPct, &r.Message, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// buildWhereClause constructs a SQL WHERE clause from a HistoryFilter.
// strategyColumn is empty for tables without a strategy column.
func buildWhereClause(filter model.HistoryFilter, strategyColumn string) (string, []any) {
	var conditions []string
	var args []any

	if filter.Provider != "" && strategyColumn == "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.Strategy != "" && strategyColumn != "" {
		conditions = append(conditions, strategyColumn+" = ?")
		args = append(args, filter.Strategy)
	}
	if !filter.StartTime.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, filter.EndTime)
	}

	return strings.Join(conditions, " AND "), args
}

// Package orderlog persists every broker call attempt and its outcome in
// an append-only SQLite table, kept separate from the main store so audit
// writes never contend with execution-path transactions.
package orderlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one broker call attempt/result.
type Record struct {
	ID         int64          `json:"id"`
	UserID     int64          `json:"user_id"`
	StrategyID string         `json:"strategy_id"`
	Broker     string         `json:"broker"`
	Symbol     string         `json:"symbol"`
	Side       string         `json:"side"`
	Qty        float64        `json:"qty"`
	OrderType  string         `json:"order_type"`
	Status     string         `json:"status"`
	OrderID    string         `json:"order_id,omitempty"`
	FillPrice  float64        `json:"fill_price,omitempty"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Statuses recorded per attempt.
const (
	StatusFilled = "FILLED"
	StatusFailed = "FAILED"
)

// Store writes order records through a single serialized connection.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// New initializes the SQLite-backed order log.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("order log path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS order_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			strategy_id TEXT NOT NULL,
			broker TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty REAL NOT NULL,
			order_type TEXT NOT NULL,
			status TEXT NOT NULL,
			order_id TEXT,
			fill_price REAL,
			error TEXT,
			details TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_log_user ON order_log(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_order_log_created ON order_log(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append records one broker call attempt. Failures to audit-log are
// reported to the caller but must never abort the trading operation.
func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("order log store closed")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	var details []byte
	if len(rec.Details) > 0 {
		details, _ = json.Marshal(rec.Details)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_log
			(user_id, strategy_id, broker, symbol, side, qty, order_type, status, order_id, fill_price, error, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID,
		strings.TrimSpace(rec.StrategyID),
		strings.TrimSpace(rec.Broker),
		strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		strings.ToUpper(strings.TrimSpace(rec.Side)),
		rec.Qty,
		strings.ToUpper(strings.TrimSpace(rec.OrderType)),
		strings.ToUpper(strings.TrimSpace(rec.Status)),
		strings.TrimSpace(rec.OrderID),
		rec.FillPrice,
		strings.TrimSpace(rec.Error),
		string(details),
		rec.CreatedAt.UnixMilli(),
	)
	return err
}

// List returns the newest records, optionally filtered by user.
func (s *Store) List(ctx context.Context, userID int64, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("order log store closed")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, user_id, strategy_id, broker, symbol, side, qty, order_type, status, order_id, fill_price, error, details, created_at
		FROM order_log`
	args := []any{}
	if userID > 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var orderID, errMsg, details sql.NullString
		var fillPrice sql.NullFloat64
		var createdAt int64
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.StrategyID, &rec.Broker, &rec.Symbol,
			&rec.Side, &rec.Qty, &rec.OrderType, &rec.Status,
			&orderID, &fillPrice, &errMsg, &details, &createdAt,
		); err != nil {
			return nil, err
		}
		rec.OrderID = orderID.String
		rec.FillPrice = fillPrice.Float64
		rec.Error = errMsg.String
		if details.Valid && details.String != "" {
			_ = json.Unmarshal([]byte(details.String), &rec.Details)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

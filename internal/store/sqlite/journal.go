package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"exchange-simv1/internal/audit"
)

// Journal is an audit sink that appends events to the audit_events table.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite audit journal.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[journal] opened audit journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Record appends one event.
func (j *Journal) Record(ctx context.Context, e audit.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO audit_events (ts, event_type, order_id, symbol, side, price, quantity, info, account)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TSString(),
		string(e.Type),
		int64(e.OrderID),
		e.Symbol,
		string(e.Side),
		e.Price.String(),
		e.Quantity,
		e.Info,
		e.Account,
	)
	if err != nil {
		return fmt.Errorf("sqlite insert audit event: %w", err)
	}
	return nil
}

// EventRecord represents a row from the audit_events table.
type EventRecord struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	Type     string `json:"event_type"`
	OrderID  int64  `json:"order_id"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Info     string `json:"info"`
	Account  string `json:"account"`
}

// Events returns the last N events, newest first.
func (j *Journal) Events(limit int) ([]EventRecord, error) {
	return j.query(`SELECT id, ts, event_type, order_id, symbol, side, price, quantity, info, account
		FROM audit_events ORDER BY id DESC LIMIT ?`, limit)
}

// OrderHistory returns every event for one order, oldest first.
func (j *Journal) OrderHistory(orderID uint64) ([]EventRecord, error) {
	return j.query(`SELECT id, ts, event_type, order_id, symbol, side, price, quantity, info, account
		FROM audit_events WHERE order_id = ? ORDER BY id ASC`, int64(orderID))
}

func (j *Journal) query(q string, args ...any) ([]EventRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query audit events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			r             EventRecord
			info, account sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TS, &r.Type, &r.OrderID, &r.Symbol, &r.Side,
			&r.Price, &r.Quantity, &info, &account); err != nil {
			return nil, fmt.Errorf("sqlite scan audit event: %w", err)
		}
		r.Info, r.Account = info.String, account.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks the database within timeout.
func (j *Journal) Ping(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return j.db.PingContext(ctx)
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

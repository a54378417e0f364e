package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

// Reader provides read-only access to stored bars for replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars reads bars for symbol after afterTS (unix seconds).
// Results are ordered by timestamp ascending for correct replay order.
func (r *Reader) ReadBars(symbol string, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			b                      model.Bar
			tsUnix                 int64
			open, high, low, close string
			volume                 sql.NullInt64
		)
		if err := rows.Scan(&b.Symbol, &tsUnix, &open, &high, &low, &close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		if b.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("bar %s@%d open: %w", b.Symbol, tsUnix, err)
		}
		if b.High, err = decimal.NewFromString(high); err != nil {
			return nil, fmt.Errorf("bar %s@%d high: %w", b.Symbol, tsUnix, err)
		}
		if b.Low, err = decimal.NewFromString(low); err != nil {
			return nil, fmt.Errorf("bar %s@%d low: %w", b.Symbol, tsUnix, err)
		}
		if b.Close, err = decimal.NewFromString(close); err != nil {
			return nil, fmt.Errorf("bar %s@%d close: %w", b.Symbol, tsUnix, err)
		}
		b.Volume = volume.Int64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols returns every symbol with stored bars.
func (r *Reader) Symbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

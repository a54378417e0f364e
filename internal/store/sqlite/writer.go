package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	"exchange-simv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Writer stores historical bars.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	return db, nil
}

// Prices are stored as TEXT so decimals round-trip exactly.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			open    TEXT    NOT NULL,
			high    TEXT    NOT NULL,
			low     TEXT    NOT NULL,
			close   TEXT    NOT NULL,
			volume  INTEGER,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS audit_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			ts          TEXT    NOT NULL,
			event_type  TEXT    NOT NULL,
			order_id    INTEGER NOT NULL,
			symbol      TEXT    NOT NULL,
			side        TEXT    NOT NULL,
			price       TEXT    NOT NULL,
			quantity    INTEGER NOT NULL,
			info        TEXT,
			account     TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_order ON audit_events(order_id);
		CREATE INDEX IF NOT EXISTS idx_audit_symbol ON audit_events(symbol, ts);
	`)
	return err
}

// WriteBars upserts bars in a single transaction.
func (w *Writer) WriteBars(bars []model.Bar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare bars: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.Exec(b.Symbol, b.TS.Unix(), b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

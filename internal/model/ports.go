package model

// ── Storage Port Interfaces ──
// These interfaces decouple the feed and backtest from concrete storage
// implementations (CSV, SQLite).

// BarReader reads historical bars for replay.
type BarReader interface {
	// ReadBars returns bars for symbol with TS after afterTS (unix seconds),
	// ordered by timestamp ascending.
	ReadBars(symbol string, afterTS int64) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// BarWriter persists historical bars.
type BarWriter interface {
	// WriteBars upserts bars in a single transaction.
	WriteBars(bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

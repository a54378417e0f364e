package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV row of historical market data.
type Bar struct {
	Symbol string          `json:"symbol"`
	TS     time.Time       `json:"ts"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

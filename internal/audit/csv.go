package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
)

// CSVHeader is the column layout of the CSV audit log.
var CSVHeader = []string{"timestamp", "event_type", "order_id", "symbol", "side", "price", "quantity", "info"}

// CSVSink appends events to a CSV file, flushing after every record.
type CSVSink struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// NewCSVSink opens path for appending, writing the header if the file is new or empty.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit csv open: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("audit csv stat: %w", err)
	}

	s := &CSVSink{f: f, w: csv.NewWriter(f)}
	if st.Size() == 0 {
		if err := s.write(CSVHeader); err != nil {
			f.Close()
			return nil, err
		}
	}

	log.Printf("[audit] writing csv log to %s", path)
	return s, nil
}

// Record appends one row.
func (s *CSVSink) Record(_ context.Context, e Event) error {
	return s.write([]string{
		e.TSString(),
		string(e.Type),
		strconv.FormatUint(e.OrderID, 10),
		e.Symbol,
		string(e.Side),
		e.Price.String(),
		strconv.FormatInt(e.Quantity, 10),
		e.Info,
	})
}

func (s *CSVSink) write(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("audit csv write: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("audit csv flush: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.f.Close()
}

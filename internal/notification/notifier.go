// Package notification delivers operational alerts, such as an audit
// sink going down, to operators.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	slog.Log(context.Background(), level, alert.Title,
		slog.String("alert_level", string(alert.Level)),
		slog.String("message", alert.Message),
	)
	return nil
}

// Multi sends every alert to each notifier and joins the failures.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatch sends alert on its own goroutine with a timeout so callers
// holding locks never wait on the network. Failures are logged.
func Dispatch(n Notifier, alert Alert, timeout time.Duration) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := n.Send(ctx, alert); err != nil {
			slog.Warn("alert delivery failed",
				slog.String("title", alert.Title),
				slog.String("error", err.Error()),
			)
		}
	}()
}

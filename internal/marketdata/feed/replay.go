package feed

import (
	"context"
	"log/slog"
	"time"

	"exchange-simv1/internal/model"
)

// maxGap caps the sleep between two bars during paced replay.
const maxGap = 5 * time.Second

// Replayer emits a Source's bars onto a channel.
type Replayer struct {
	src *Source
}

// NewReplayer creates a Replayer over src.
func NewReplayer(src *Source) *Replayer {
	return &Replayer{src: src}
}

// Run rewinds the source and sends every bar to out in order, returning
// how many were sent. speed scales the gaps between bar timestamps:
// 1.0 is real time, 10.0 is ten times faster, 0 is as fast as possible.
// out is not closed.
func (r *Replayer) Run(ctx context.Context, speed float64, out chan<- model.Bar) (int, error) {
	r.src.Reset()
	slog.Info("replay started", slog.Int("bars", r.src.Len()), slog.Float64("speed", speed))

	var prevTS time.Time
	emitted := 0
	for {
		b, ok := r.src.Next()
		if !ok {
			break
		}

		if speed > 0 && !prevTS.IsZero() {
			if gap := b.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = b.TS

		select {
		case <-ctx.Done():
			slog.Info("replay cancelled", slog.Int("emitted", emitted))
			return emitted, ctx.Err()
		case out <- b:
			emitted++
		}
	}

	slog.Info("replay completed", slog.Int("emitted", emitted))
	return emitted, nil
}

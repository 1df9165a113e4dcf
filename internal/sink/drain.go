// Package sink consumes the ordered output of a pipeline and persists it.
package sink

import (
	"context"
	"fmt"

	"github.com/JakeFAU/hiscore-crawler/internal/metrics"
)

// Sink outcomes reported to metrics.
const (
	outcomeWritten = "written"
	outcomeNoMatch = "no_match"
	outcomeFailed  = "failed"
)

// Drain consumes exactly total items from in, in arrival order. Nil items
// count towards total but are not written.
func Drain[T any](ctx context.Context, in <-chan *T, total int, write func(ctx context.Context, item *T) error) error {
	for n := 0; n < total; n++ {
		var (
			item *T
			ok   bool
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain canceled after %d of %d: %w", n, total, ctx.Err())
		case item, ok = <-in:
		}
		if !ok {
			return fmt.Errorf("drain: input closed after %d of %d items", n, total)
		}
		if item == nil {
			metrics.ObserveSinkItem(outcomeNoMatch)
			continue
		}
		if err := write(ctx, item); err != nil {
			metrics.ObserveSinkItem(outcomeFailed)
			return fmt.Errorf("drain item %d: %w", n, err)
		}
		metrics.ObserveSinkItem(outcomeWritten)
	}
	return nil
}

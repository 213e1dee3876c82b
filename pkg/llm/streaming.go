package llm

import (
	"context"
	"strings"
)

// Collect drains a stream into the full answer.
func Collect(ctx context.Context, deltas <-chan Delta) (string, error) {
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case d, ok := <-deltas:
			if !ok {
				return sb.String(), nil
			}
			if d.Err != nil {
				return sb.String(), d.Err
			}
			sb.WriteString(d.Text)
		}
	}
}

// Send delivers d unless ctx ends first. Providers use it from their reader
// goroutines.
func Send(ctx context.Context, out chan<- Delta, d Delta) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- d:
		return true
	}
}

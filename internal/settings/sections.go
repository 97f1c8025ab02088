package settings

import (
	"context"
	"time"
)

// DefaultSettleDelay is how long collapsed sections get to render after
// being expanded.
const DefaultSettleDelay = 2 * time.Second

// SectionOpener expands collapsible cards in the page.
type SectionOpener interface {
	ExpandSections(ctx context.Context) (int, error)
}

// ExpandAndSettle opens every card and then waits for the page to render the
// newly visible fields.
func ExpandAndSettle(ctx context.Context, o SectionOpener, settle time.Duration) (int, error) {
	n, err := o.ExpandSections(ctx)
	if err != nil {
		return 0, err
	}
	if settle <= 0 {
		return n, nil
	}
	t := time.NewTimer(settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return n, ctx.Err()
	case <-t.C:
		return n, nil
	}
}

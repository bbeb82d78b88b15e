package notify

import (
	"context"
	"errors"

	"github.com/mikey/submission-guard/internal/core"
)

// Multi fans an event out to several notifiers
type Multi []core.Notifier

// Notify calls every notifier and joins their errors
func (m Multi) Notify(ctx context.Context, event core.DecisionEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

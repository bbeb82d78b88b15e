package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/containrrr/shoutrrr"
	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

// ShoutrrrNotifier delivers decision alerts to chat and push services addressed by shoutrrr URLs
type ShoutrrrNotifier struct {
	urls   []string
	anon   *Anonymizer
	logger *zap.Logger
	send   func(url, message string) error
}

// NewShoutrrrNotifier validates urls and creates a notifier
func NewShoutrrrNotifier(urls []string, anon *Anonymizer, logger *zap.Logger) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, &core.ConfigError{Key: "notify.urls", Reason: "at least one URL is required"}
	}
	if _, err := shoutrrr.CreateSender(urls...); err != nil {
		return nil, &core.ConfigError{Key: "notify.urls", Reason: err.Error()}
	}
	if anon == nil {
		anon = NewAnonymizer("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShoutrrrNotifier{urls: urls, anon: anon, logger: logger, send: shoutrrr.Send}, nil
}

// Notify sends the event to every configured URL
func (n *ShoutrrrNotifier) Notify(ctx context.Context, event core.DecisionEvent) error {
	title, body := FormatEvent(event, n.anon)
	msg := fmt.Sprintf("%s\n\n%s", title, body)

	done := make(chan error, 1)
	go func() {
		var errs []error
		for _, url := range n.urls {
			if err := n.send(url, msg); err != nil {
				errs = append(errs, err)
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
		n.logger.Debug("Notification sent", zap.String("decision_id", event.DecisionID), zap.Int("targets", len(n.urls)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

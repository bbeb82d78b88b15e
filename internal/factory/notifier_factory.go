package factory

import (
	"github.com/mikey/submission-guard/internal/adapters/notify"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

// NotifierFactory creates the operator notification channel
type NotifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewNotifierFactory creates a new notifier factory
func NewNotifierFactory(cfg *config.Config, logger *zap.Logger) *NotifierFactory {
	return &NotifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNotifier returns nil when notifications are disabled. Shoutrrr URLs and
// the SMTP relay may both be configured, in which case every event goes to both.
func (f *NotifierFactory) CreateNotifier() (core.Notifier, error) {
	notifyCfg := f.cfg.GetNotify()
	if !notifyCfg.Enabled {
		return nil, nil
	}

	anon := notify.NewAnonymizer(notifyCfg.AnonymizeKey)
	var channels notify.Multi

	if len(notifyCfg.URLs) > 0 {
		n, err := notify.NewShoutrrrNotifier(notifyCfg.URLs, anon, f.logger)
		if err != nil {
			return nil, err
		}
		channels = append(channels, n)
	}

	if notifyCfg.SMTP.Address != "" {
		n, err := notify.NewSMTPNotifier(
			notifyCfg.SMTP.Address,
			notifyCfg.SMTP.From,
			notifyCfg.SMTP.To,
			notifyCfg.SMTP.Timeout,
			anon,
			f.logger,
		)
		if err != nil {
			return nil, err
		}
		channels = append(channels, n)
	}

	switch len(channels) {
	case 0:
		return nil, &core.ConfigError{Key: "notify", Reason: "enabled without urls or smtp.address"}
	case 1:
		return channels[0], nil
	default:
		return channels, nil
	}
}

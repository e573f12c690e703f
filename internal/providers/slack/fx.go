package slack

import (
	"strings"

	"github.com/smallbiznis/tollgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewProvider),
)

// NewProvider returns a webhook-backed provider when a webhook URL is
// configured, otherwise a no-op.
func NewProvider(cfg config.Config, log *zap.Logger) Provider {
	url := strings.TrimSpace(cfg.SlackWebhookURL)
	if url == "" {
		log.Info("slack webhook not configured, notifications disabled")
		return &NoOpProvider{}
	}
	return NewWebhookProvider(url)
}

package slack

import (
	"github.com/tapkeeper/tapkeeper/internal/config"
	"go.uber.org/fx"
)

func Provide(cfg config.Config) Provider {
	return NewClient(cfg.Slack.BotToken, cfg.Slack.APIBase)
}

var Module = fx.Module("providers.slack",
	fx.Provide(Provide),
)

package mollie

import (
	"github.com/tapkeeper/tapkeeper/internal/config"
	"go.uber.org/fx"
)

func Provide(cfg config.Config) Provider {
	return NewClient(cfg.Mollie.APIKey, cfg.Mollie.APIBase)
}

var Module = fx.Module("providers.mollie",
	fx.Provide(Provide),
)

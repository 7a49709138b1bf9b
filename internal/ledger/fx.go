package ledger

import (
	"github.com/tapkeeper/tapkeeper/internal/ledger/repository"
	"github.com/tapkeeper/tapkeeper/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

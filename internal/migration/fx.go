package migration

import (
	accountdomain "github.com/tapkeeper/tapkeeper/internal/account/domain"
	"github.com/tapkeeper/tapkeeper/internal/config"
	itemdomain "github.com/tapkeeper/tapkeeper/internal/item/domain"
	ledgerdomain "github.com/tapkeeper/tapkeeper/internal/ledger/domain"
	"github.com/tapkeeper/tapkeeper/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite/mysql run AutoMigrate; the embedded SQL targets postgres.
			if err := conn.AutoMigrate(
				&accountdomain.Account{},
				&ledgerdomain.Transaction{},
				&itemdomain.Item{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureCatalog(conn)
	}),
)

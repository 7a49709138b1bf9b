package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	itemdomain "github.com/tapkeeper/tapkeeper/internal/item/domain"
	"gorm.io/gorm"
)

var defaultItems = []struct {
	Name  string
	Price int64
}{
	{Name: "Beer", Price: 100},
	{Name: "Soda", Price: 50},
	{Name: "Water", Price: 0},
}

// EnsureCatalog seeds the starter drinks catalog when the items table is
// empty, so a fresh install is usable without manual setup.
func EnsureCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&itemdomain.Item{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		for _, it := range defaultItems {
			item := itemdomain.Item{
				ID:    node.Generate(),
				Name:  it.Name,
				Price: it.Price,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

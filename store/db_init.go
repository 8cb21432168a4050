package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// InitDatabase 自动迁移全部表
// 支持: PostgreSQL, MySQL, SQLite
func InitDatabase(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// SeedPersonas 在人格表为空时写入种子人格，已有数据时不做任何事
func (s *Store) SeedPersonas(ctx context.Context, seeds []Persona) (int, error) {
	count, err := s.CountPersonas(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	err = s.Transaction(ctx, func(tx *Store) error {
		for i := range seeds {
			p := seeds[i]
			if err := tx.conn(ctx).Create(&p).Error; err != nil {
				return fmt.Errorf("failed to seed persona %s: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(seeds), nil
}

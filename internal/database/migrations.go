package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/content"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const migrationSeedDefaultTags = "2026-10-01_seed_default_tags"

// defaultTagNames are available on a fresh site so the first article can be filed.
var defaultTagNames = []string{"general", "notes", "announcements"}

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

// applyMigrations runs each named data migration once, inside its own transaction.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedDefaultTags, apply: seedDefaultTags},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func seedDefaultTags(db *gorm.DB) error {
	tags := make([]content.Tag, 0, len(defaultTagNames))
	for _, name := range defaultTagNames {
		tags = append(tags, content.Tag{Name: name})
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&tags).Error
}

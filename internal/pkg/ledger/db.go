package ledger

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/config"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and migrates the ledger tables.
func Open(cfg config.Database) (*gorm.DB, error) {
	var dialector gorm.Dialector
	maxOpen := cfg.MaxOpenConns
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Url)
	case "sqlite":
		dialector = sqlite.Open(cfg.Url)
		// a single connection keeps in-memory databases alive and writes serialized
		maxOpen = 1
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	sqlDb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDb.SetMaxOpenConns(maxOpen)
	if cfg.Driver == "postgres" {
		sqlDb.SetConnMaxLifetime(time.Minute * 10)
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	log.Info().Str("driver", cfg.Driver).Msg("Ledger database ready")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Game{}, &model.Player{}, &model.SettlementRecord{}); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

package app

import (
	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Sugar().Panicw("failed to connect database", "err", err)
	}
	log.Info("Database started")

	log.Info("Starting migrations")
	db.AutoMigrate(
		&models.Subscriber{},
		&models.Verification{},
		&models.TriggerCounter{},
		&models.DispatchLock{},
	)
	return db
}

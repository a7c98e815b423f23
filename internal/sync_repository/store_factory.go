package sync_repository

import (
	"fmt"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/platform/db"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/sirupsen/logrus"
)

func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.StoreImpl {
	case "postgres":
		database, err := db.InitializeDatabaseConnection(cfg)
		if err != nil {
			return nil, err
		}
		return NewSqlStore(cfg, database), nil
	case "memory":
		logger.Log.Warn("Using the in-memory store; nothing will survive a restart")
		return NewMemoryStore(), nil
	default:
		logger.Log.WithFields(logrus.Fields{"store_impl": cfg.StoreImpl}).Error("Invalid store impl requested")
		return nil, fmt.Errorf("invalid store impl requested: %s", cfg.StoreImpl)
	}
}

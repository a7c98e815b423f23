package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"

	_ "github.com/lib/pq"
)

func initializePostgresConnection(cfg *config.Config) (*sql.DB, error) {
	psqlConnectionInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s TimeZone=UTC",
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseUser,
		cfg.DatabasePassword,
		cfg.DatabaseName)

	sslSettings, err := buildPostgresSslConfigString(cfg)
	if err != nil {
		return nil, err
	}

	psqlConnectionInfo += " " + sslSettings

	return sql.Open("postgres", psqlConnectionInfo)
}

func buildPostgresSslConfigString(cfg *config.Config) (string, error) {
	switch cfg.DatabaseSslMode {
	case "disable", "":
		return "sslmode=disable", nil
	case "require":
		return "sslmode=require", nil
	case "verify-full":
		return "sslmode=verify-full sslrootcert=" + cfg.DatabaseSslRootCert, nil
	default:
		return "", errors.New("Invalid SSL configuration for database connection: " + cfg.DatabaseSslMode)
	}
}

// InitializeDatabaseConnection opens the pool and verifies the server is reachable
func InitializeDatabaseConnection(cfg *config.Config) (*sql.DB, error) {

	if cfg.StoreImpl != "postgres" {
		return nil, errors.New("Invalid SQL database impl requested")
	}

	database, err := initializePostgresConnection(cfg)
	if err != nil {
		return nil, err
	}

	database.SetMaxOpenConns(cfg.DatabaseMaxOpenConnections)
	database.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DatabaseQueryTimeout)
	defer cancel()

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

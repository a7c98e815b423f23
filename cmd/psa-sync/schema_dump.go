package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/platform/db"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
)

var dumpedTables = []string{"connections", "sync_runs", "identity_mappings", "organizations", "organization_match_reviews"}

func dumpSchema(ctx context.Context, out io.Writer) error {

	cfg := config.GetConfig()

	database, err := db.InitializeDatabaseConnection(cfg)
	if err != nil {
		logger.LogError("Unable to initialize database connection", err)
		return err
	}
	defer database.Close()

	for _, table := range dumpedTables {
		if err := printTableColumns(ctx, out, database, table); err != nil {
			return err
		}
	}

	return dumpSchemaMigrationsTable(ctx, out, database)
}

func printTableColumns(ctx context.Context, out io.Writer, database *sql.DB, table string) error {

	rows, err := database.QueryContext(ctx,
		`SELECT column_name, data_type, column_default, is_nullable
           FROM information_schema.columns
          WHERE table_name = $1
          ORDER BY ordinal_position`, table)
	if err != nil {
		return fmt.Errorf("unable to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	fmt.Fprintln(out, "-----------------")
	fmt.Fprintf(out, "%s table:\n", table)
	fmt.Fprintln(out, "-----------------")

	for rows.Next() {
		var columnName string
		var dataType string
		var defaultValueString sql.NullString
		var isNullable string

		if err := rows.Scan(&columnName, &dataType, &defaultValueString, &isNullable); err != nil {
			return err
		}

		defaultValue := "null"
		if defaultValueString.Valid {
			defaultValue = defaultValueString.String
		}

		fmt.Fprintf(out, "%s|%s|%s|%s\n", columnName, dataType, defaultValue, isNullable)
	}

	return rows.Err()
}

func dumpSchemaMigrationsTable(ctx context.Context, out io.Writer, database *sql.DB) error {

	rows, err := database.QueryContext(ctx, `SELECT version, dirty FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("unable to read schema_migrations: %w", err)
	}
	defer rows.Close()

	fmt.Fprintln(out, "-----------------")
	fmt.Fprintln(out, "schema_migrations table:")
	fmt.Fprintln(out, "-----------------")

	for rows.Next() {
		var version int
		var dirty bool
		if err := rows.Scan(&version, &dirty); err != nil {
			return err
		}
		fmt.Fprintf(out, "version: %d dirty: %t\n", version, dirty)
	}

	return rows.Err()
}

package sync_repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type SqlStore struct {
	database     *sql.DB
	queryTimeout time.Duration
}

func NewSqlStore(cfg *config.Config, database *sql.DB) *SqlStore {
	return &SqlStore{
		database:     database,
		queryTimeout: cfg.DatabaseQueryTimeout,
	}
}

func (s *SqlStore) Close() error {
	return s.database.Close()
}

func (s *SqlStore) Ping(ctx context.Context) error {
	return s.database.PingContext(ctx)
}

func (s *SqlStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

const connectionColumns = `id, provider_type, base_url, encrypted_credentials, enabled_entity_types,
    sync_interval_seconds, last_sync_at, last_sync_status, import_organizations, org_name_prefix,
    fuzzy_match_threshold, enabled`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row rowScanner) (domain.Connection, error) {
	var conn domain.Connection
	var entityTypes []string
	var intervalSeconds int64
	var lastSyncAt sql.NullTime
	var lastSyncStatus sql.NullString

	err := row.Scan(&conn.ID, &conn.ProviderType, &conn.BaseURL, &conn.EncryptedCredentials, pq.Array(&entityTypes),
		&intervalSeconds, &lastSyncAt, &lastSyncStatus, &conn.ImportOrganizations, &conn.OrgNamePrefix,
		&conn.FuzzyMatchThreshold, &conn.Enabled)
	if err != nil {
		return conn, err
	}

	for _, e := range entityTypes {
		conn.EnabledEntityTypes = append(conn.EnabledEntityTypes, domain.EntityType(e))
	}
	conn.SyncInterval = time.Duration(intervalSeconds) * time.Second
	if lastSyncAt.Valid {
		t := lastSyncAt.Time.UTC()
		conn.LastSyncAt = &t
	}
	if lastSyncStatus.Valid {
		conn.LastSyncStatus = domain.SyncStatus(lastSyncStatus.String)
	}

	return conn, nil
}

func (s *SqlStore) GetConnection(ctx context.Context, id domain.ConnectionID) (domain.Connection, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlLookupConnectionDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	statement, err := s.database.PrepareContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = $1`)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("SQL Prepare failed")
		return domain.Connection{}, err
	}
	defer statement.Close()

	conn, err := scanConnection(statement.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Connection{}, domain.ErrNotFound
		}
		logger.Log.WithFields(logrus.Fields{"error": err, "connection_id": id}).Error("SQL query failed")
		return domain.Connection{}, err
	}

	return conn, nil
}

func (s *SqlStore) ListConnections(ctx context.Context) ([]domain.Connection, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlListConnectionsDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.database.QueryContext(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY id`)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("SQL query failed")
		return nil, err
	}
	defer rows.Close()

	var connections []domain.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Error("SQL scan failed")
			return nil, err
		}
		connections = append(connections, conn)
	}

	return connections, rows.Err()
}

func (s *SqlStore) SaveConnection(ctx context.Context, conn domain.Connection) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entityTypes := make([]string, 0, len(conn.EnabledEntityTypes))
	for _, e := range conn.EnabledEntityTypes {
		entityTypes = append(entityTypes, string(e))
	}

	var lastSyncStatus sql.NullString
	if conn.LastSyncStatus != "" {
		lastSyncStatus = sql.NullString{String: string(conn.LastSyncStatus), Valid: true}
	}

	_, err := s.database.ExecContext(ctx, `INSERT INTO connections (`+connectionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (id) DO UPDATE SET
            provider_type = EXCLUDED.provider_type,
            base_url = EXCLUDED.base_url,
            encrypted_credentials = EXCLUDED.encrypted_credentials,
            enabled_entity_types = EXCLUDED.enabled_entity_types,
            sync_interval_seconds = EXCLUDED.sync_interval_seconds,
            import_organizations = EXCLUDED.import_organizations,
            org_name_prefix = EXCLUDED.org_name_prefix,
            fuzzy_match_threshold = EXCLUDED.fuzzy_match_threshold,
            enabled = EXCLUDED.enabled,
            updated_at = now()`,
		conn.ID, string(conn.ProviderType), conn.BaseURL, conn.EncryptedCredentials, pq.Array(entityTypes),
		int64(conn.SyncInterval/time.Second), conn.LastSyncAt, lastSyncStatus, conn.ImportOrganizations,
		conn.OrgNamePrefix, conn.FuzzyMatchThreshold, conn.Enabled)

	return err
}

func (s *SqlStore) UpdateSyncState(ctx context.Context, id domain.ConnectionID, status domain.SyncStatus, lastSyncAt *time.Time) error {

	callDurationTimer := prometheus.NewTimer(metrics.sqlUpdateSyncStateDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.database.ExecContext(ctx, `UPDATE connections
        SET last_sync_status = $2, last_sync_at = COALESCE($3, last_sync_at), updated_at = now()
        WHERE id = $1`, id, string(status), lastSyncAt)
	if err != nil {
		return err
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (s *SqlStore) CreateRun(ctx context.Context, run *domain.SyncRun) error {

	callDurationTimer := prometheus.NewTimer(metrics.sqlRecordRunDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	counts, errorDetail, err := serializeRunDetail(run)
	if err != nil {
		return err
	}

	_, err = s.database.ExecContext(ctx, `INSERT INTO sync_runs
        (id, connection_id, trigger, started_at, finished_at, status, counts, error_detail)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.ConnectionID, string(run.Trigger), run.StartedAt, run.FinishedAt, string(run.Status), counts, errorDetail)

	return err
}

func (s *SqlStore) FinishRun(ctx context.Context, run *domain.SyncRun) error {

	callDurationTimer := prometheus.NewTimer(metrics.sqlRecordRunDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	counts, errorDetail, err := serializeRunDetail(run)
	if err != nil {
		return err
	}

	result, err := s.database.ExecContext(ctx, `UPDATE sync_runs
        SET finished_at = $2, status = $3, counts = $4, error_detail = $5
        WHERE id = $1`, run.ID, run.FinishedAt, string(run.Status), counts, errorDetail)
	if err != nil {
		return err
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

const runColumns = `id, connection_id, trigger, started_at, finished_at, status, counts, error_detail`

func scanRun(row rowScanner) (domain.SyncRun, error) {
	var run domain.SyncRun
	var finishedAt sql.NullTime
	var counts, errorDetail []byte

	err := row.Scan(&run.ID, &run.ConnectionID, &run.Trigger, &run.StartedAt, &finishedAt, &run.Status, &counts, &errorDetail)
	if err != nil {
		return run, err
	}

	run.StartedAt = run.StartedAt.UTC()
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		run.FinishedAt = &t
	}

	run.Counts = deserializeCounts(counts)
	run.Errors = deserializeErrorDetail(errorDetail)

	return run, nil
}

func (s *SqlStore) GetRun(ctx context.Context, id uuid.UUID) (*domain.SyncRun, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlLookupRunsDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	run, err := scanRun(s.database.QueryRowContext(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return &run, nil
}

func (s *SqlStore) ListRuns(ctx context.Context, connID domain.ConnectionID, offset int, limit int) ([]domain.SyncRun, int, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlLookupRunsDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var total int
	err := s.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_runs WHERE connection_id = $1`, connID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.database.QueryContext(ctx, `SELECT `+runColumns+` FROM sync_runs
        WHERE connection_id = $1 ORDER BY started_at DESC OFFSET $2 LIMIT $3`, connID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []domain.SyncRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}

	return runs, total, rows.Err()
}

func serializeRunDetail(run *domain.SyncRun) ([]byte, []byte, error) {
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return nil, nil, err
	}

	errorDetail := []byte("[]")
	if len(run.Errors) > 0 {
		if errorDetail, err = json.Marshal(run.Errors); err != nil {
			return nil, nil, err
		}
	}

	return counts, errorDetail, nil
}

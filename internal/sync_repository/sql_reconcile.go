package sync_repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/reconcile"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// InTx runs fn inside one database transaction, committing when fn returns
// nil and rolling back otherwise.
func (s *SqlStore) InTx(ctx context.Context, fn func(context.Context, reconcile.Tx) error) error {
	tx, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *SqlStore) Lookup(ctx context.Context, connID domain.ConnectionID, entityType domain.EntityType, externalID string) (uuid.UUID, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return lookupMapping(ctx, s.database, connID, entityType, externalID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func lookupMapping(ctx context.Context, q queryRower, connID domain.ConnectionID, entityType domain.EntityType, externalID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRowContext(ctx, `SELECT internal_id FROM identity_mappings
        WHERE connection_id = $1 AND entity_type = $2 AND external_id = $3`,
		connID, string(entityType), externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, domain.ErrNotFound
	}
	return id, err
}

type sqlTx struct {
	tx *sql.Tx
}

// ClaimMapping relies on xmax being zero only for freshly inserted rows to
// tell an insert from a conflict update in a single round trip.
func (t *sqlTx) ClaimMapping(ctx context.Context, connID domain.ConnectionID, entityType domain.EntityType, externalID string, candidateID uuid.UUID, seenAt time.Time) (domain.IdentityMapping, bool, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlClaimMappingDuration)
	defer callDurationTimer.ObserveDuration()

	mapping := domain.IdentityMapping{ConnectionID: connID, EntityType: entityType, ExternalID: externalID, LastSeenAt: seenAt}
	var inserted bool

	err := t.tx.QueryRowContext(ctx, `INSERT INTO identity_mappings
            (internal_id, connection_id, entity_type, external_id, content_hash, first_seen_at, last_seen_at)
        VALUES ($1, $2, $3, $4, '', $5, $5)
        ON CONFLICT (connection_id, entity_type, external_id)
            DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
        RETURNING internal_id, content_hash, first_seen_at, (xmax = 0) AS inserted`,
		candidateID, connID, string(entityType), externalID, seenAt).
		Scan(&mapping.InternalID, &mapping.ContentHash, &mapping.FirstSeenAt, &inserted)
	if err != nil {
		return domain.IdentityMapping{}, false, err
	}

	return mapping, inserted, nil
}

func (t *sqlTx) SetContentHash(ctx context.Context, internalID uuid.UUID, hash string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE identity_mappings SET content_hash = $2 WHERE internal_id = $1`, internalID, hash)
	return err
}

func (t *sqlTx) Lookup(ctx context.Context, connID domain.ConnectionID, entityType domain.EntityType, externalID string) (uuid.UUID, error) {
	return lookupMapping(ctx, t.tx, connID, entityType, externalID)
}

// SaveRecord upserts the canonical row.  organization_id on companies is
// owned by the organization importer and never overwritten here.
func (t *sqlTx) SaveRecord(ctx context.Context, internalID uuid.UUID, connID domain.ConnectionID, rec domain.CanonicalRecord, refs domain.RecordReferences) error {
	payload := []byte(rec.GetRawPayload())

	var err error
	switch r := rec.(type) {
	case *domain.CanonicalCompany:
		_, err = t.tx.ExecContext(ctx, `INSERT INTO companies
                (id, connection_id, external_id, name, phone, website, status, raw_payload, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
            ON CONFLICT (id) DO UPDATE SET
                name = EXCLUDED.name, phone = EXCLUDED.phone, website = EXCLUDED.website,
                status = EXCLUDED.status, raw_payload = EXCLUDED.raw_payload, updated_at = now()`,
			internalID, connID, r.ExternalID, r.Name, r.Phone, r.Website, string(r.Status), payload)

	case *domain.CanonicalContact:
		_, err = t.tx.ExecContext(ctx, `INSERT INTO contacts
                (id, connection_id, external_id, company_id, company_external_id, first_name, last_name,
                 email, phone, title, status, raw_payload, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
            ON CONFLICT (id) DO UPDATE SET
                company_id = EXCLUDED.company_id, company_external_id = EXCLUDED.company_external_id,
                first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, email = EXCLUDED.email,
                phone = EXCLUDED.phone, title = EXCLUDED.title, status = EXCLUDED.status,
                raw_payload = EXCLUDED.raw_payload, updated_at = now()`,
			internalID, connID, r.ExternalID, refs.CompanyID, r.CompanyExternalID, r.FirstName, r.LastName,
			r.Email, r.Phone, r.Title, string(r.Status), payload)

	case *domain.CanonicalTicket:
		_, err = t.tx.ExecContext(ctx, `INSERT INTO tickets
                (id, connection_id, external_id, company_id, contact_id, company_external_id, contact_external_id,
                 subject, status, priority, opened_at, closed_at, raw_payload, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
            ON CONFLICT (id) DO UPDATE SET
                company_id = EXCLUDED.company_id, contact_id = EXCLUDED.contact_id,
                company_external_id = EXCLUDED.company_external_id, contact_external_id = EXCLUDED.contact_external_id,
                subject = EXCLUDED.subject, status = EXCLUDED.status, priority = EXCLUDED.priority,
                opened_at = EXCLUDED.opened_at, closed_at = EXCLUDED.closed_at,
                raw_payload = EXCLUDED.raw_payload, updated_at = now()`,
			internalID, connID, r.ExternalID, refs.CompanyID, refs.ContactID, r.CompanyExternalID, r.ContactExternalID,
			r.Subject, string(r.Status), string(r.Priority), r.OpenedAt, r.ClosedAt, payload)

	case *domain.CanonicalDevice:
		_, err = t.tx.ExecContext(ctx, `INSERT INTO devices
                (id, connection_id, external_id, company_id, company_external_id, name, device_type,
                 serial_number, operating_system, status, raw_payload, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
            ON CONFLICT (id) DO UPDATE SET
                company_id = EXCLUDED.company_id, company_external_id = EXCLUDED.company_external_id,
                name = EXCLUDED.name, device_type = EXCLUDED.device_type, serial_number = EXCLUDED.serial_number,
                operating_system = EXCLUDED.operating_system, status = EXCLUDED.status,
                raw_payload = EXCLUDED.raw_payload, updated_at = now()`,
			internalID, connID, r.ExternalID, refs.CompanyID, r.CompanyExternalID, r.Name, r.DeviceType,
			r.SerialNumber, r.OperatingSystem, string(r.Status), payload)

	default:
		return fmt.Errorf("unsupported canonical record %T", rec)
	}

	return err
}

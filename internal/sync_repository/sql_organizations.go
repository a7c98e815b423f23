package sync_repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/msp-docs/psa-sync/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
)

func (s *SqlStore) CompaniesWithoutOrganization(ctx context.Context, connID domain.ConnectionID, companyIDs []uuid.UUID) ([]domain.CompanyRef, error) {
	if len(companyIDs) == 0 {
		return nil, nil
	}

	callDurationTimer := prometheus.NewTimer(metrics.sqlOrganizationQueryDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids := make([]string, 0, len(companyIDs))
	for _, id := range companyIDs {
		ids = append(ids, id.String())
	}

	rows, err := s.database.QueryContext(ctx, `SELECT id, external_id, name FROM companies
        WHERE connection_id = $1 AND organization_id IS NULL AND id = ANY($2::uuid[])
        ORDER BY name, external_id`, connID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []domain.CompanyRef
	for rows.Next() {
		var c domain.CompanyRef
		if err := rows.Scan(&c.InternalID, &c.ExternalID, &c.Name); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}

	return companies, rows.Err()
}

func (s *SqlStore) FindOrganizationByExternalRef(ctx context.Context, externalRef string) (domain.Organization, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlOrganizationQueryDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var org domain.Organization
	err := s.database.QueryRowContext(ctx, `SELECT id, name, external_ref FROM organizations WHERE external_ref = $1`, externalRef).
		Scan(&org.ID, &org.Name, &org.ExternalRef)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Organization{}, domain.ErrNotFound
	}

	return org, err
}

func (s *SqlStore) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlOrganizationQueryDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.database.QueryContext(ctx, `SELECT id, name, COALESCE(external_ref, '') FROM organizations ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var organizations []domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.ExternalRef); err != nil {
			return nil, err
		}
		organizations = append(organizations, org)
	}

	return organizations, rows.Err()
}

// CreateOrganization leans on the unique external_ref: a concurrent import of
// the same company resolves to the row that won.
func (s *SqlStore) CreateOrganization(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}

	var externalRef sql.NullString
	if org.ExternalRef != "" {
		externalRef = sql.NullString{String: org.ExternalRef, Valid: true}
	}

	var stored domain.Organization
	var storedRef sql.NullString
	err := s.database.QueryRowContext(ctx, `INSERT INTO organizations (id, name, external_ref)
        VALUES ($1, $2, $3)
        ON CONFLICT (external_ref) DO UPDATE SET external_ref = organizations.external_ref
        RETURNING id, name, external_ref`, org.ID, org.Name, externalRef).
		Scan(&stored.ID, &stored.Name, &storedRef)
	if err != nil {
		return domain.Organization{}, err
	}
	stored.ExternalRef = storedRef.String

	return stored, nil
}

func (s *SqlStore) LinkCompany(ctx context.Context, companyID uuid.UUID, organizationID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.database.ExecContext(ctx, `UPDATE companies SET organization_id = $2 WHERE id = $1`, companyID, organizationID)
	if err != nil {
		return err
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SqlStore) SaveMatchReview(ctx context.Context, review domain.OrganizationMatchReview) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	candidates, err := json.Marshal(review.Candidates)
	if err != nil {
		return err
	}

	_, err = s.database.ExecContext(ctx, `INSERT INTO organization_match_reviews
            (id, connection_id, company_external_id, company_name, candidates)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (connection_id, company_external_id) DO UPDATE SET
            company_name = EXCLUDED.company_name, candidates = EXCLUDED.candidates, created_at = now()`,
		uuid.New(), review.ConnectionID, review.CompanyExternalID, review.CompanyName, candidates)

	return err
}

// ListMatchReviews returns the open review items of one connection
func (s *SqlStore) ListMatchReviews(ctx context.Context, connID domain.ConnectionID) ([]domain.OrganizationMatchReview, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.database.QueryContext(ctx, `SELECT company_external_id, company_name, candidates
        FROM organization_match_reviews WHERE connection_id = $1 ORDER BY company_name`, connID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []domain.OrganizationMatchReview
	for rows.Next() {
		review := domain.OrganizationMatchReview{ConnectionID: connID}
		var candidates []byte
		if err := rows.Scan(&review.CompanyExternalID, &review.CompanyName, &candidates); err != nil {
			return nil, err
		}
		review.Candidates = deserializeCandidates(candidates)
		reviews = append(reviews, review)
	}

	return reviews, rows.Err()
}

package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
)

type Outcome string

const (
	Created Outcome = "created"
	Updated Outcome = "updated"
	Skipped Outcome = "skipped"
)

// Store is the persistence the reconciler needs.  Implementations must run
// the function passed to InTx in a single transaction.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Lookup(ctx context.Context, connID domain.ConnectionID, entityType domain.EntityType, externalID string) (uuid.UUID, error)
}

type Tx interface {
	// ClaimMapping atomically inserts the mapping or, when it already exists,
	// refreshes last_seen_at.  inserted reports which of the two happened.
	ClaimMapping(ctx context.Context, connID domain.ConnectionID, entityType domain.EntityType, externalID string, candidateID uuid.UUID, seenAt time.Time) (mapping domain.IdentityMapping, inserted bool, err error)
	SaveRecord(ctx context.Context, internalID uuid.UUID, connID domain.ConnectionID, rec domain.CanonicalRecord, refs domain.RecordReferences) error
	SetContentHash(ctx context.Context, internalID uuid.UUID, hash string) error
	Lookup(ctx context.Context, connID domain.ConnectionID, entityType domain.EntityType, externalID string) (uuid.UUID, error)
}

type Reconciler struct {
	store Store
}

func New(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile writes one canonical record.  New external ids get an internal
// id and a record; known ones are skipped when the content hash is
// unchanged and updated otherwise.  References are resolved before the hash
// is taken so a record first seen before its company is relinked later.
func (r *Reconciler) Reconcile(ctx context.Context, connID domain.ConnectionID, rec domain.CanonicalRecord, seenAt time.Time) (Outcome, uuid.UUID, error) {

	callDurationTimer := prometheus.NewTimer(metrics.reconcileDuration.With(prometheus.Labels{"entity_type": string(rec.EntityType())}))
	defer callDurationTimer.ObserveDuration()

	var outcome Outcome
	var internalID uuid.UUID

	err := r.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		mapping, inserted, err := tx.ClaimMapping(ctx, connID, rec.EntityType(), rec.GetExternalID(), uuid.New(), seenAt)
		if err != nil {
			return err
		}
		internalID = mapping.InternalID

		refs, err := resolveReferences(ctx, tx, connID, rec)
		if err != nil {
			return err
		}

		hash := ContentHash(rec, refs)
		if !inserted && mapping.ContentHash == hash {
			outcome = Skipped
			return nil
		}

		if err := tx.SaveRecord(ctx, mapping.InternalID, connID, rec, refs); err != nil {
			return err
		}

		if err := tx.SetContentHash(ctx, mapping.InternalID, hash); err != nil {
			return err
		}

		outcome = Updated
		if inserted {
			outcome = Created
		}
		return nil
	})
	if err != nil {
		err = classify(rec, err)
		metrics.reconcileOutcomeCounter.With(prometheus.Labels{"entity_type": string(rec.EntityType()), "outcome": "errored"}).Inc()
		return "", uuid.Nil, err
	}

	metrics.reconcileOutcomeCounter.With(prometheus.Labels{"entity_type": string(rec.EntityType()), "outcome": string(outcome)}).Inc()

	return outcome, internalID, nil
}

// Resolve returns the internal id for an external id, or domain.ErrNotFound
func (r *Reconciler) Resolve(ctx context.Context, connID domain.ConnectionID, entityType domain.EntityType, externalID string) (uuid.UUID, error) {
	return r.store.Lookup(ctx, connID, entityType, externalID)
}

func resolveReferences(ctx context.Context, tx Tx, connID domain.ConnectionID, rec domain.CanonicalRecord) (domain.RecordReferences, error) {
	var refs domain.RecordReferences
	var companyExternalID, contactExternalID string

	switch r := rec.(type) {
	case *domain.CanonicalContact:
		companyExternalID = r.CompanyExternalID
	case *domain.CanonicalTicket:
		companyExternalID = r.CompanyExternalID
		contactExternalID = r.ContactExternalID
	case *domain.CanonicalDevice:
		companyExternalID = r.CompanyExternalID
	}

	var err error
	if refs.CompanyID, err = lookupOptional(ctx, tx, connID, domain.EntityCompany, companyExternalID); err != nil {
		return refs, err
	}
	if refs.ContactID, err = lookupOptional(ctx, tx, connID, domain.EntityContact, contactExternalID); err != nil {
		return refs, err
	}
	return refs, nil
}

// lookupOptional resolves a reference that may legitimately be absent, for
// example a contact synced before its company.
func lookupOptional(ctx context.Context, tx Tx, connID domain.ConnectionID, entityType domain.EntityType, externalID string) (*uuid.UUID, error) {
	if externalID == "" {
		return nil, nil
	}

	id, err := tx.Lookup(ctx, connID, entityType, externalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// classify turns constraint violations and data exceptions, such as a NUL
// escape in a text column, into a ReconciliationError so the caller can skip
// the record and carry on.
func classify(rec domain.CanonicalRecord, err error) error {
	var reconciliationErr *domain.ReconciliationError
	if errors.As(err, &reconciliationErr) {
		if reconciliationErr.EntityType == "" {
			reconciliationErr.EntityType = rec.EntityType()
		}
		if reconciliationErr.ExternalID == "" {
			reconciliationErr.ExternalID = rec.GetExternalID()
		}
		return reconciliationErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		if pgerrcode.IsIntegrityConstraintViolation(code) || pgerrcode.IsDataException(code) {
			return &domain.ReconciliationError{
				EntityType: rec.EntityType(),
				ExternalID: rec.GetExternalID(),
				Constraint: pqErr.Constraint,
				Err:        err,
			}
		}
	}

	return err
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/events"
	"github.com/msp-docs/psa-sync/internal/normalizer"
	"github.com/msp-docs/psa-sync/internal/orgimport"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
	"github.com/msp-docs/psa-sync/internal/provider"
	"github.com/msp-docs/psa-sync/internal/reconcile"
	"github.com/msp-docs/psa-sync/internal/sync_repository"
	"github.com/msp-docs/psa-sync/internal/vault"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNotDue is returned for unforced triggers of a connection whose sync
// interval has not elapsed.
var ErrNotDue = errors.New("connection is not due for a sync")

const bookkeepingTimeout = 30 * time.Second

type TriggerRequest struct {
	ConnectionID domain.ConnectionID
	Force        bool
	Source       domain.TriggerSource
}

// CredentialSource hands out decrypted credentials for the duration of fn
type CredentialSource interface {
	WithCredentials(ctx context.Context, conn domain.Connection, fn func(*vault.Credentials) error) error
}

type ClientFactory func(conn domain.Connection, creds *vault.Credentials, opts provider.Options) (provider.ProviderClient, error)

type OrganizationImporter interface {
	Import(ctx context.Context, conn domain.Connection, companyIDs []uuid.UUID) (orgimport.Result, error)
}

type Dependencies struct {
	Store       sync_repository.Store
	Credentials CredentialSource
	Recorder    events.RunRecorder
	Importer    OrganizationImporter
	NewClient   ClientFactory
	Options     provider.Options
}

type Orchestrator struct {
	store             sync_repository.Store
	credentials       CredentialSource
	recorder          events.RunRecorder
	importer          OrganizationImporter
	reconciler        *reconcile.Reconciler
	newClient         ClientFactory
	options           provider.Options
	validate          *validator.Validate
	runBudget         time.Duration
	entityConcurrency int
	now               func() time.Time
}

func New(cfg *config.Config, deps Dependencies) *Orchestrator {
	o := &Orchestrator{
		store:             deps.Store,
		credentials:       deps.Credentials,
		recorder:          deps.Recorder,
		importer:          deps.Importer,
		reconciler:        reconcile.New(deps.Store),
		newClient:         deps.NewClient,
		options:           deps.Options,
		validate:          validator.New(),
		runBudget:         cfg.SyncRunBudget,
		entityConcurrency: cfg.SyncEntityConcurrency,
		now:               func() time.Time { return time.Now().UTC() },
	}

	if o.newClient == nil {
		o.newClient = provider.New
	}
	if o.recorder == nil {
		o.recorder = &events.FakeRunRecorder{}
	}
	if o.importer == nil {
		o.importer = orgimport.New(deps.Store, cfg.DefaultFuzzyMatchThreshold)
	}
	if o.entityConcurrency <= 0 {
		o.entityConcurrency = len(domain.EntityTypes)
	}

	return o
}

// Trigger runs one sync of a connection and returns the finished run.  When
// another run of the same connection holds the lock it returns (nil, nil).
// Failed runs are reported through the returned run's status; an error means
// no run could be started or recorded.
func (o *Orchestrator) Trigger(ctx context.Context, req TriggerRequest) (*domain.SyncRun, error) {

	log := logger.Log.WithFields(logrus.Fields{"connection_id": req.ConnectionID.String(), "trigger": req.Source})

	conn, err := o.store.GetConnection(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}

	if err := o.checkRunnable(conn, req); err != nil {
		return nil, err
	}

	release, acquired, err := o.store.TryLock(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("unable to take the connection lock: %w", err)
	}
	if !acquired {
		metrics.runSkippedCounter.With(prometheus.Labels{"reason": "already_running"}).Inc()
		log.Debug("Sync already running for connection; skipping trigger")
		return nil, nil
	}
	defer release()

	// The previous holder may have just finished a run
	conn, err = o.store.GetConnection(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if err := o.checkRunnable(conn, req); err != nil {
		return nil, err
	}

	if err := o.validate.Struct(conn); err != nil {
		log.WithFields(logrus.Fields{"error": err}).Warn("Connection failed validation")
		return o.failBeforeRun(ctx, conn, req.Source, fmt.Errorf("invalid connection: %w", err))
	}

	return o.execute(ctx, conn, req.Source)
}

func (o *Orchestrator) checkRunnable(conn domain.Connection, req TriggerRequest) error {
	if !conn.Enabled {
		metrics.runSkippedCounter.With(prometheus.Labels{"reason": "disabled"}).Inc()
		return domain.ErrConnectionDisabled
	}
	if !req.Force && !conn.Due(o.now()) {
		metrics.runSkippedCounter.With(prometheus.Labels{"reason": "not_due"}).Inc()
		return ErrNotDue
	}
	return nil
}

// runState collects results from the entity type goroutines
type runState struct {
	mu         sync.Mutex
	run        *domain.SyncRun
	failed     bool
	internal   error
	companyIDs []uuid.UUID
}

func (s *runState) recordEntity(entityType domain.EntityType, counts domain.EntityCounts, entityErrors []domain.EntityError, typeFailed bool, companyIDs []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run.Counts[entityType] = counts
	s.run.Errors = append(s.run.Errors, entityErrors...)
	s.failed = s.failed || typeFailed
	s.companyIDs = append(s.companyIDs, companyIDs...)
}

func (s *runState) hasInternal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.internal != nil
}

func (s *runState) recordInternal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.internal == nil {
		s.internal = err
	}
}

func (o *Orchestrator) execute(ctx context.Context, conn domain.Connection, source domain.TriggerSource) (*domain.SyncRun, error) {

	startedAt := o.now()
	run := domain.NewSyncRun(conn.ID, source, startedAt)

	log := logger.ForConnection(conn.ID.String(), conn.ProviderType.String()).WithFields(logrus.Fields{"run_id": run.ID.String()})

	metrics.activeRunsGauge.Inc()
	defer metrics.activeRunsGauge.Dec()

	callDurationTimer := prometheus.NewTimer(metrics.runDuration.With(prometheus.Labels{"provider": conn.ProviderType.String()}))
	defer callDurationTimer.ObserveDuration()

	if err := o.store.CreateRun(ctx, run); err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Unable to record the start of a sync run")
		o.updateSyncState(ctx, log, conn.ID, domain.SyncStatusFailed, nil)
		return nil, err
	}

	if err := o.store.UpdateSyncState(ctx, conn.ID, domain.SyncStatusRunning, nil); err != nil {
		log.WithFields(logrus.Fields{"error": err}).Warn("Unable to mark the connection as running")
	}

	log.Info("Sync run started")

	state := &runState{run: run}
	current := StateIdle

	var runCtx context.Context
	var cancel context.CancelFunc
	if o.runBudget > 0 {
		runCtx, cancel = context.WithTimeoutCause(ctx, o.runBudget, domain.ErrRunBudgetExceeded)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	current = transition(log, current, StateAuthenticating)

	err := o.credentials.WithCredentials(runCtx, conn, func(creds *vault.Credentials) error {
		client, err := o.newClient(conn, creds, o.options.ForConnection())
		if err != nil {
			return err
		}

		if err := client.Authenticate(runCtx); err != nil {
			return err
		}

		o.syncEntities(runCtx, conn, client, state, log)

		if conn.ImportOrganizations && conn.EntityEnabled(domain.EntityCompany) && !state.hasInternal() {
			current = transition(log, current, StateImportingOrganizations)
			o.importOrganizations(runCtx, conn, state, log)
		}

		return nil
	})

	finishedAt := o.now()
	run.FinishedAt = &finishedAt

	switch {
	case err != nil:
		log.WithFields(logrus.Fields{"error": err}).Error("Sync run failed while authenticating")
		run.Status = domain.SyncStatusFailed
		run.Errors = append(run.Errors, domain.EntityError{Kind: domain.ErrorKind(err), Message: err.Error()})
	case state.internal != nil:
		log.WithFields(logrus.Fields{"error": state.internal}).Error("Sync run failed with an internal error")
		run.Status = domain.SyncStatusFailed
		run.Errors = append(run.Errors, domain.EntityError{Kind: "internal_error", Message: state.internal.Error()})
	case state.failed:
		run.Status = domain.SyncStatusPartial
	default:
		run.Status = domain.SyncStatusSuccess
	}

	if run.Status == domain.SyncStatusFailed {
		transition(log, current, StateFailed)
	} else {
		transition(log, current, StateCompleted)
	}

	return o.finish(ctx, conn, run, log)
}

// failBeforeRun records a failed run for a connection that could not be
// started at all.
func (o *Orchestrator) failBeforeRun(ctx context.Context, conn domain.Connection, source domain.TriggerSource, cause error) (*domain.SyncRun, error) {
	log := logger.ForConnection(conn.ID.String(), conn.ProviderType.String())

	run := domain.NewSyncRun(conn.ID, source, o.now())
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	finishedAt := o.now()
	run.FinishedAt = &finishedAt
	run.Status = domain.SyncStatusFailed
	run.Errors = append(run.Errors, domain.EntityError{Kind: domain.ErrorKind(cause), Message: cause.Error()})

	return o.finish(ctx, conn, run, log)
}

func (o *Orchestrator) finish(ctx context.Context, conn domain.Connection, run *domain.SyncRun, log *logrus.Entry) (*domain.SyncRun, error) {

	// Bookkeeping outlives cancellation of the trigger
	bookkeepingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if err := o.store.FinishRun(bookkeepingCtx, run); err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Unable to record the end of a sync run")
		o.updateSyncState(bookkeepingCtx, log, conn.ID, domain.SyncStatusFailed, nil)
		return nil, err
	}

	var lastSyncAt *time.Time
	if run.Status != domain.SyncStatusFailed {
		startedAt := run.StartedAt
		lastSyncAt = &startedAt
	}
	o.updateSyncState(bookkeepingCtx, log, conn.ID, run.Status, lastSyncAt)

	metrics.runStatusCounter.With(prometheus.Labels{"provider": conn.ProviderType.String(), "status": string(run.Status)}).Inc()

	for _, entityErr := range run.Errors {
		log.WithFields(logrus.Fields{
			"entity_type": entityErr.EntityType,
			"kind":        entityErr.Kind,
			"external_id": entityErr.ExternalID,
			"error":       entityErr.Message,
		}).Warn("Sync error")
	}

	if err := o.recorder.RecordRun(bookkeepingCtx, conn, run); err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Unable to publish sync run audit events")
	}

	log.WithFields(logrus.Fields{"status": run.Status, "counts": run.Counts}).Info("Sync run finished")

	return run, nil
}

func (o *Orchestrator) updateSyncState(ctx context.Context, log *logrus.Entry, connID domain.ConnectionID, status domain.SyncStatus, lastSyncAt *time.Time) {
	if err := o.store.UpdateSyncState(ctx, connID, status, lastSyncAt); err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Unable to update the connection sync state")
	}
}

func (o *Orchestrator) syncEntities(ctx context.Context, conn domain.Connection, client provider.ProviderClient, state *runState, log *logrus.Entry) {

	norm, err := normalizer.New(conn.ProviderType)
	if err != nil {
		state.recordInternal(err)
		return
	}

	supported := client.SupportedEntityTypes()

	for _, phase := range entityPhases {
		if state.hasInternal() {
			return
		}

		var g errgroup.Group
		g.SetLimit(o.entityConcurrency)

		for _, entityType := range phase {
			if !conn.EntityEnabled(entityType) {
				continue
			}

			if !entitySupported(supported, entityType) {
				err := &domain.ProviderError{Provider: conn.ProviderType, Message: fmt.Sprintf("entity type %s is not supported", entityType)}
				o.recordEntityFailure(conn, state, entityType, domain.EntityCounts{}, nil, nil, err, log)
				continue
			}

			g.Go(func() error {
				o.syncEntityType(ctx, conn, client, norm, entityType, state, log)
				return nil
			})
		}

		g.Wait()
	}
}

// entityPhases orders entity types so references resolve on the first run.
// Types within a phase run concurrently.
var entityPhases = [][]domain.EntityType{
	{domain.EntityCompany},
	{domain.EntityContact, domain.EntityDevice},
	{domain.EntityTicket},
}

func entitySupported(supported []domain.EntityType, entityType domain.EntityType) bool {
	for _, s := range supported {
		if s == entityType {
			return true
		}
	}
	return false
}

// syncEntityType fetches, normalizes and reconciles every page of one entity
// type.  Record level failures are counted and the walk continues.  A store
// failure fails the run; anything else abandons the type.
func (o *Orchestrator) syncEntityType(ctx context.Context, conn domain.Connection, client provider.ProviderClient, norm *normalizer.Normalizer, entityType domain.EntityType, state *runState, log *logrus.Entry) {

	log = log.WithFields(logrus.Fields{"entity_type": entityType})

	var counts domain.EntityCounts
	var entityErrors []domain.EntityError
	var companyIDs []uuid.UUID

	defer func() {
		if r := recover(); r != nil {
			state.recordInternal(fmt.Errorf("panic while syncing %s: %v", entityType, r))
		}
	}()

	current := transition(log, StateAuthenticating, StateFetching)

	err := provider.Iterate(ctx, client, entityType, conn.LastSyncAt, o.stillEnabled(conn.ID), func(page provider.Page) error {
		current = transition(log, current, StateNormalizing)

		records := make([]domain.CanonicalRecord, 0, len(page.Records))
		for _, raw := range page.Records {
			rec, err := norm.Normalize(entityType, raw)
			if err != nil {
				counts.Errored++
				entityErrors = append(entityErrors, recordError(entityType, err))
				continue
			}
			records = append(records, rec)
		}

		current = transition(log, current, StateReconciling)

		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}

			outcome, internalID, err := o.reconciler.Reconcile(ctx, conn.ID, rec, o.now())
			if err != nil {
				var reconciliationErr *domain.ReconciliationError
				if errors.As(err, &reconciliationErr) {
					counts.Errored++
					entityErrors = append(entityErrors, recordError(entityType, err))
					continue
				}
				return &storeFailure{err: err}
			}

			switch outcome {
			case reconcile.Created:
				counts.Created++
			case reconcile.Updated:
				counts.Updated++
			case reconcile.Skipped:
				counts.Skipped++
			}

			if entityType == domain.EntityCompany && outcome != reconcile.Skipped {
				companyIDs = append(companyIDs, internalID)
			}
		}

		current = transition(log, current, StateFetching)
		return nil
	})

	var failure *storeFailure
	if errors.As(err, &failure) && ctx.Err() == nil {
		log.WithFields(logrus.Fields{"error": failure.err}).Error("Unable to reconcile records")
		state.recordEntity(entityType, counts, entityErrors, true, companyIDs)
		state.recordInternal(fmt.Errorf("reconciling %s: %w", entityType, failure.err))
		return
	}

	if err != nil {
		o.recordEntityFailure(conn, state, entityType, counts, entityErrors, companyIDs, runError(ctx, err), log)
		return
	}

	log.WithFields(logrus.Fields{"counts": counts}).Debug("Entity type synced")
	state.recordEntity(entityType, counts, entityErrors, false, companyIDs)
}

func (o *Orchestrator) recordEntityFailure(conn domain.Connection, state *runState, entityType domain.EntityType, counts domain.EntityCounts, entityErrors []domain.EntityError, companyIDs []uuid.UUID, err error, log *logrus.Entry) {
	kind := domain.ErrorKind(err)

	metrics.entityFailureCounter.With(prometheus.Labels{"provider": conn.ProviderType.String(), "entity_type": string(entityType), "kind": kind}).Inc()
	log.WithFields(logrus.Fields{"entity_type": entityType, "kind": kind, "error": err}).Warn("Entity type abandoned")

	entityErrors = append(entityErrors, domain.EntityError{EntityType: entityType, Kind: kind, Message: err.Error()})
	state.recordEntity(entityType, counts, entityErrors, true, companyIDs)
}

// storeFailure is a store error other than a rejected record.  It fails the
// run and leaves last_sync_at where it was.
type storeFailure struct {
	err error
}

func (f *storeFailure) Error() string { return f.err.Error() }

func (f *storeFailure) Unwrap() error { return f.err }

// runError reports budget expiry as such rather than as a bare deadline
func runError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}
	return err
}

func recordError(entityType domain.EntityType, err error) domain.EntityError {
	entityErr := domain.EntityError{EntityType: entityType, Kind: domain.ErrorKind(err), Message: err.Error()}

	var normalizationErr *domain.NormalizationError
	var reconciliationErr *domain.ReconciliationError
	switch {
	case errors.As(err, &normalizationErr):
		entityErr.ExternalID = normalizationErr.ExternalID
	case errors.As(err, &reconciliationErr):
		entityErr.ExternalID = reconciliationErr.ExternalID
	}

	return entityErr
}

// stillEnabled re-reads the connection between pages so disabling it stops
// the run at the next page boundary.
func (o *Orchestrator) stillEnabled(connID domain.ConnectionID) func(context.Context) error {
	return func(ctx context.Context) error {
		conn, err := o.store.GetConnection(ctx, connID)
		if err != nil {
			return err
		}
		if !conn.Enabled {
			return domain.ErrConnectionDisabled
		}
		return nil
	}
}

func (o *Orchestrator) importOrganizations(ctx context.Context, conn domain.Connection, state *runState, log *logrus.Entry) {
	state.mu.Lock()
	companyIDs := append([]uuid.UUID(nil), state.companyIDs...)
	state.mu.Unlock()

	if len(companyIDs) == 0 {
		return
	}

	result, err := o.importer.Import(ctx, conn, companyIDs)
	log.WithFields(logrus.Fields{"linked": result.Linked, "created": result.Created, "flagged": result.Flagged}).Info("Organizations imported")

	if err != nil {
		err = runError(ctx, err)
		state.mu.Lock()
		defer state.mu.Unlock()
		state.failed = true
		state.run.Errors = append(state.run.Errors, domain.EntityError{EntityType: domain.EntityOrganization, Kind: domain.ErrorKind(err), Message: err.Error()})
	}
}

package domain

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

type ConnectionID uuid.UUID

func (cid ConnectionID) String() string {
	return uuid.UUID(cid).String()
}

func ParseConnectionID(s string) (ConnectionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ConnectionID{}, err
	}
	return ConnectionID(id), nil
}

func (cid ConnectionID) MarshalText() ([]byte, error) {
	return uuid.UUID(cid).MarshalText()
}

func (cid *ConnectionID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(cid).UnmarshalText(data)
}

func (cid ConnectionID) Value() (driver.Value, error) {
	return uuid.UUID(cid).Value()
}

func (cid *ConnectionID) Scan(src interface{}) error {
	return (*uuid.UUID)(cid).Scan(src)
}

type ProviderType string

const (
	ProviderConnectWise  ProviderType = "connectwise"
	ProviderAutotask     ProviderType = "autotask"
	ProviderHaloPSA      ProviderType = "halopsa"
	ProviderKaseya       ProviderType = "kaseya"
	ProviderSyncro       ProviderType = "syncro"
	ProviderFreshservice ProviderType = "freshservice"
	ProviderZendesk      ProviderType = "zendesk"
	ProviderITFlow       ProviderType = "itflow"
	ProviderNinjaOne     ProviderType = "ninjaone"
	ProviderAtera        ProviderType = "atera"
)

func (p ProviderType) String() string {
	return string(p)
}

type EntityType string

const (
	EntityCompany EntityType = "company"
	EntityContact EntityType = "contact"
	EntityTicket  EntityType = "ticket"
	EntityDevice  EntityType = "device"
)

// EntityOrganization only labels organization import failures in a run's
// error detail; it is not a synced entity type.
const EntityOrganization EntityType = "organization"

// EntityTypes lists every canonical entity type in reconcile order.  Companies
// come first so organization import sees them when the run finishes.
var EntityTypes = []EntityType{EntityCompany, EntityContact, EntityTicket, EntityDevice}

func (e EntityType) String() string {
	return string(e)
}

func (e EntityType) Valid() bool {
	for _, t := range EntityTypes {
		if t == e {
			return true
		}
	}
	return false
}

type SyncStatus string

const (
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

type TriggerSource string

const (
	TriggerSchedule TriggerSource = "schedule"
	TriggerManual   TriggerSource = "manual"
	TriggerEvent    TriggerSource = "event"
)

// Connection is a configured link between the tenant and one vendor account.
// The CRUD application owns it; the sync engine only writes the last_sync fields.
type Connection struct {
	ID                   ConnectionID  `validate:"required"`
	ProviderType         ProviderType  `validate:"required"`
	BaseURL              string        `validate:"required,url"`
	EncryptedCredentials string        `validate:"required"`
	EnabledEntityTypes   []EntityType  `validate:"required,min=1,dive,oneof=company contact ticket device"`
	SyncInterval         time.Duration `validate:"gte=0"`
	LastSyncAt           *time.Time
	LastSyncStatus       SyncStatus
	ImportOrganizations  bool
	OrgNamePrefix        string `validate:"max=64"`
	FuzzyMatchThreshold  int    `validate:"omitempty,gte=1,lte=100"`
	Enabled              bool
}

// Due reports whether a scheduled trigger should start a run at now
func (c Connection) Due(now time.Time) bool {
	if c.LastSyncAt == nil {
		return true
	}
	return !c.LastSyncAt.Add(c.SyncInterval).After(now)
}

func (c Connection) EntityEnabled(e EntityType) bool {
	for _, t := range c.EnabledEntityTypes {
		if t == e {
			return true
		}
	}
	return false
}

type EntityCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// EntityError is one structured failure recorded against a run
type EntityError struct {
	EntityType EntityType `json:"entity_type"`
	Kind       string     `json:"kind"`
	ExternalID string     `json:"external_id,omitempty"`
	Message    string     `json:"message"`
}

type SyncRun struct {
	ID           uuid.UUID                   `json:"id"`
	ConnectionID ConnectionID                `json:"connection_id"`
	Trigger      TriggerSource               `json:"trigger"`
	StartedAt    time.Time                   `json:"started_at"`
	FinishedAt   *time.Time                  `json:"finished_at,omitempty"`
	Status       SyncStatus                  `json:"status"`
	Counts       map[EntityType]EntityCounts `json:"counts"`
	Errors       []EntityError               `json:"error_detail"`
}

func NewSyncRun(connID ConnectionID, trigger TriggerSource, startedAt time.Time) *SyncRun {
	return &SyncRun{
		ID:           uuid.New(),
		ConnectionID: connID,
		Trigger:      trigger,
		StartedAt:    startedAt,
		Status:       SyncStatusRunning,
		Counts:       make(map[EntityType]EntityCounts),
	}
}

type Organization struct {
	ID          uuid.UUID
	Name        string
	ExternalRef string
}

// OrganizationExternalRef is the stable key that ties an imported organization
// back to the vendor company that produced it.
func OrganizationExternalRef(provider ProviderType, connID ConnectionID, companyExternalID string) string {
	return string(provider) + ":" + connID.String() + ":" + companyExternalID
}

type MatchCandidate struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Score          int       `json:"score"`
}

// OrganizationMatchReview records a company whose best fuzzy matches tied
type OrganizationMatchReview struct {
	ConnectionID      ConnectionID
	CompanyExternalID string
	CompanyName       string
	Candidates        []MatchCandidate
}

// IdentityMapping ties a vendor record to its internal id.  ContentHash is
// empty until the canonical record has been written.
type IdentityMapping struct {
	InternalID   uuid.UUID
	ConnectionID ConnectionID
	EntityType   EntityType
	ExternalID   string
	ContentHash  string
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
}

// RecordReferences carries the internal ids of records a canonical record
// points at, when they are already known.
type RecordReferences struct {
	CompanyID *uuid.UUID
	ContactID *uuid.UUID
}

// CompanyRef is the slice of a stored company the organization importer needs
type CompanyRef struct {
	InternalID uuid.UUID
	ExternalID string
	Name       string
}

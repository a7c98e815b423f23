package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusWaiting    TicketStatus = "waiting"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

type RecordStatus string

const (
	RecordActive   RecordStatus = "active"
	RecordInactive RecordStatus = "inactive"
)

type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceUnknown DeviceStatus = "unknown"
)

// Values used when a vendor sends something outside the canonical vocabulary
const (
	FallbackTicketStatus   = TicketStatusNew
	FallbackTicketPriority = PriorityMedium
	FallbackRecordStatus   = RecordActive
	FallbackDeviceStatus   = DeviceUnknown
)

// CanonicalRecord is implemented by every normalized entity.  HashFields
// returns the change-relevant fields in a fixed order; raw payloads and
// vendor timestamps are never part of it.
type CanonicalRecord interface {
	EntityType() EntityType
	GetExternalID() string
	HashFields() []string
	GetRawPayload() json.RawMessage
}

type CanonicalCompany struct {
	ExternalID string
	Name       string
	Phone      string
	Website    string
	Status     RecordStatus
	RawPayload json.RawMessage
}

func (c *CanonicalCompany) EntityType() EntityType         { return EntityCompany }
func (c *CanonicalCompany) GetExternalID() string          { return c.ExternalID }
func (c *CanonicalCompany) GetRawPayload() json.RawMessage { return c.RawPayload }
func (c *CanonicalCompany) HashFields() []string {
	return []string{c.ExternalID, c.Name, c.Phone, c.Website, string(c.Status)}
}

type CanonicalContact struct {
	ExternalID        string
	CompanyExternalID string
	FirstName         string
	LastName          string
	Email             string
	Phone             string
	Title             string
	Status            RecordStatus
	RawPayload        json.RawMessage
}

func (c *CanonicalContact) EntityType() EntityType         { return EntityContact }
func (c *CanonicalContact) GetExternalID() string          { return c.ExternalID }
func (c *CanonicalContact) GetRawPayload() json.RawMessage { return c.RawPayload }
func (c *CanonicalContact) HashFields() []string {
	return []string{c.ExternalID, c.CompanyExternalID, c.FirstName, c.LastName, c.Email, c.Phone, c.Title, string(c.Status)}
}

type CanonicalTicket struct {
	ExternalID        string
	CompanyExternalID string
	ContactExternalID string
	Subject           string
	Status            TicketStatus
	Priority          TicketPriority
	OpenedAt          *time.Time
	ClosedAt          *time.Time
	RawPayload        json.RawMessage
}

func (t *CanonicalTicket) EntityType() EntityType         { return EntityTicket }
func (t *CanonicalTicket) GetExternalID() string          { return t.ExternalID }
func (t *CanonicalTicket) GetRawPayload() json.RawMessage { return t.RawPayload }

// OpenedAt and ClosedAt are business dates, not sync bookkeeping, so they
// participate in the hash.
func (t *CanonicalTicket) HashFields() []string {
	return []string{t.ExternalID, t.CompanyExternalID, t.ContactExternalID, t.Subject,
		string(t.Status), string(t.Priority), formatHashTime(t.OpenedAt), formatHashTime(t.ClosedAt)}
}

type CanonicalDevice struct {
	ExternalID        string
	CompanyExternalID string
	Name              string
	DeviceType        string
	SerialNumber      string
	OperatingSystem   string
	Status            DeviceStatus
	RawPayload        json.RawMessage
}

func (d *CanonicalDevice) EntityType() EntityType         { return EntityDevice }
func (d *CanonicalDevice) GetExternalID() string          { return d.ExternalID }
func (d *CanonicalDevice) GetRawPayload() json.RawMessage { return d.RawPayload }
func (d *CanonicalDevice) HashFields() []string {
	return []string{d.ExternalID, d.CompanyExternalID, d.Name, d.DeviceType, d.SerialNumber, d.OperatingSystem, string(d.Status)}
}

func formatHashTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UTC().Unix(), 10)
}

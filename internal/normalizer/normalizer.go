package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	errNotAnObject       = errors.New("record is not a json object")
	errMissingExternalID = errors.New("record has no external id")
)

// Normalizer maps raw records of one vendor onto the canonical model.  Values
// outside the canonical vocabulary fall back to a default and are logged;
// only undecodable records or records without an id are rejected.
type Normalizer struct {
	provider domain.ProviderType
	mapping  vendorMapping
}

var mappings = map[domain.ProviderType]vendorMapping{
	domain.ProviderConnectWise:  connectWiseMapping,
	domain.ProviderAutotask:     autotaskMapping,
	domain.ProviderHaloPSA:      haloPSAMapping,
	domain.ProviderKaseya:       kaseyaMapping,
	domain.ProviderSyncro:       syncroMapping,
	domain.ProviderFreshservice: freshserviceMapping,
	domain.ProviderZendesk:      zendeskMapping,
	domain.ProviderITFlow:       itflowMapping,
	domain.ProviderNinjaOne:     ninjaOneMapping,
	domain.ProviderAtera:        ateraMapping,
}

func New(provider domain.ProviderType) (*Normalizer, error) {
	mapping, ok := mappings[provider]
	if !ok {
		return nil, fmt.Errorf("no normalizer for provider %s", provider)
	}
	return &Normalizer{provider: provider, mapping: mapping}, nil
}

func (n *Normalizer) Provider() domain.ProviderType {
	return n.provider
}

func (n *Normalizer) Normalize(entityType domain.EntityType, raw json.RawMessage) (domain.CanonicalRecord, error) {
	m, ok := n.mapping[entityType]
	if !ok {
		return nil, n.fail(entityType, "", fmt.Errorf("entity type %s has no mapping", entityType))
	}

	doc, err := decode(raw)
	if err != nil {
		return nil, n.fail(entityType, "", err)
	}

	r := &reader{doc: doc, provider: n.provider, entityType: entityType}

	externalID := r.text(m.fields.ID)
	if externalID == "" {
		return nil, n.fail(entityType, "", errMissingExternalID)
	}
	r.externalID = externalID

	payload := make(json.RawMessage, len(raw))
	copy(payload, raw)

	switch entityType {
	case domain.EntityCompany:
		return &domain.CanonicalCompany{
			ExternalID: externalID,
			Name:       cleanName(r.text(m.fields.Name)),
			Phone:      r.text(m.fields.Phone),
			Website:    r.text(m.fields.Website),
			Status:     domain.RecordStatus(r.vocab("status", m.fields.Status, m.statuses, string(domain.FallbackRecordStatus))),
			RawPayload: payload,
		}, nil

	case domain.EntityContact:
		first, last := cleanName(r.text(m.fields.FirstName)), cleanName(r.text(m.fields.LastName))
		if first == "" && last == "" {
			first, last = splitName(r.text(m.fields.Name))
		}
		return &domain.CanonicalContact{
			ExternalID:        externalID,
			CompanyExternalID: r.text(m.fields.Company),
			FirstName:         first,
			LastName:          last,
			Email:             cleanEmail(r.text(m.fields.Email)),
			Phone:             r.text(m.fields.Phone),
			Title:             cleanName(r.text(m.fields.Title)),
			Status:            domain.RecordStatus(r.vocab("status", m.fields.Status, m.statuses, string(domain.FallbackRecordStatus))),
			RawPayload:        payload,
		}, nil

	case domain.EntityTicket:
		return &domain.CanonicalTicket{
			ExternalID:        externalID,
			CompanyExternalID: r.text(m.fields.Company),
			ContactExternalID: r.text(m.fields.Contact),
			Subject:           cleanName(r.text(m.fields.Subject)),
			Status:            domain.TicketStatus(r.vocab("status", m.fields.Status, m.statuses, string(domain.FallbackTicketStatus))),
			Priority:          r.priority(m.fields.Priority, m.priorities),
			OpenedAt:          r.timestamp(m.fields.OpenedAt),
			ClosedAt:          r.timestamp(m.fields.ClosedAt),
			RawPayload:        payload,
		}, nil

	case domain.EntityDevice:
		return &domain.CanonicalDevice{
			ExternalID:        externalID,
			CompanyExternalID: r.text(m.fields.Company),
			Name:              cleanName(r.text(m.fields.Name)),
			DeviceType:        cleanName(r.text(m.fields.DeviceType)),
			SerialNumber:      r.text(m.fields.Serial),
			OperatingSystem:   cleanName(r.text(m.fields.OS)),
			Status:            domain.DeviceStatus(r.vocab("status", m.fields.Status, m.statuses, string(domain.FallbackDeviceStatus))),
			RawPayload:        payload,
		}, nil
	}

	return nil, n.fail(entityType, externalID, fmt.Errorf("unknown entity type %s", entityType))
}

func (n *Normalizer) fail(entityType domain.EntityType, externalID string, err error) error {
	metrics.normalizationFailureCounter.With(prometheus.Labels{"provider": string(n.provider), "entity_type": string(entityType)}).Inc()
	return &domain.NormalizationError{Provider: n.provider, EntityType: entityType, ExternalID: externalID, Err: err}
}

type reader struct {
	doc        document
	provider   domain.ProviderType
	entityType domain.EntityType
	externalID string
}

func (r *reader) text(path string) string {
	return text(r.doc.lookup(path))
}

// vocab maps a vendor value through the given vocabulary.  A missing value
// takes the fallback silently; an unknown one takes it with a warning.
func (r *reader) vocab(field string, path string, vocabulary map[string]string, fallback string) string {
	value := r.text(path)
	if value == "" {
		return fallback
	}

	if canonical, ok := vocabulary[vocabKey(value)]; ok {
		return canonical
	}

	r.warnFallback(field, value, fallback)
	return fallback
}

func (r *reader) priority(path string, vocabulary map[string]domain.TicketPriority) domain.TicketPriority {
	value := r.text(path)
	if value == "" {
		return domain.FallbackTicketPriority
	}

	if canonical, ok := vocabulary[vocabKey(value)]; ok {
		return canonical
	}

	r.warnFallback("priority", value, string(domain.FallbackTicketPriority))
	return domain.FallbackTicketPriority
}

func (r *reader) timestamp(path string) *time.Time {
	value := r.text(path)
	if value == "" {
		return nil
	}

	t, ok := parseTime(value)
	if !ok {
		r.warnFallback("timestamp", value, "")
		return nil
	}
	return &t
}

func (r *reader) warnFallback(field, value, fallback string) {
	metrics.vocabularyFallbackCounter.With(prometheus.Labels{
		"provider": string(r.provider), "entity_type": string(r.entityType), "field": field}).Inc()

	logger.Log.WithFields(logrus.Fields{
		"provider":    r.provider,
		"entity_type": r.entityType,
		"external_id": r.externalID,
		"field":       field,
		"value":       value,
		"fallback":    fallback,
	}).Warn("Unrecognized vendor value, using fallback")
}

package orgimport

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
	"github.com/msp-docs/psa-sync/internal/sync_repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Result struct {
	Linked  int `json:"linked"`
	Created int `json:"created"`
	Flagged int `json:"flagged"`
}

type candidate struct {
	org        domain.Organization
	folded     string
	normalized string
}

type Importer struct {
	store            sync_repository.OrganizationStore
	defaultThreshold int
}

func New(store sync_repository.OrganizationStore, defaultThreshold int) *Importer {
	return &Importer{store: store, defaultThreshold: defaultThreshold}
}

// Import links the given companies of conn that have no organization yet.
// A failure on one company is logged and collected; the rest are still
// processed.
func (i *Importer) Import(ctx context.Context, conn domain.Connection, companyIDs []uuid.UUID) (Result, error) {
	var result Result

	log := logger.ForConnection(conn.ID.String(), conn.ProviderType.String())

	companies, err := i.store.CompaniesWithoutOrganization(ctx, conn.ID, companyIDs)
	if err != nil {
		return result, fmt.Errorf("unable to load unlinked companies: %w", err)
	}
	if len(companies) == 0 {
		return result, nil
	}

	organizations, err := i.store.ListOrganizations(ctx)
	if err != nil {
		return result, fmt.Errorf("unable to load organizations: %w", err)
	}

	candidates := make([]candidate, 0, len(organizations))
	for _, org := range organizations {
		candidates = append(candidates, newCandidate(org))
	}

	threshold := conn.FuzzyMatchThreshold
	if threshold <= 0 {
		threshold = i.defaultThreshold
	}

	var failures []error
	for _, company := range companies {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		outcome, created, err := i.importCompany(ctx, conn, company, candidates, threshold)
		if err != nil {
			log.WithFields(logrus.Fields{"company_external_id": company.ExternalID, "error": err}).Error("Organization import failed")
			metrics.importOutcomeCounter.With(prometheus.Labels{"outcome": "failed"}).Inc()
			failures = append(failures, fmt.Errorf("company %s: %w", company.ExternalID, err))
			continue
		}

		metrics.importOutcomeCounter.With(prometheus.Labels{"outcome": outcome}).Inc()

		switch outcome {
		case outcomeLinked:
			result.Linked++
		case outcomeCreated:
			result.Created++
			candidates = append(candidates, newCandidate(created))
		case outcomeFlagged:
			result.Flagged++
		}
	}

	log.WithFields(logrus.Fields{"linked": result.Linked, "created": result.Created, "flagged": result.Flagged}).Info("Organization import finished")

	return result, errors.Join(failures...)
}

const (
	outcomeLinked  = "linked"
	outcomeCreated = "created"
	outcomeFlagged = "flagged"
)

func newCandidate(org domain.Organization) candidate {
	return candidate{org: org, folded: foldName(org.Name), normalized: normalizeName(org.Name)}
}

func (i *Importer) importCompany(ctx context.Context, conn domain.Connection, company domain.CompanyRef, candidates []candidate, threshold int) (string, domain.Organization, error) {
	externalRef := domain.OrganizationExternalRef(conn.ProviderType, conn.ID, company.ExternalID)

	existing, err := i.store.FindOrganizationByExternalRef(ctx, externalRef)
	switch {
	case err == nil:
		return outcomeLinked, domain.Organization{}, i.store.LinkCompany(ctx, company.InternalID, existing.ID)
	case !errors.Is(err, domain.ErrNotFound):
		return "", domain.Organization{}, err
	}

	matches := exactMatches(company.Name, candidates)
	if len(matches) == 0 {
		matches = fuzzyMatches(company.Name, candidates, threshold)
	}

	switch len(matches) {
	case 0:
		org, err := i.store.CreateOrganization(ctx, domain.Organization{
			Name:        conn.OrgNamePrefix + company.Name,
			ExternalRef: externalRef,
		})
		if err != nil {
			return "", domain.Organization{}, err
		}
		return outcomeCreated, org, i.store.LinkCompany(ctx, company.InternalID, org.ID)

	case 1:
		return outcomeLinked, domain.Organization{}, i.store.LinkCompany(ctx, company.InternalID, matches[0].OrganizationID)

	default:
		return outcomeFlagged, domain.Organization{}, i.store.SaveMatchReview(ctx, domain.OrganizationMatchReview{
			ConnectionID:      conn.ID,
			CompanyExternalID: company.ExternalID,
			CompanyName:       company.Name,
			Candidates:        matches,
		})
	}
}

func exactMatches(name string, candidates []candidate) []domain.MatchCandidate {
	folded := foldName(name)
	if folded == "" {
		return nil
	}

	var matches []domain.MatchCandidate
	for _, c := range candidates {
		if c.folded == folded {
			matches = append(matches, domain.MatchCandidate{OrganizationID: c.org.ID, Name: c.org.Name, Score: 100})
		}
	}
	return matches
}

// fuzzyMatches returns every candidate sharing the best score, when that
// score reaches threshold.
func fuzzyMatches(name string, candidates []candidate, threshold int) []domain.MatchCandidate {
	normalized := normalizeName(name)
	if normalized == "" {
		return nil
	}

	best := -1
	var matches []domain.MatchCandidate
	for _, c := range candidates {
		score := similarity(normalized, c.normalized)
		if score < threshold || score < best {
			continue
		}
		if score > best {
			best = score
			matches = matches[:0]
		}
		matches = append(matches, domain.MatchCandidate{OrganizationID: c.org.ID, Name: c.org.Name, Score: score})
	}

	sort.Slice(matches, func(a, b int) bool {
		return matches[a].Name < matches[b].Name
	})
	return matches
}

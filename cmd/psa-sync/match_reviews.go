package main

import (
	"context"
	"fmt"
	"io"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
	"github.com/msp-docs/psa-sync/internal/sync_repository"
)

type matchReviewLister interface {
	ListMatchReviews(context.Context, domain.ConnectionID) ([]domain.OrganizationMatchReview, error)
}

func startMatchReviews(ctx context.Context, out io.Writer, connectionID string) error {

	connID, err := domain.ParseConnectionID(connectionID)
	if err != nil {
		return fmt.Errorf("invalid connection id: %w", err)
	}

	cfg := config.GetConfig()

	store, err := sync_repository.NewStore(cfg)
	if err != nil {
		logger.LogError("Unable to create the sync store", err)
		return err
	}
	defer store.Close()

	return reportMatchReviews(ctx, out, store, connID)
}

// reportMatchReviews prints the companies whose organization match was
// ambiguous, each followed by its tied candidates.
func reportMatchReviews(ctx context.Context, out io.Writer, store matchReviewLister, connID domain.ConnectionID) error {
	reviews, err := store.ListMatchReviews(ctx, connID)
	if err != nil {
		return err
	}

	for _, review := range reviews {
		fmt.Fprintf(out, "%s %q candidates=%d\n", review.CompanyExternalID, review.CompanyName, len(review.Candidates))
		for _, candidate := range review.Candidates {
			fmt.Fprintf(out, "    %s %q score=%d\n", candidate.OrganizationID, candidate.Name, candidate.Score)
		}
	}

	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
	"github.com/msp-docs/psa-sync/internal/sync_repository"
)

type providerSummary struct {
	provider      domain.ProviderType
	total         int
	enabled       int
	neverSynced   int
	lastStatusCnt map[domain.SyncStatus]int
}

func startConnectionReport(ctx context.Context, out io.Writer) error {

	cfg := config.GetConfig()

	store, err := sync_repository.NewStore(cfg)
	if err != nil {
		logger.LogError("Unable to create the sync store", err)
		return err
	}
	defer store.Close()

	connections, err := store.ListConnections(ctx)
	if err != nil {
		return err
	}

	writeConnectionReport(out, summarizeConnections(connections))
	return nil
}

// summarizeConnections groups connections by provider, ordered by provider name
func summarizeConnections(connections []domain.Connection) []providerSummary {
	byProvider := make(map[domain.ProviderType]*providerSummary)

	for _, conn := range connections {
		summary, ok := byProvider[conn.ProviderType]
		if !ok {
			summary = &providerSummary{provider: conn.ProviderType, lastStatusCnt: make(map[domain.SyncStatus]int)}
			byProvider[conn.ProviderType] = summary
		}

		summary.total++
		if conn.Enabled {
			summary.enabled++
		}
		if conn.LastSyncAt == nil {
			summary.neverSynced++
		}
		if conn.LastSyncStatus != "" {
			summary.lastStatusCnt[conn.LastSyncStatus]++
		}
	}

	summaries := make([]providerSummary, 0, len(byProvider))
	for _, summary := range byProvider {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].provider < summaries[j].provider
	})

	return summaries
}

func writeConnectionReport(out io.Writer, summaries []providerSummary) {
	for _, s := range summaries {
		fmt.Fprintf(out, "%s - total=%d enabled=%d never_synced=%d success=%d partial=%d failed=%d\n",
			s.provider, s.total, s.enabled, s.neverSynced,
			s.lastStatusCnt[domain.SyncStatusSuccess],
			s.lastStatusCnt[domain.SyncStatusPartial],
			s.lastStatusCnt[domain.SyncStatusFailed])
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/orchestrator"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
)

func syncNow(ctx context.Context, out io.Writer, connectionID string, force bool) error {

	connID, err := domain.ParseConnectionID(connectionID)
	if err != nil {
		return fmt.Errorf("invalid connection id: %w", err)
	}

	cfg := config.GetConfig()

	eng, err := buildEngine(cfg)
	if err != nil {
		logger.LogError("Unable to initialize the sync engine", err)
		return err
	}
	defer eng.Close()

	run, err := eng.orchestrator.Trigger(ctx, orchestrator.TriggerRequest{
		ConnectionID: connID,
		Force:        force,
		Source:       domain.TriggerManual,
	})
	if err != nil {
		return err
	}
	if run == nil {
		return errors.New("a sync of this connection is already running")
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

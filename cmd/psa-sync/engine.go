package main

import (
	"fmt"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/events"
	"github.com/msp-docs/psa-sync/internal/orchestrator"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
	"github.com/msp-docs/psa-sync/internal/provider"
	"github.com/msp-docs/psa-sync/internal/sync_repository"
	"github.com/msp-docs/psa-sync/internal/vault"
)

// engine is everything a process needs to run syncs
type engine struct {
	store        sync_repository.Store
	vault        *vault.Vault
	recorder     events.RunRecorder
	orchestrator *orchestrator.Orchestrator
}

type flusher interface {
	Flush()
}

func buildVault(cfg *config.Config) (*vault.Vault, error) {
	keySource, err := vault.NewMasterKeySource(cfg.VaultMasterKeyImpl, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create the master key source: %w", err)
	}
	return vault.NewVault(keySource), nil
}

func buildEngine(cfg *config.Config) (*engine, error) {

	store, err := sync_repository.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create the sync store: %w", err)
	}

	credentialVault, err := buildVault(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	recorder, err := events.NewRunRecorder(cfg.EventsImpl, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("unable to create the run recorder: %w", err)
	}

	options, err := provider.NewOptions(cfg, provider.NewTokenCache(cfg.ProviderTokenCacheSize))
	if err != nil {
		store.Close()
		return nil, err
	}

	orch := orchestrator.New(cfg, orchestrator.Dependencies{
		Store:       store,
		Credentials: credentialVault,
		Recorder:    recorder,
		Options:     options,
	})

	return &engine{
		store:        store,
		vault:        credentialVault,
		recorder:     recorder,
		orchestrator: orch,
	}, nil
}

func (e *engine) Close() {
	if f, ok := e.recorder.(flusher); ok {
		f.Flush()
	}

	if err := e.store.Close(); err != nil {
		logger.LogError("Unable to close the sync store", err)
	}
}

func listenAddrOrPort(listenAddr string, port int) string {
	if listenAddr != "" {
		return listenAddr
	}
	return fmt.Sprintf(":%d", port)
}

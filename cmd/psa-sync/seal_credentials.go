package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/vault"
)

// sealCredentials prints the value to store in a connection's
// encrypted_credentials column
func sealCredentials(ctx context.Context, in io.Reader, out io.Writer, connectionID string) error {

	connID, err := domain.ParseConnectionID(connectionID)
	if err != nil {
		return fmt.Errorf("invalid connection id: %w", err)
	}

	var creds vault.Credentials
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&creds); err != nil {
		return fmt.Errorf("unable to read credentials: %w", err)
	}
	defer creds.Wipe()

	credentialVault, err := buildVault(config.GetConfig())
	if err != nil {
		return err
	}

	sealed, err := credentialVault.Encrypt(ctx, connID, &creds)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, sealed)
	return err
}

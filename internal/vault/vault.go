package vault

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	ciphertextVersion = "v1"
	keyDerivationInfo = "psa-sync connection credentials v1"
	masterKeyLength   = 32
)

// Credentials is the decrypted secret material for one connection.  Vendors
// use different subsets of the fields.
type Credentials struct {
	Username        string            `json:"username,omitempty"`
	Password        string            `json:"password,omitempty"`
	ClientID        string            `json:"client_id,omitempty"`
	ClientSecret    string            `json:"client_secret,omitempty"`
	APIKey          string            `json:"api_key,omitempty"`
	APISecret       string            `json:"api_secret,omitempty"`
	IntegrationCode string            `json:"integration_code,omitempty"`
	CompanyID       string            `json:"company_id,omitempty"`
	PublicKey       string            `json:"public_key,omitempty"`
	PrivateKey      string            `json:"private_key,omitempty"`
	Tenant          string            `json:"tenant,omitempty"`
	Scope           string            `json:"scope,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

func (c *Credentials) String() string {
	return "Credentials{redacted}"
}

func (c *Credentials) MarshalLog() interface{} {
	return "redacted"
}

// Wipe drops every reference to the secret values
func (c *Credentials) Wipe() {
	*c = Credentials{}
}

type Vault struct {
	keySource MasterKeySource
}

func NewVault(keySource MasterKeySource) *Vault {
	return &Vault{keySource: keySource}
}

// Decrypt returns the plaintext credentials for conn.  Callers should prefer
// WithCredentials so the secrets do not outlive the call that needs them.
func (v *Vault) Decrypt(ctx context.Context, conn domain.Connection) (*Credentials, error) {

	callDurationTimer := prometheus.NewTimer(metrics.decryptDuration)
	defer callDurationTimer.ObserveDuration()

	log := logger.Log.WithFields(logrus.Fields{"connection_id": conn.ID.String()})

	creds, err := v.decrypt(ctx, conn)
	if err != nil {
		metrics.decryptFailureCounter.Inc()
		log.WithFields(logrus.Fields{"error": err}).Warn("Unable to decrypt connection credentials")
		return nil, err
	}

	return creds, nil
}

func (v *Vault) decrypt(ctx context.Context, conn domain.Connection) (*Credentials, error) {
	version, encoded, found := strings.Cut(conn.EncryptedCredentials, ".")
	if !found || version != ciphertextVersion {
		return nil, &domain.CredentialError{ConnectionID: conn.ID, Reason: "unsupported ciphertext version"}
	}

	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &domain.CredentialError{ConnectionID: conn.ID, Reason: "malformed ciphertext", Err: err}
	}

	aead, err := v.connectionCipher(ctx, conn.ID)
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, &domain.CredentialError{ConnectionID: conn.ID, Reason: "ciphertext too short"}
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	connIDBytes := uuidBytes(conn.ID)

	plaintext, err := aead.Open(nil, nonce, ciphertext, connIDBytes)
	if err != nil {
		return nil, &domain.CredentialError{ConnectionID: conn.ID, Reason: "ciphertext failed authentication"}
	}
	defer zero(plaintext)

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, &domain.CredentialError{ConnectionID: conn.ID, Reason: "decrypted payload is not valid credentials json"}
	}

	return &creds, nil
}

// WithCredentials decrypts the connection's credentials, hands them to fn and
// wipes them as soon as fn returns.
func (v *Vault) WithCredentials(ctx context.Context, conn domain.Connection, fn func(*Credentials) error) error {
	creds, err := v.Decrypt(ctx, conn)
	if err != nil {
		return err
	}
	defer creds.Wipe()

	return fn(creds)
}

// Encrypt seals creds for storage on the connection row
func (v *Vault) Encrypt(ctx context.Context, connID domain.ConnectionID, creds *Credentials) (string, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	defer zero(plaintext)

	aead, err := v.connectionCipher(ctx, connID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, uuidBytes(connID))

	return ciphertextVersion + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (v *Vault) connectionCipher(ctx context.Context, connID domain.ConnectionID) (cipher.AEAD, error) {
	masterKey, err := v.keySource.MasterKey(ctx)
	if err != nil {
		return nil, &domain.CredentialError{ConnectionID: connID, Reason: "master key unavailable", Err: err}
	}

	if len(masterKey) != masterKeyLength {
		return nil, &domain.CredentialError{ConnectionID: connID,
			Reason: fmt.Sprintf("master key must be %d bytes", masterKeyLength)}
	}

	derived := make([]byte, chacha20poly1305.KeySize)
	defer zero(derived)

	kdf := hkdf.New(sha256.New, masterKey, uuidBytes(connID), []byte(keyDerivationInfo))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, &domain.CredentialError{ConnectionID: connID, Reason: "key derivation failed", Err: err}
	}

	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, &domain.CredentialError{ConnectionID: connID, Reason: "cipher setup failed", Err: err}
	}

	return aead, nil
}

func uuidBytes(id domain.ConnectionID) []byte {
	b := [16]byte(id)
	return b[:]
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var errMissingMasterKey = errors.New("no master key configured")

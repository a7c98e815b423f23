package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func init() {
	logger.InitLogger()
}

var testMasterKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	keySource, err := NewStaticMasterKeySource(testMasterKey)
	if err != nil {
		t.Fatal("unable to build key source: ", err)
	}
	return NewVault(keySource)
}

func newConnection(t *testing.T, v *Vault, creds *Credentials) domain.Connection {
	t.Helper()
	connID := domain.ConnectionID(uuid.New())
	sealed, err := v.Encrypt(context.Background(), connID, creds)
	if err != nil {
		t.Fatal("unable to encrypt credentials: ", err)
	}
	return domain.Connection{ID: connID, EncryptedCredentials: sealed}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)
	creds := &Credentials{CompanyID: "acme", PublicKey: "pub", PrivateKey: "priv", ClientID: "cw-client"}
	conn := newConnection(t, v, creds)

	if strings.Contains(conn.EncryptedCredentials, "priv") {
		t.Fatal("ciphertext leaks plaintext")
	}

	got, err := v.Decrypt(context.Background(), conn)
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}

	if diff := cmp.Diff(creds, got); diff != "" {
		t.Errorf("credentials mismatch (-want +got):\n%s", diff)
	}
}

func TestDecryptFailures(t *testing.T) {
	v := newTestVault(t)
	conn := newConnection(t, v, &Credentials{APIKey: "secret"})

	otherConn := conn
	otherConn.ID = domain.ConnectionID(uuid.New())

	tampered := conn
	raw, _ := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(conn.EncryptedCredentials, "v1."))
	raw[len(raw)-1] ^= 0xff
	tampered.EncryptedCredentials = "v1." + base64.RawURLEncoding.EncodeToString(raw)

	missingKeySource, _ := NewStaticMasterKeySource("")
	noKeyVault := NewVault(missingKeySource)

	testCases := []struct {
		name  string
		vault *Vault
		conn  domain.Connection
	}{
		{"unknown version", v, domain.Connection{ID: conn.ID, EncryptedCredentials: "v9.abcd"}},
		{"no version", v, domain.Connection{ID: conn.ID, EncryptedCredentials: "abcd"}},
		{"bad base64", v, domain.Connection{ID: conn.ID, EncryptedCredentials: "v1.!!!"}},
		{"too short", v, domain.Connection{ID: conn.ID, EncryptedCredentials: "v1.AAAA"}},
		{"tampered", v, tampered},
		{"bound to another connection", v, otherConn},
		{"missing master key", noKeyVault, conn},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.vault.Decrypt(context.Background(), tc.conn)

			var credentialErr *domain.CredentialError
			if !errors.As(err, &credentialErr) {
				t.Fatalf("expected CredentialError, got %v", err)
			}
		})
	}
}

func TestWithCredentialsWipesAfterUse(t *testing.T) {
	v := newTestVault(t)
	conn := newConnection(t, v, &Credentials{Username: "api", Password: "hunter2"})

	var held *Credentials
	err := v.WithCredentials(context.Background(), conn, func(c *Credentials) error {
		if c.Password != "hunter2" {
			t.Errorf("expected decrypted password, got %q", c.Password)
		}
		held = c
		return nil
	})
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}

	if diff := cmp.Diff(&Credentials{}, held); diff != "" {
		t.Errorf("credentials not wiped (-want +got):\n%s", diff)
	}
}

func TestCredentialsNeverFormatSecrets(t *testing.T) {
	c := &Credentials{Password: "hunter2"}
	if strings.Contains(c.String(), "hunter2") {
		t.Error("String() exposes secret")
	}
	if c.MarshalLog() != "redacted" {
		t.Error("MarshalLog() exposes secret")
	}
}

func TestNewStaticMasterKeySourceRejectsGarbage(t *testing.T) {
	if _, err := NewStaticMasterKeySource("not base64 !!"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

type fakeSecretsManager struct {
	calls  int
	output *secretsmanager.GetSecretValueOutput
	err    error
}

func (f *fakeSecretsManager) GetSecretValueWithContext(ctx aws.Context, input *secretsmanager.GetSecretValueInput, opts ...request.Option) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	return f.output, f.err
}

func TestSecretsManagerMasterKeySourceCachesKey(t *testing.T) {
	fake := &fakeSecretsManager{output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(testMasterKey)}}
	source := NewSecretsManagerMasterKeySource(fake, "psa-sync/master-key", time.Second)

	for i := 0; i < 3; i++ {
		key, err := source.MasterKey(context.Background())
		if err != nil {
			t.Fatal("unexpected error: ", err)
		}
		if len(key) != masterKeyLength {
			t.Fatalf("unexpected key length %d", len(key))
		}
	}

	if fake.calls != 1 {
		t.Errorf("expected one secrets manager call, got %d", fake.calls)
	}
}

func TestSecretsManagerMasterKeySourceRetriesAfterFailure(t *testing.T) {
	fake := &fakeSecretsManager{err: errors.New("throttled")}
	source := NewSecretsManagerMasterKeySource(fake, "psa-sync/master-key", time.Second)

	if _, err := source.MasterKey(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	fake.err = nil
	fake.output = &secretsmanager.GetSecretValueOutput{SecretBinary: []byte("0123456789abcdef0123456789abcdef")}

	if _, err := source.MasterKey(context.Background()); err != nil {
		t.Fatal("unexpected error: ", err)
	}

	if fake.calls != 2 {
		t.Errorf("expected two secrets manager calls, got %d", fake.calls)
	}
}

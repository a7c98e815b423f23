package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/sirupsen/logrus"
)

const (
	EnvMasterKeyImpl               = "env"
	AwsSecretsManagerMasterKeyImpl = "aws_secrets_manager"
)

// MasterKeySource yields the 32 byte key every connection key is derived from
type MasterKeySource interface {
	MasterKey(ctx context.Context) ([]byte, error)
}

func NewMasterKeySource(impl string, cfg *config.Config) (MasterKeySource, error) {
	switch impl {
	case EnvMasterKeyImpl:
		return NewStaticMasterKeySource(cfg.VaultMasterKey)
	case AwsSecretsManagerMasterKeyImpl:
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.VaultAwsRegion)})
		if err != nil {
			return nil, err
		}
		return NewSecretsManagerMasterKeySource(secretsmanager.New(sess), cfg.VaultAwsSecretId, cfg.VaultAwsFetchTimeout), nil
	default:
		return nil, fmt.Errorf("invalid vault master key impl requested: %s", impl)
	}
}

type staticMasterKeySource struct {
	key []byte
}

// NewStaticMasterKeySource decodes a base64 key handed in through configuration
func NewStaticMasterKeySource(encodedKey string) (MasterKeySource, error) {
	if encodedKey == "" {
		return &staticMasterKeySource{}, nil
	}

	key, err := decodeMasterKey(encodedKey)
	if err != nil {
		return nil, err
	}

	return &staticMasterKeySource{key: key}, nil
}

func (s *staticMasterKeySource) MasterKey(ctx context.Context) ([]byte, error) {
	if len(s.key) == 0 {
		return nil, errMissingMasterKey
	}
	return s.key, nil
}

type secretValueGetter interface {
	GetSecretValueWithContext(aws.Context, *secretsmanager.GetSecretValueInput, ...request.Option) (*secretsmanager.GetSecretValueOutput, error)
}

type secretsManagerMasterKeySource struct {
	client       secretValueGetter
	secretID     string
	fetchTimeout time.Duration

	mu  sync.Mutex
	key []byte
}

// NewSecretsManagerMasterKeySource reads the key from AWS Secrets Manager on
// first use.  A failed fetch is retried on the next call.
func NewSecretsManagerMasterKeySource(client secretValueGetter, secretID string, fetchTimeout time.Duration) MasterKeySource {
	return &secretsManagerMasterKeySource{
		client:       client,
		secretID:     secretID,
		fetchTimeout: fetchTimeout,
	}
}

func (s *secretsManagerMasterKeySource) MasterKey(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}

	if s.secretID == "" {
		return nil, errMissingMasterKey
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	out, err := s.client.GetSecretValueWithContext(fetchCtx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "secret_id": s.secretID}).Error("Unable to fetch vault master key")
		return nil, err
	}

	var key []byte
	switch {
	case out.SecretBinary != nil:
		key = out.SecretBinary
	case out.SecretString != nil:
		key, err = decodeMasterKey(*out.SecretString)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errMissingMasterKey
	}

	s.key = key

	return s.key, nil
}

func decodeMasterKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, errors.New("vault master key is not valid base64")
	}
	return key, nil
}

package queue

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/msp-docs/psa-sync/internal/platform/utils/tls_utils"

	kafka "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

func saslMechanism(cfg *SaslConfig) (sasl.Mechanism, error) {
	switch strings.ToLower(cfg.SaslMechanism) {
	case "plain":
		return plain.Mechanism{
			Username: cfg.SaslUsername,
			Password: cfg.SaslPassword,
		}, nil
	case "scram-sha-512":
		return scram.Mechanism(scram.SHA512, cfg.SaslUsername, cfg.SaslPassword)
	case "scram-sha-256":
		return scram.Mechanism(scram.SHA256, cfg.SaslUsername, cfg.SaslPassword)
	default:
		return nil, fmt.Errorf("unsupported kafka sasl mechanism %q", cfg.SaslMechanism)
	}
}

func tlsConfig(cfg *SaslConfig) (*tls.Config, error) {
	if cfg.KafkaCA == "" {
		return tls_utils.NewTlsConfig()
	}
	return tls_utils.NewTlsConfig(tls_utils.WithCACerts(cfg.KafkaCA))
}

func saslDialer(cfg *SaslConfig) (*kafka.Dialer, error) {
	mechanism, err := saslMechanism(cfg)
	if err != nil {
		return nil, err
	}

	tlsCfg, err := tlsConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &kafka.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		SASLMechanism: mechanism,
		TLS:           tlsCfg,
	}, nil
}

func saslTransport(cfg *SaslConfig) (*kafka.Transport, error) {
	mechanism, err := saslMechanism(cfg)
	if err != nil {
		return nil, err
	}

	tlsCfg, err := tlsConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &kafka.Transport{
		DialTimeout: 10 * time.Second,
		SASL:        mechanism,
		TLS:         tlsCfg,
	}, nil
}

// SaslConfigFromSettings returns nil when no kafka username is configured
func SaslConfigFromSettings(mechanism, username, password, ca string) *SaslConfig {
	if username == "" {
		return nil
	}
	return &SaslConfig{
		SaslMechanism: mechanism,
		SaslUsername:  username,
		SaslPassword:  password,
		KafkaCA:       ca,
	}
}

package tls_utils

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/sirupsen/logrus"
)

type TlsConfigFunc func(*tls.Config) error

// WithCACerts trusts the PEM certificates in caCertFilePath on top of the
// system pool
func WithCACerts(caCertFilePath string) TlsConfigFunc {
	return func(tlsConfig *tls.Config) error {
		logger.Log.WithFields(logrus.Fields{"ca_cert_file": caCertFilePath}).Debug("Adding CA certs to TLS config")

		pemCerts, err := os.ReadFile(caCertFilePath)
		if err != nil {
			return fmt.Errorf("unable to read ca cert file: %w", err)
		}

		certpool, err := x509.SystemCertPool()
		if err != nil || certpool == nil {
			certpool = x509.NewCertPool()
		}

		if !certpool.AppendCertsFromPEM(pemCerts) {
			return errors.New("no certificates found in " + caCertFilePath)
		}

		tlsConfig.RootCAs = certpool

		return nil
	}
}

func WithMinVersion(version uint16) TlsConfigFunc {
	return func(tlsConfig *tls.Config) error {
		tlsConfig.MinVersion = version
		return nil
	}
}

func NewTlsConfig(configOpts ...TlsConfigFunc) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	for _, opt := range configOpts {
		err := opt(tlsConfig)
		if err != nil {
			return nil, err
		}
	}

	return tlsConfig, nil
}

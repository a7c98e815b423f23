package tls_utils

import (
	"crypto/tls"
	"encoding/pem"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/go-playground/assert/v2"
)

func init() {
	logger.InitLogger()
}

func TestNewTlsConfigDefaultsToTLS12(t *testing.T) {
	tlsConfig, err := NewTlsConfig()

	assert.Equal(t, err, nil)
	assert.Equal(t, tlsConfig.MinVersion, uint16(tls.VersionTLS12))
	assert.Equal(t, tlsConfig.RootCAs == nil, true)
}

func TestWithCACertsTrustsTheGivenCertificate(t *testing.T) {
	server := httptest.NewTLSServer(nil)
	defer server.Close()

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
	if err := os.WriteFile(caFile, pemBytes, 0600); err != nil {
		t.Fatal(err)
	}

	tlsConfig, err := NewTlsConfig(WithCACerts(caFile), WithMinVersion(tls.VersionTLS13))

	assert.Equal(t, err, nil)
	assert.Equal(t, tlsConfig.MinVersion, uint16(tls.VersionTLS13))
	assert.NotEqual(t, tlsConfig.RootCAs, nil)

	conn, err := tls.Dial("tcp", server.Listener.Addr().String(), &tls.Config{RootCAs: tlsConfig.RootCAs, ServerName: "example.com"})
	assert.Equal(t, err, nil)
	if conn != nil {
		conn.Close()
	}
}

func TestWithCACertsRejectsFilesWithoutCertificates(t *testing.T) {
	caFile := filepath.Join(t.TempDir(), "empty.pem")
	if err := os.WriteFile(caFile, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewTlsConfig(WithCACerts(caFile))
	assert.NotEqual(t, err, nil)

	_, err = NewTlsConfig(WithCACerts(filepath.Join(t.TempDir(), "missing.pem")))
	assert.NotEqual(t, err, nil)
}

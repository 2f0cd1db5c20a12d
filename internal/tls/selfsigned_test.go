package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	require.NoError(t, GenerateSelfSignedCert(certPath, keyPath, []string{"localhost", "127.0.0.1"}))

	raw, err := os.ReadFile(certPath)
	require.NoError(t, err)
	block, _ := pem.Decode(raw)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", cert.IPAddresses[0].String())
	assert.Equal(t, []string{"ideaflow dev"}, cert.Subject.Organization)
	assert.NoError(t, cert.VerifyHostname("localhost"))

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = cryptotls.LoadX509KeyPair(certPath, keyPath)
	assert.NoError(t, err)
}

func TestGenerateSelfSignedCert_RequiresHost(t *testing.T) {
	dir := t.TempDir()
	err := GenerateSelfSignedCert(filepath.Join(dir, "c.pem"), filepath.Join(dir, "k.pem"), nil)
	assert.Error(t, err)
}

func TestEnsureCert(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	created, err := EnsureCert(certPath, keyPath, []string{"localhost"})
	require.NoError(t, err)
	assert.True(t, created)

	first, err := os.ReadFile(certPath)
	require.NoError(t, err)

	created, err = EnsureCert(certPath, keyPath, []string{"localhost"})
	require.NoError(t, err)
	assert.False(t, created)

	second, err := os.ReadFile(certPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

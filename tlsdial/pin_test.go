package tlsdial

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T, cn string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestPinnerPassesMatchingPin(t *testing.T) {
	cert := selfSignedCert(t, "example.com")
	pinner := NewPinner(Pin{Pattern: "example.com", Hash: SPKIHash(cert)})
	assert.NoError(t, pinner.Check("example.com", []*x509.Certificate{cert}))
}

func TestPinnerRejectsMismatchedPin(t *testing.T) {
	cert := selfSignedCert(t, "example.com")
	pinner := NewPinner(Pin{Pattern: "example.com", Hash: "sha256/not-the-right-hash"})
	assert.Error(t, pinner.Check("example.com", []*x509.Certificate{cert}))
}

func TestPinnerSkipsUnmatchedHostnames(t *testing.T) {
	cert := selfSignedCert(t, "example.com")
	pinner := NewPinner(Pin{Pattern: "other.com", Hash: "sha256/whatever"})
	assert.NoError(t, pinner.Check("example.com", []*x509.Certificate{cert}))
}

func TestPinnerWildcardPattern(t *testing.T) {
	cert := selfSignedCert(t, "api.example.com")
	pinner := NewPinner(Pin{Pattern: "*.example.com", Hash: SPKIHash(cert)})
	assert.NoError(t, pinner.Check("api.example.com", []*x509.Certificate{cert}))
	// "deep.api.example.com" has no matching pin (wildcard matches exactly
	// one label), so it passes unchecked: pinning is opt-in per host.
	assert.NoError(t, pinner.Check("deep.api.example.com", []*x509.Certificate{cert}))
}

func TestCleanChainRejectsOversizedChain(t *testing.T) {
	chain := make([]*x509.Certificate, maxChainLength+2)
	for i := range chain {
		chain[i] = selfSignedCert(t, "link")
		chain[i].Issuer = pkix.Name{CommonName: "link"}
		chain[i].Subject = pkix.Name{CommonName: "link"}
	}
	_, err := cleanChain(chain)
	assert.ErrorIs(t, err, errChainTooLong)
}

func TestCleanChainDropsUnrelatedCertificates(t *testing.T) {
	leaf := selfSignedCert(t, "leaf")
	leaf.Issuer = pkix.Name{CommonName: "intermediate"}
	unrelated := selfSignedCert(t, "unrelated")
	unrelated.Subject = pkix.Name{CommonName: "not-the-issuer"}
	intermediate := selfSignedCert(t, "intermediate")
	intermediate.Subject = pkix.Name{CommonName: "intermediate"}

	cleaned, err := cleanChain([]*x509.Certificate{leaf, unrelated, intermediate})
	require.NoError(t, err)
	require.Len(t, cleaned, 2)
	assert.Equal(t, "leaf", cleaned[0].Subject.CommonName)
	assert.Equal(t, "intermediate", cleaned[1].Subject.CommonName)
}

package tlsdial

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func localTLSServer(t *testing.T, alpn []string) (addr string, stop func()) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   alpn,
	})
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 16)
				conn.Read(buf)
			}()
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestUDialerHandshakeNegotiatesALPN(t *testing.T) {
	addr, stop := localTLSServer(t, []string{"http/1.1"})
	defer stop()

	raw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer raw.Close()

	var dialer UDialer
	_, rec, err := dialer.Handshake(context.Background(), raw, Config{
		ServerName:         "localhost",
		NextProtos:         []string{"h2", "http/1.1"},
		InsecureSkipVerify: true,
	})
	require.NoError(t, err)
	require.Equal(t, "http/1.1", rec.NegotiatedProtocol)
	require.NotZero(t, rec.Version)
	require.NotEmpty(t, rec.PeerCertificates)
}

func TestUDialerHandshakeWithPinnerRejectsMismatch(t *testing.T) {
	addr, stop := localTLSServer(t, nil)
	defer stop()

	raw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer raw.Close()

	pinner := NewPinner(Pin{Pattern: "localhost", Hash: "sha256/wrong"})
	var dialer UDialer
	_, _, err = dialer.Handshake(context.Background(), raw, Config{
		ServerName:         "localhost",
		InsecureSkipVerify: true,
		Pinner:             pinner,
	})
	require.Error(t, err)
}

func TestUDialerHandshakeWithMatchingPinSucceeds(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		conn.Read(buf)
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	pinner := NewPinner(Pin{Pattern: "localhost", Hash: SPKIHash(leaf)})
	var dialer UDialer
	_, _, err = dialer.Handshake(context.Background(), raw, Config{
		ServerName:         "localhost",
		InsecureSkipVerify: true,
		Pinner:             pinner,
	})
	require.NoError(t, err)
}

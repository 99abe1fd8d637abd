// Package tlsdial implements the TLS handshake provider described in §6:
// a dialer that yields a bidirectional byte stream plus a handshake
// record, and an optional certificate pinner that cleans and checks the
// peer's chain. It is built on refraction-networking/utls so the client's
// ClientHello fingerprint can be configured independently of Go's stdlib
// crypto/tls defaults, the way the teacher's HTTP/2 transport dials TLS.
package tlsdial

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"

	tls "github.com/refraction-networking/utls"

	"github.com/corehttp/corehttp/cherr"
)

// Record is the handshake record a TLS dial yields: negotiated parameters
// plus both sides' certificate chains (§6).
type Record struct {
	Version            uint16
	CipherSuite        uint16
	NegotiatedProtocol string
	PeerCertificates   []*x509.Certificate
	LocalCertificates  []*x509.Certificate
}

// Config configures how a Dialer performs the TLS handshake.
type Config struct {
	// ServerName is sent as SNI and used for hostname verification.
	ServerName string

	// NextProtos lists ALPN protocols in preference order, e.g.
	// ["h2", "http/1.1"] (§6).
	NextProtos []string

	// InsecureSkipVerify disables certificate chain verification. Pinning
	// (Pinner) is independent of this and always applies when configured.
	InsecureSkipVerify bool

	// HelloID selects the ClientHello fingerprint utls presents. The zero
	// value is tls.HelloGolang (Go's own stdlib-shaped hello).
	HelloID tls.ClientHelloID

	// HelloSpec, if non-nil, overrides HelloID with a fully custom
	// ClientHelloSpec (applied via UClient's HelloCustom path).
	HelloSpec *tls.ClientHelloSpec

	// Pinner, if non-nil, is consulted after verification to enforce
	// certificate pinning for ServerName.
	Pinner *Pinner
}

// Dialer performs the TLS handshake over an already-connected net.Conn and
// reports the negotiated Record. DNS lookup and TCP connect are handled
// upstream by the route planner; this type's only job is the handshake
// itself, the "external collaborator" described in §6.
type Dialer interface {
	Handshake(ctx context.Context, conn net.Conn, cfg Config) (net.Conn, Record, error)
}

// UDialer is the default Dialer, backed by utls.
type UDialer struct{}

func (UDialer) Handshake(ctx context.Context, conn net.Conn, cfg Config) (net.Conn, Record, error) {
	uCfg := &tls.Config{
		ServerName:         cfg.ServerName,
		NextProtos:         cfg.NextProtos,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	var uconn *tls.UConn
	if cfg.HelloSpec != nil {
		uconn = tls.UClient(conn, uCfg, tls.HelloCustom)
		if err := uconn.ApplyPreset(cfg.HelloSpec); err != nil {
			return nil, Record{}, &cherr.Error{Kind: cherr.KindTLS, Message: "apply client hello spec", Cause: err}
		}
	} else {
		helloID := cfg.HelloID
		if helloID == (tls.ClientHelloID{}) {
			helloID = tls.HelloGolang
		}
		uconn = tls.UClient(conn, uCfg, helloID)
	}

	if err := uconn.HandshakeContext(ctx); err != nil {
		return nil, Record{}, &cherr.Error{Kind: cherr.KindTLS, Message: "tls handshake", Cause: err}
	}

	state := uconn.ConnectionState()
	rec := Record{
		Version:            state.Version,
		CipherSuite:        state.CipherSuite,
		NegotiatedProtocol: state.NegotiatedProtocol,
		PeerCertificates:   state.PeerCertificates,
	}

	if cfg.Pinner != nil {
		chain, err := cleanChain(state.PeerCertificates)
		if err != nil {
			return nil, Record{}, &cherr.Error{Kind: cherr.KindTLS, Message: "peer unverified", Cause: err}
		}
		if err := cfg.Pinner.Check(cfg.ServerName, chain); err != nil {
			return nil, Record{}, &cherr.Error{Kind: cherr.KindTLS, Message: "peer unverified", Cause: err}
		}
	}

	return uconn, rec, nil
}

// maxChainLength is the cap from §8: "Chain-cleaner rejects chains of
// length > 10".
const maxChainLength = 10

// errChainTooLong is returned by cleanChain when the peer's chain exceeds
// maxChainLength after cleaning.
var errChainTooLong = fmt.Errorf("tlsdial: certificate chain exceeds %d certificates", maxChainLength)

// cleanChain drops certificates that don't chain from the leaf (each
// certificate's issuer must match the next certificate's subject) and
// enforces the length cap, per §6's "leaf-to-root chain is cleaned".
func cleanChain(chain []*x509.Certificate) ([]*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("tlsdial: empty certificate chain")
	}
	cleaned := []*x509.Certificate{chain[0]}
	for i := 1; i < len(chain); i++ {
		prev := cleaned[len(cleaned)-1]
		if prev.Issuer.String() != chain[i].Subject.String() {
			continue
		}
		cleaned = append(cleaned, chain[i])
	}
	if len(cleaned) > maxChainLength {
		return nil, errChainTooLong
	}
	return cleaned, nil
}

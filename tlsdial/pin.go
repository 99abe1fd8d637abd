package tlsdial

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
)

// Pin is one (hostname pattern, pin-hash) entry (§6). Pattern follows the
// same leading "*." wildcard convention as host matching elsewhere in the
// client (e.g. "*.example.com" matches any direct subdomain, "example.com"
// matches only the exact host). Hash is the base64 SHA-256 digest of the
// certificate's SubjectPublicKeyInfo, prefixed "sha256/".
type Pin struct {
	Pattern string
	Hash    string
}

// Pinner holds a set of Pins and checks a cleaned certificate chain
// against whichever pins match the connection's hostname.
type Pinner struct {
	pins []Pin
}

// NewPinner builds a Pinner from pins.
func NewPinner(pins ...Pin) *Pinner {
	return &Pinner{pins: pins}
}

// Add appends a pin.
func (p *Pinner) Add(pattern, hash string) {
	p.pins = append(p.pins, Pin{Pattern: pattern, Hash: hash})
}

// matches reports whether hostname satisfies pattern, per the "*."
// wildcard convention.
func matches(pattern, hostname string) bool {
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // keep the leading dot
		if !strings.HasSuffix(hostname, suffix) {
			return false
		}
		return !strings.Contains(strings.TrimSuffix(hostname, suffix), ".")
	}
	return pattern == hostname
}

// Check returns an error unless at least one pin matching hostname is
// satisfied by some certificate in chain. A hostname with no matching
// pins at all passes unchecked (pinning is opt-in per host).
func (p *Pinner) Check(hostname string, chain []*x509.Certificate) error {
	var applicable []Pin
	for _, pin := range p.pins {
		if matches(pin.Pattern, hostname) {
			applicable = append(applicable, pin)
		}
	}
	if len(applicable) == 0 {
		return nil
	}

	hashes := make(map[string]bool, len(chain))
	for _, cert := range chain {
		hashes[SPKIHash(cert)] = true
	}
	for _, pin := range applicable {
		if hashes[pin.Hash] {
			return nil
		}
	}
	return fmt.Errorf("tlsdial: certificate pinning failure for %s: none of %d pins matched", hostname, len(applicable))
}

// SPKIHash returns the "sha256/<base64>" pin-hash of cert's
// SubjectPublicKeyInfo, the same digest used by certificate pinning
// implementations across the ecosystem (RFC 7469 HPKP-style pins).
func SPKIHash(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return "sha256/" + base64.StdEncoding.EncodeToString(sum[:])
}

package auth

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sync"
)

// Digest implements RFC 7616 Digest authentication (MD5 and SHA-256,
// qop=auth), the other scheme named by §6's "authenticator (user + proxy)".
type Digest struct {
	Username, Password string
	headerName         string

	mu    sync.Mutex
	nonce string
	nc    int
}

// NewDigest returns a Digest authenticator for WWW-Authenticate challenges.
func NewDigest(username, password string) *Digest {
	return &Digest{Username: username, Password: password, headerName: "Authorization"}
}

// NewProxyDigest returns a Digest authenticator for Proxy-Authenticate
// challenges.
func NewProxyDigest(username, password string) *Digest {
	return &Digest{Username: username, Password: password, headerName: "Proxy-Authorization"}
}

func (d *Digest) Authenticate(challenges []Challenge, req Request, _ bool) (Credentials, bool) {
	for _, c := range challenges {
		if !equalFoldASCII(c.Scheme, "Digest") {
			continue
		}
		return d.respond(c, req), true
	}
	return Credentials{}, false
}

func (d *Digest) respond(c Challenge, req Request) Credentials {
	realm := c.Params["realm"]
	nonce := c.Params["nonce"]
	opaque := c.Params["opaque"]
	qop := pickQop(c.Params["qop"])
	algorithm, hashFn := pickAlgorithm(c.Params["algorithm"])

	d.mu.Lock()
	if d.nonce != nonce {
		d.nonce = nonce
		d.nc = 0
	}
	d.nc++
	nc := fmt.Sprintf("%08x", d.nc)
	d.mu.Unlock()

	ha1 := hashHex(hashFn, d.Username+":"+realm+":"+d.Password)
	ha2 := hashHex(hashFn, req.Method+":"+req.URI)

	cnonce := randomHex(8)
	var response string
	if qop != "" {
		response = hashHex(hashFn, ha1+":"+nonce+":"+nc+":"+cnonce+":"+qop+":"+ha2)
	} else {
		response = hashHex(hashFn, ha1+":"+nonce+":"+ha2)
	}

	value := fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s", algorithm=%s`,
		d.Username, realm, nonce, req.URI, response, algorithm)
	if qop != "" {
		value += fmt.Sprintf(`, qop=%s, nc=%s, cnonce="%s"`, qop, nc, cnonce)
	}
	if opaque != "" {
		value += fmt.Sprintf(`, opaque="%s"`, opaque)
	}
	return Credentials{Header: d.headerName, Value: value}
}

// pickAlgorithm maps the challenge's algorithm parameter to RFC 7616's two
// supported digests, defaulting to MD5 per RFC 2617 when the server omits
// the parameter entirely.
func pickAlgorithm(offered string) (name string, newHash func() hash.Hash) {
	switch offered {
	case "SHA-256":
		return "SHA-256", sha256.New
	case "", "MD5":
		return "MD5", md5.New
	default:
		return "MD5", md5.New
	}
}

// pickQop returns "auth" when the challenge offers it and "" otherwise;
// "auth-int" is never selected (this client never buffers the whole body
// for auth-int's body hash).
func pickQop(offered string) string {
	for _, q := range splitCommaTrim(offered) {
		if q == "auth" {
			return "auth"
		}
	}
	return ""
}

func splitCommaTrim(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			part := trim(s[start:i])
			if part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

func trim(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

func hashHex(newHash func() hash.Hash, s string) string {
	h := newHash()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = byte(i * 17)
		}
	}
	return hex.EncodeToString(b)
}

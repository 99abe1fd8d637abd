package auth

import "encoding/base64"

// Basic implements RFC 7617 Basic authentication with a single fixed
// credential pair (the common case for this client; a credential-store
// abstraction is left to the caller, who can implement Authenticator
// directly for per-realm lookups).
type Basic struct {
	Username, Password string
	headerName         string
}

// NewBasic returns a Basic authenticator for the user-facing
// WWW-Authenticate challenge ("Authorization").
func NewBasic(username, password string) *Basic {
	return &Basic{Username: username, Password: password, headerName: "Authorization"}
}

// NewProxyBasic returns a Basic authenticator for Proxy-Authenticate
// challenges ("Proxy-Authorization").
func NewProxyBasic(username, password string) *Basic {
	return &Basic{Username: username, Password: password, headerName: "Proxy-Authorization"}
}

func (b *Basic) Authenticate(challenges []Challenge, _ Request, _ bool) (Credentials, bool) {
	for _, c := range challenges {
		if !equalFoldASCII(c.Scheme, "Basic") {
			continue
		}
		token := base64.StdEncoding.EncodeToString([]byte(b.Username + ":" + b.Password))
		return Credentials{Header: b.headerName, Value: "Basic " + token}, true
	}
	return Credentials{}, false
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

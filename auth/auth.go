// Package auth implements the user and proxy Authenticator surface (§6):
// responding to 401/407 challenges with credentials, per RFC 7235.
package auth

import (
	"strings"
)

// Challenge is one parsed WWW-Authenticate/Proxy-Authenticate entry.
type Challenge struct {
	Scheme string
	Realm  string
	Params map[string]string
}

// ParseChallenges splits one or more comma-joined WWW-Authenticate (or
// Proxy-Authenticate) header values into individual Challenges. Each
// challenge's own Params may themselves be comma-separated, so splitting
// is scheme-aware rather than a blind comma split.
func ParseChallenges(values []string) []Challenge {
	var out []Challenge
	for _, v := range values {
		out = append(out, parseChallengeValue(v)...)
	}
	return out
}

func parseChallengeValue(v string) []Challenge {
	var challenges []Challenge
	rest := strings.TrimSpace(v)
	for len(rest) > 0 {
		scheme, tail := splitToken(rest)
		if scheme == "" {
			break
		}
		params := map[string]string{}
		tail = strings.TrimSpace(tail)
		for len(tail) > 0 {
			// Stop at the next scheme token (an unquoted word followed by
			// a space and then a token= or end, per RFC 7235's ambiguous
			// multi-challenge grammar); we only need the common case of
			// one challenge per scheme name actually used by this client
			// (Basic, Digest).
			if looksLikeSchemeStart(tail) {
				break
			}
			key, value, remainder, ok := parseParam(tail)
			if !ok {
				break
			}
			params[strings.ToLower(key)] = value
			tail = strings.TrimSpace(remainder)
		}
		challenges = append(challenges, Challenge{Scheme: scheme, Realm: params["realm"], Params: params})
		rest = tail
	}
	return challenges
}

func splitToken(s string) (token, rest string) {
	i := 0
	for i < len(s) && !isSpace(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

func looksLikeSchemeStart(s string) bool {
	switch {
	case strings.HasPrefix(s, "Basic "), strings.HasPrefix(s, "Digest "), strings.HasPrefix(s, "Bearer "):
		return true
	default:
		return false
	}
}

// parseParam consumes one key=value (value optionally quoted), followed
// by an optional comma, returning the remainder.
func parseParam(s string) (key, value, rest string, ok bool) {
	eq := strings.IndexByte(s, '=')
	if eq < 0 {
		return "", "", s, false
	}
	key = strings.TrimSpace(s[:eq])
	rest = s[eq+1:]
	if len(rest) > 0 && rest[0] == '"' {
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			return "", "", "", false
		}
		value = rest[1 : 1+end]
		rest = rest[1+end+1:]
	} else {
		comma := strings.IndexByte(rest, ',')
		if comma < 0 {
			value = strings.TrimSpace(rest)
			rest = ""
		} else {
			value = strings.TrimSpace(rest[:comma])
			rest = rest[comma:]
		}
	}
	rest = strings.TrimPrefix(strings.TrimSpace(rest), ",")
	return key, value, rest, true
}

// Credentials is what an Authenticator resolves a challenge to: the header
// name to set ("Authorization" or "Proxy-Authorization") and its value.
type Credentials struct {
	Header string
	Value  string
}

// Request is the minimal subset of the failed call an Authenticator needs
// to compute a response: the method and request target (for Digest's
// request-URI and qop=auth hashing).
type Request struct {
	Method string
	URI    string
}

// Authenticator resolves a 401/407 challenge into credentials, or returns
// ok=false to decline (e.g. no credentials configured, or this challenge
// was already retried once).
type Authenticator interface {
	Authenticate(challenges []Challenge, req Request, isProxy bool) (Credentials, bool)
}

// None never authenticates.
type None struct{}

func (None) Authenticate([]Challenge, Request, bool) (Credentials, bool) { return Credentials{}, false }

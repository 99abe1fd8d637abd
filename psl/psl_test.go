package psl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// seedScenarioRules reproduces the worked example from the public suffix
// seed scenario: rules com, *.jayo.com, *.jp, and exception !my.jayo.jp.
func seedScenarioRules() *Rules {
	return ParseRules([]string{
		"com",
		"*.jayo.com",
		"*.jp",
		"!my.jayo.jp",
	})
}

func TestPublicSuffixSeedScenario(t *testing.T) {
	r := seedScenarioRules()

	assert.Equal(t, "com", r.PublicSuffix("foo.example.com"))
	assert.Equal(t, "my.jayo.com", r.PublicSuffix("foo.my.jayo.com"))
	// my.jayo.jp is carved out by the exception rule: the public suffix is
	// the matched rule minus its leftmost label.
	assert.Equal(t, "jayo.jp", r.PublicSuffix("my.jayo.jp"))
}

func TestEffectiveTLDPlusOneSeedScenario(t *testing.T) {
	r := seedScenarioRules()

	assert.Equal(t, "example.com", r.EffectiveTLDPlusOne("foo.example.com"))
	assert.Equal(t, "foo.my.jayo.com", r.EffectiveTLDPlusOne("foo.my.jayo.com"))
	assert.Equal(t, "my.jayo.jp", r.EffectiveTLDPlusOne("my.jayo.jp"))
}

func TestParseRulesSkipsCommentsAndBlankLines(t *testing.T) {
	r := ParseRules([]string{
		"// comment",
		"",
		"com",
		"  ",
		"*.example.com",
	})
	assert.True(t, r.exact["com"])
	assert.True(t, r.wildcard["example.com"])
	assert.Len(t, r.exceptions, 0)
}

func TestPublicSuffixDefaultsToRightmostLabel(t *testing.T) {
	r := ParseRules(nil)
	assert.Equal(t, "zz", r.PublicSuffix("example.zz"))
}

func TestPublicSuffixExactBeatsImplicitDefault(t *testing.T) {
	r := ParseRules([]string{"co.uk"})
	assert.Equal(t, "co.uk", r.PublicSuffix("example.co.uk"))
	assert.Equal(t, "example.co.uk", r.EffectiveTLDPlusOne("www.example.co.uk"))
}

func TestEffectiveTLDPlusOneOfBareSuffixReturnsItself(t *testing.T) {
	r := seedScenarioRules()
	assert.Equal(t, "com", r.EffectiveTLDPlusOne("com"))
}

func TestDefaultLoadsEmbeddedList(t *testing.T) {
	r := Default()
	assert.True(t, r.exact["com"])
	assert.Equal(t, "example.com", r.EffectiveTLDPlusOne("foo.example.com"))
	// *.github.io is a wildcard rule: each user's subdomain is itself a
	// public suffix, so github.io sites don't share a cookie scope.
	assert.Equal(t, "user.github.io", r.PublicSuffix("user.github.io"))
	assert.Equal(t, "www.user.github.io", r.EffectiveTLDPlusOne("www.user.github.io"))
}

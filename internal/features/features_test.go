package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/phishguard/internal/core"
)

var testBrands = []core.TrustedBrand{
	{Name: "google", Domain: "google.com"},
	{Name: "paypal", Domain: "paypal.com"},
	{Name: "apple", Domain: "apple.com"},
}

func TestShannonEntropy(t *testing.T) {
	assert.Equal(t, 0.0, ShannonEntropy(""))
	assert.Equal(t, 0.0, ShannonEntropy("aaaa"))
	assert.InDelta(t, 1.0, ShannonEntropy("abab"), 1e-9)
	assert.InDelta(t, 2.0, ShannonEntropy("abcd"), 1e-9)
	assert.InDelta(t, math.Log2(16), ShannonEntropy("0123456789abcdef"), 1e-9)
}

func TestHostEntropyIgnoresSeparators(t *testing.T) {
	assert.InDelta(t, ShannonEntropy("abcd"), HostEntropy("a.b-c.d"), 1e-9)
	assert.Greater(t, HostEntropy("x7k2q9zp4mw8rj3v.tk"), HighEntropyThreshold)
	assert.Less(t, HostEntropy("example.com"), HighEntropyThreshold)
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"paypal", "paypal", 0},
		{"paypa1", "paypal", 1},
		{"paypall", "paypal", 1},
		{"paypl", "paypal", 1},
		{"pyapal", "paypal", 2},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EditDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, tt.want, EditDistance(tt.b, tt.a), "%q vs %q", tt.b, tt.a)
	}
}

func TestFindTyposquat(t *testing.T) {
	brand, d := FindTyposquat("paypa1", testBrands)
	require.NotNil(t, brand)
	assert.Equal(t, "paypal", brand.Name)
	assert.Equal(t, 1, d)

	brand, _ = FindTyposquat("paypal", testBrands)
	assert.Nil(t, brand, "exact brand name is not a typosquat")

	brand, _ = FindTyposquat("wikipedia", testBrands)
	assert.Nil(t, brand)

	brand, _ = FindTyposquat("", testBrands)
	assert.Nil(t, brand)
}

func TestFindTyposquatFirstBrandWins(t *testing.T) {
	brands := []core.TrustedBrand{
		{Name: "abcd", Domain: "abcd.com"},
		{Name: "abce", Domain: "abce.com"},
	}
	brand, d := FindTyposquat("abcf", brands)
	require.NotNil(t, brand)
	assert.Equal(t, "abcd", brand.Name)
	assert.Equal(t, 1, d)
}

func TestFindImpersonation(t *testing.T) {
	brand := FindImpersonation("paypal.secure-login.com", testBrands)
	require.NotNil(t, brand)
	assert.Equal(t, "paypal", brand.Name)

	assert.Nil(t, FindImpersonation("paypal.com", testBrands))
	assert.Nil(t, FindImpersonation("www.paypal.com", testBrands))
	assert.Nil(t, FindImpersonation("example.org", testBrands))

	brand = FindImpersonation("evilpaypal.com", testBrands)
	require.NotNil(t, brand)
	assert.Equal(t, "paypal", brand.Name)
}

func TestMatchKeywordsOrderAndDedup(t *testing.T) {
	tables := []KeywordTable{
		{Name: "a", Words: []string{"verify", "login", "verify"}},
		{Name: "b", Words: []string{"login"}},
	}
	hits := MatchKeywords("login then verify then login", tables)
	assert.Equal(t, []core.KeywordHit{
		{Table: "a", Keyword: "verify"},
		{Table: "a", Keyword: "login"},
		{Table: "b", Keyword: "login"},
	}, hits)

	assert.Empty(t, MatchKeywords("nothing here", tables))
}

func TestExtractURL(t *testing.T) {
	e := NewExtractor(testBrands)

	fs := e.Extract(core.NewURLInput("http://192.168.1.1/login").Normalize())
	assert.Equal(t, "http", fs.Scheme)
	assert.Equal(t, "192.168.1.1", fs.Host)
	assert.True(t, fs.HostIsIP)
	assert.Equal(t, []core.KeywordHit{{Table: TablePhishing, Keyword: "login"}}, fs.KeywordHits)
	assert.Nil(t, fs.TyposquatBrand)

	fs = e.Extract(core.NewURLInput("  HTTPS://WWW.Sub.Example.co.uk/path  ").Normalize())
	assert.Equal(t, "https", fs.Scheme)
	assert.Equal(t, "sub.example.co.uk", fs.Host)
	assert.Equal(t, "co.uk", fs.PublicSuffix)
	assert.Equal(t, "example.co.uk", fs.RegistrableDomain)
	assert.Equal(t, "example", fs.BaseName)
	assert.Equal(t, 3, fs.SubdomainCount)
	assert.False(t, fs.HostIsIP)
}

func TestExtractURLDefaultsScheme(t *testing.T) {
	e := NewExtractor(testBrands)

	fs := e.Extract(core.NewURLInput("paypa1.com").Normalize())
	assert.Equal(t, "http", fs.Scheme)
	assert.Equal(t, "paypa1.com", fs.Host)
	assert.Equal(t, "paypa1", fs.BaseName)
	assert.Equal(t, len("paypa1.com"), fs.Length)
	require.NotNil(t, fs.TyposquatBrand)
	assert.Equal(t, "paypal", fs.TyposquatBrand.Name)
	assert.Equal(t, 1, fs.TyposquatDistance)
}

func TestExtractURLStructuralFlags(t *testing.T) {
	e := NewExtractor(testBrands)

	fs := e.Extract(core.NewURLInput("http://user@secure-paypal.evil.xyz//redirect").Normalize())
	assert.True(t, fs.HasAtSymbol)
	assert.Equal(t, "secure-paypal.evil.xyz", fs.Host)
	assert.True(t, fs.HasHyphenInDomain)
	assert.True(t, fs.SuspiciousTLD)
	assert.True(t, fs.EmbeddedRedirect)
	require.NotNil(t, fs.ImpersonatedBrand)
	assert.Equal(t, "paypal", fs.ImpersonatedBrand.Name)

	fs = e.Extract(core.NewURLInput("http://xn--pypal-4ve.com").Normalize())
	assert.True(t, fs.PunycodeHost)
}

func TestExtractMalformedNeverPanics(t *testing.T) {
	e := NewExtractor(testBrands)
	for _, in := range []string{"://", "http://", "%%%", "http://[::1", "a b c", "http://exa mple.com/x"} {
		assert.NotPanics(t, func() {
			e.Extract(core.NewURLInput(in).Normalize())
		}, in)
	}
}

func TestSplitURLBackslashEndsAuthority(t *testing.T) {
	tests := []struct {
		raw, scheme, host string
	}{
		{`http://evil-login.xyz\@google.com/verify`, "http", "evil-login.xyz"},
		{`https://evil.top\\paypal.com`, "https", "evil.top"},
		{"http://user@mysite.com/path", "http", "mysite.com"},
	}
	for _, tt := range tests {
		scheme, host := splitURL(tt.raw)
		assert.Equal(t, tt.scheme, scheme, tt.raw)
		assert.Equal(t, tt.host, host, tt.raw)
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := NewExtractor(testBrands)
	in := core.NewURLInput("http://login-verify.paypa1-secure.top/account?x=1").Normalize()
	assert.Equal(t, e.Extract(in), e.Extract(in))
}

func TestExtractEmail(t *testing.T) {
	e := NewExtractor(testBrands)

	in := core.NewEmailInput(
		"PayPal Service <service@paypa1.com>",
		"URGENT: your PayPal account is suspended",
		"Click the link to confirm your account.",
	).Normalize()
	fs := e.Extract(in)

	assert.Equal(t, core.KindEmail, fs.Kind)
	assert.Equal(t, "paypa1.com", fs.Host)
	require.NotNil(t, fs.TyposquatBrand)
	assert.Equal(t, "paypal", fs.TyposquatBrand.Name)
	require.NotNil(t, fs.MentionedBrand)
	assert.Equal(t, "paypal", fs.MentionedBrand.Name)

	assert.Contains(t, fs.KeywordHits, core.KeywordHit{Table: TableUrgency, Keyword: "urgent"})
	assert.Contains(t, fs.KeywordHits, core.KeywordHit{Table: TableSocial, Keyword: "confirm your account"})
	assert.Contains(t, fs.KeywordHits, core.KeywordHit{Table: TableCallToAction, Keyword: "click"})
	assert.Equal(t, TableUrgency, fs.KeywordHits[0].Table)
}

func TestExtractEmailLegitimateSender(t *testing.T) {
	e := NewExtractor(testBrands)
	fs := e.Extract(core.NewEmailInput("service@paypal.com", "Your paypal receipt", "thanks").Normalize())
	assert.Nil(t, fs.MentionedBrand)
	assert.Nil(t, fs.ImpersonatedBrand)
	assert.Nil(t, fs.TyposquatBrand)
}

package features

import (
	"net"
	"net/mail"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/mikey/phishguard/internal/core"
)

// Extractor turns normalized inputs into FeatureSets. It never fails:
// malformed input yields a best-effort parse.
type Extractor struct {
	brands []core.TrustedBrand
}

// NewExtractor creates an extractor matching against brands in list order
func NewExtractor(brands []core.TrustedBrand) *Extractor {
	return &Extractor{brands: append([]core.TrustedBrand(nil), brands...)}
}

// Extract computes the feature set for in
func (e *Extractor) Extract(in core.NormalizedInput) *core.FeatureSet {
	if in.Kind == core.KindEmail {
		return e.extractEmail(in)
	}
	return e.extractURL(in.Text)
}

func (e *Extractor) extractURL(text string) *core.FeatureSet {
	fs := &core.FeatureSet{
		Kind:        core.KindURL,
		Length:      len(text),
		HasAtSymbol: strings.Contains(text, "@"),
	}

	raw := text
	if !hasScheme(raw) {
		raw = "http://" + raw
	}
	scheme, host := splitURL(raw)
	fs.Scheme = scheme
	fs.EmbeddedRedirect = strings.Contains(raw[strings.Index(raw, "://")+3:], "//")

	describeHost(fs, host)
	fs.KeywordHits = MatchKeywords(text, URLKeywordTables)
	e.matchBrands(fs)
	return fs
}

func (e *Extractor) extractEmail(in core.NormalizedInput) *core.FeatureSet {
	fs := &core.FeatureSet{
		Kind:   core.KindEmail,
		Length: len(in.Text),
	}

	describeHost(fs, senderDomain(in.Sender))
	fs.KeywordHits = MatchKeywords(in.Text, EmailKeywordTables)
	e.matchBrands(fs)

	if fs.Host != "" {
		mentioned := FindBrandMention(in.Subject+" "+in.Body, e.brands)
		if mentioned != nil && !OwnsHost(mentioned.Domain, fs.Host) {
			fs.MentionedBrand = mentioned
		}
	}
	return fs
}

func (e *Extractor) matchBrands(fs *core.FeatureSet) {
	if fs.HostIsIP {
		return
	}
	fs.ImpersonatedBrand = FindImpersonation(fs.Host, e.brands)
	fs.TyposquatBrand, fs.TyposquatDistance = FindTyposquat(fs.BaseName, e.brands)
}

// describeHost fills every host-derived field
func describeHost(fs *core.FeatureSet, host string) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	host = strings.TrimPrefix(host, "www.")

	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		if ascii != host {
			fs.PunycodeHost = true
		}
		host = ascii
	}
	if strings.Contains(host, "xn--") {
		fs.PunycodeHost = true
	}

	fs.Host = host
	if host == "" {
		return
	}
	fs.HostIsIP = net.ParseIP(host) != nil
	fs.SubdomainCount = strings.Count(host, ".")
	fs.HasHyphenInDomain = strings.Contains(host, "-")
	fs.Entropy = HostEntropy(host)

	if fs.HostIsIP {
		return
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	fs.PublicSuffix = suffix
	fs.RegistrableDomain = host
	if registrable, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		fs.RegistrableDomain = registrable
	}
	fs.BaseName = strings.TrimSuffix(fs.RegistrableDomain, "."+suffix)
	_, fs.SuspiciousTLD = suspiciousTLDs[suffix]
}

// hasScheme reports whether s starts with "<scheme>://"
func hasScheme(s string) bool {
	idx := strings.Index(s, "://")
	if idx <= 0 {
		return false
	}
	for i, r := range s[:idx] {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// splitURL returns the scheme and host of raw, falling back to manual
// slicing when net/url rejects the input. A backslash ends the authority,
// as it does in browsers, so "a.xyz\@b.com" is served by a.xyz.
func splitURL(raw string) (string, string) {
	raw = strings.ReplaceAll(raw, "\\", "/")
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Scheme, u.Hostname()
	}

	idx := strings.Index(raw, "://")
	scheme, rest := raw[:idx], raw[idx+3:]
	if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
		rest = rest[:cut]
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	if h, _, err := net.SplitHostPort(rest); err == nil {
		rest = h
	}
	return scheme, strings.Trim(rest, "[]")
}

// senderDomain extracts the domain of an email sender such as
// "PayPal <service@paypal.com>"
func senderDomain(sender string) string {
	address := sender
	if addr, err := mail.ParseAddress(sender); err == nil {
		address = addr.Address
	}
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.Trim(address[at+1:], " <>\"'")
}

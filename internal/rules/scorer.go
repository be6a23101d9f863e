package rules

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/features"
	"github.com/mikey/phishguard/internal/whitelist"
)

// Reason texts with a fixed wording
const (
	ReasonEmptyURL      = "Empty URL input"
	ReasonEmptyEmail    = "Empty email content"
	ReasonTrustedDomain = "Trusted domain"
	ReasonNoIndicators  = "No suspicious indicators detected"
)

var keywordReasons = map[core.InputKind]map[string]string{
	core.KindURL: {
		features.TablePhishing: "Suspicious keyword in URL: %s",
		features.TableTestDemo: "Possible test/demo keyword in URL: %s",
	},
	core.KindEmail: {
		features.TableUrgency:      "Urgency language detected: %s",
		features.TableSocial:       "Social-engineering phrase detected: %s",
		features.TableCallToAction: "Call-to-click/download detected: %s",
		features.TablePhishing:     "Suspicious keyword in email: %s",
	},
}

// Scorer is the weighted heuristic rule engine
type Scorer struct {
	extractor  *features.Extractor
	whitelist  *whitelist.Checker
	weights    Weights
	thresholds core.Thresholds
	logger     *zap.Logger
}

// NewScorer creates a new rule scorer
func NewScorer(
	extractor *features.Extractor,
	checker *whitelist.Checker,
	weights Weights,
	thresholds core.Thresholds,
	logger *zap.Logger,
) *Scorer {
	return &Scorer{
		extractor:  extractor,
		whitelist:  checker,
		weights:    weights,
		thresholds: thresholds,
		logger:     logger,
	}
}

// tally accumulates the score and the explanation trail
type tally struct {
	score   float64
	reasons []string
}

func (t *tally) add(weight float64, format string, args ...any) {
	t.score += weight
	t.reasons = append(t.reasons, fmt.Sprintf(format, args...))
}

// Score evaluates in. The whitelist is checked before any heuristic and is final.
func (s *Scorer) Score(in core.NormalizedInput) (*core.RuleEvaluation, error) {
	switch in.Kind {
	case core.KindURL:
		if in.Text == "" {
			return decisive(ReasonEmptyURL, nil), nil
		}
	case core.KindEmail:
		if in.Text == "" {
			return decisive(ReasonEmptyEmail, nil), nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown input kind %d", core.ErrInvalidInput, in.Kind)
	}

	fs := s.extractor.Extract(in)
	if s.whitelist != nil && s.whitelist.IsTrustedHost(fs.Host) {
		s.logger.Debug("Skipping rule checks for trusted domain",
			zap.String("host", fs.Host),
			zap.String("action", "whitelist_bypass"))
		return decisive(ReasonTrustedDomain, fs), nil
	}

	var t tally
	if in.Kind == core.KindEmail {
		s.scoreEmail(&t, fs)
	} else {
		s.scoreURL(&t, fs)
	}

	if len(t.reasons) == 0 {
		t.reasons = []string{ReasonNoIndicators}
	}
	score := core.FinalizeScore(t.score)

	return &core.RuleEvaluation{
		Score:    score,
		Status:   s.thresholds.Classify(score),
		Reasons:  t.reasons,
		Features: fs,
	}, nil
}

// scoreURL runs the URL checks in their contractual order:
// IP, scheme, length, subdomains, @, hyphen, keywords, entropy,
// impersonation, typosquat, then the supplementary checks.
func (s *Scorer) scoreURL(t *tally, fs *core.FeatureSet) {
	w := s.weights

	if fs.HostIsIP {
		t.add(w.IPHost, "URL uses an IP address instead of a domain name")
	}
	switch fs.Scheme {
	case "https":
	case "http":
		t.add(w.InsecureScheme, "URL is using HTTP (not HTTPS)")
	default:
		t.add(w.InsecureScheme, "URL uses a non-HTTPS scheme: %s", fs.Scheme)
	}
	if fs.Length > LongURLLength {
		t.add(w.LongURL, "URL is unusually long (%d characters)", fs.Length)
	}
	if !fs.HostIsIP && fs.SubdomainCount >= ManySubdomainDots {
		t.add(w.ManySubdomains, "Many subdomains (can be suspicious)")
	}
	if fs.HasAtSymbol {
		t.add(w.AtSymbol, "URL contains '@' (deception pattern)")
	}
	if fs.HasHyphenInDomain {
		t.add(w.HyphenInHost, "Domain contains a hyphen")
	}
	s.scoreKeywords(t, core.KindURL, fs, w.URLKeywords)
	s.scoreBrandSignals(t, fs, "Domain")

	if fs.SuspiciousTLD {
		t.add(w.SuspiciousTLD, "Suspicious top-level domain: .%s", fs.PublicSuffix)
	}
	if fs.PunycodeHost {
		t.add(w.PunycodeHost, "Domain uses punycode/IDN characters")
	}
	if fs.EmbeddedRedirect {
		t.add(w.EmbeddedRedirect, "URL contains multiple '//' (suspicious)")
	}
}

// scoreEmail runs the same sequence on the sender domain; scheme, length
// and '@' have no meaning for an email and are skipped.
func (s *Scorer) scoreEmail(t *tally, fs *core.FeatureSet) {
	w := s.weights

	if fs.HostIsIP {
		t.add(w.IPHost, "Sender domain is an IP address")
	}
	if !fs.HostIsIP && fs.SubdomainCount >= ManySubdomainDots {
		t.add(w.ManySubdomains, "Sender domain has many subdomains")
	}
	if fs.HasHyphenInDomain {
		t.add(w.HyphenInHost, "Sender domain contains a hyphen")
	}
	s.scoreKeywords(t, core.KindEmail, fs, w.EmailKeywords)
	s.scoreBrandSignals(t, fs, "Sender domain")

	if fs.SuspiciousTLD {
		t.add(w.SuspiciousTLD, "Suspicious top-level domain: .%s", fs.PublicSuffix)
	}
	if fs.PunycodeHost {
		t.add(w.PunycodeHost, "Sender domain uses punycode/IDN characters")
	}
	if fs.MentionedBrand != nil {
		t.add(w.BrandMismatch, "Brand mention doesn't match sender domain (possible impersonation of %s)", fs.MentionedBrand.Name)
	}
}

func (s *Scorer) scoreKeywords(t *tally, kind core.InputKind, fs *core.FeatureSet, weights map[string]float64) {
	for _, hit := range fs.KeywordHits {
		format, ok := keywordReasons[kind][hit.Table]
		if !ok {
			format = "Suspicious keyword: %s"
		}
		t.add(weights[hit.Table], format, hit.Keyword)
	}
}

func (s *Scorer) scoreBrandSignals(t *tally, fs *core.FeatureSet, subject string) {
	w := s.weights

	if fs.Entropy > features.HighEntropyThreshold {
		t.add(w.HighEntropy, "%s looks randomly generated (entropy %.2f)", subject, fs.Entropy)
	}
	if fs.ImpersonatedBrand != nil {
		t.add(w.Impersonation, "Possible brand impersonation: %s (official domain is %s)",
			fs.ImpersonatedBrand.Name, fs.ImpersonatedBrand.Domain)
	}
	if fs.TyposquatBrand != nil {
		t.add(w.Typosquat, "Possible typosquatting of %s (edit distance %d)",
			fs.TyposquatBrand.Name, fs.TyposquatDistance)
	}
}

func decisive(reason string, fs *core.FeatureSet) *core.RuleEvaluation {
	return &core.RuleEvaluation{
		Score:    0.0,
		Status:   core.StatusSafe,
		Reasons:  []string{reason},
		Features: fs,
		Decisive: true,
	}
}

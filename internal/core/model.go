package core

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// InputKind tags the variant held by an AnalysisInput
type InputKind int

const (
	// KindURL is a single URL to analyze
	KindURL InputKind = iota
	// KindEmail is an email made of sender, subject and body
	KindEmail
)

// String returns the wire name of the kind
func (k InputKind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindEmail:
		return "email"
	default:
		return "unknown"
	}
}

// AnalysisInput is the validated request handed to the engine
type AnalysisInput struct {
	Kind    InputKind
	URL     string
	Sender  string
	Subject string
	Body    string
}

// NewURLInput creates an input for the URL path
func NewURLInput(url string) AnalysisInput {
	return AnalysisInput{Kind: KindURL, URL: url}
}

// NewEmailInput creates an input for the email path
func NewEmailInput(sender, subject, body string) AnalysisInput {
	return AnalysisInput{Kind: KindEmail, Sender: sender, Subject: subject, Body: body}
}

// NormalizedInput is an AnalysisInput after lower-casing and trimming.
// Text is the single string the engine scores: the URL itself, or the
// email fields joined by spaces.
type NormalizedInput struct {
	Kind    InputKind
	Text    string
	Sender  string
	Subject string
	Body    string
}

// Normalize lower-cases and trims every field and builds the combined text
func (in AnalysisInput) Normalize() NormalizedInput {
	if in.Kind == KindEmail {
		sender := normalizeField(in.Sender)
		subject := normalizeField(in.Subject)
		body := normalizeField(in.Body)
		return NormalizedInput{
			Kind:    KindEmail,
			Text:    strings.TrimSpace(sender + " " + subject + " " + body),
			Sender:  sender,
			Subject: subject,
			Body:    body,
		}
	}
	return NormalizedInput{Kind: KindURL, Text: normalizeField(in.URL)}
}

func normalizeField(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}

// Status is the discrete risk bucket
type Status string

const (
	StatusSafe     Status = "safe"
	StatusLowRisk  Status = "low_risk"
	StatusHighRisk Status = "high_risk"
)

// MaxScore is the ceiling of every risk score
const MaxScore = 0.99

// FinalizeScore clamps score into [0, MaxScore] and rounds it to 2 decimals
func FinalizeScore(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	score = math.Min(score, MaxScore)
	return math.Round(score*100) / 100
}

// Thresholds maps a score onto a Status. Bounds are inclusive unless
// Strict is set, in which case a score must exceed them.
type Thresholds struct {
	High   float64
	Low    float64
	Strict bool
}

// Classify returns the status for score
func (t Thresholds) Classify(score float64) Status {
	switch {
	case t.reaches(score, t.High):
		return StatusHighRisk
	case t.reaches(score, t.Low):
		return StatusLowRisk
	default:
		return StatusSafe
	}
}

func (t Thresholds) reaches(score, bound float64) bool {
	if t.Strict {
		return score > bound
	}
	return score >= bound
}

// TrustedBrand is a brand name and the domain it legitimately owns
type TrustedBrand struct {
	Name   string `mapstructure:"name"`
	Domain string `mapstructure:"domain"`
}

// KeywordHit records one matched keyword and the table it came from
type KeywordHit struct {
	Table   string
	Keyword string
}

// FeatureSet holds the structural signals extracted from one input
type FeatureSet struct {
	Kind              InputKind
	Scheme            string
	Host              string
	RegistrableDomain string
	BaseName          string
	PublicSuffix      string
	HostIsIP          bool
	Length            int
	SubdomainCount    int
	HasAtSymbol       bool
	HasHyphenInDomain bool
	Entropy           float64
	KeywordHits       []KeywordHit

	// TyposquatDistance is only meaningful when TyposquatBrand is set
	TyposquatDistance int
	TyposquatBrand    *TrustedBrand
	ImpersonatedBrand *TrustedBrand

	SuspiciousTLD    bool
	PunycodeHost     bool
	EmbeddedRedirect bool
	MentionedBrand   *TrustedBrand
}

// RuleEvaluation is the outcome of the rule scorer.
// A decisive evaluation (empty input, trusted domain) is final and must
// not be blended with the classifier.
type RuleEvaluation struct {
	Score    float64
	Status   Status
	Reasons  []string
	Features *FeatureSet
	Decisive bool
}

// ResultMeta carries the component sub-scores of a hybrid verdict
type ResultMeta struct {
	RuleScore     float64 `json:"ruleScore"`
	RuleStatus    Status  `json:"ruleStatus"`
	MLProbability float64 `json:"mlProbability"`
	RuleWeight    float64 `json:"ruleWeight"`
	MLWeight      float64 `json:"mlWeight"`
}

// RiskResult is the final verdict returned to callers
type RiskResult struct {
	Score   float64     `json:"riskScore"`
	Status  Status      `json:"status"`
	Reasons []string    `json:"reasons"`
	Meta    *ResultMeta `json:"meta,omitempty"`
}

// Clone returns a deep copy so cached values cannot be mutated by callers
func (r *RiskResult) Clone() *RiskResult {
	if r == nil {
		return nil
	}
	out := &RiskResult{
		Score:   r.Score,
		Status:  r.Status,
		Reasons: append([]string(nil), r.Reasons...),
	}
	if r.Meta != nil {
		meta := *r.Meta
		out.Meta = &meta
	}
	return out
}

// FallbackResult is the conservative verdict frontends return when the
// engine fails. The error text is embedded in the reasons.
func FallbackResult(err error) *RiskResult {
	return &RiskResult{
		Score:   0.0,
		Status:  StatusSafe,
		Reasons: []string{"Server error: " + err.Error()},
	}
}

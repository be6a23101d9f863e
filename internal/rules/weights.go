package rules

import "github.com/mikey/phishguard/internal/features"

const (
	// LongURLLength is the length above which a URL counts as unusually long
	LongURLLength = 75
	// ManySubdomainDots is the host dot count at which subdomains become excessive
	ManySubdomainDots = 3
)

// Weights is the canonical weight table of the rule scorer. Every
// triggered heuristic adds its weight once; keyword weights apply per hit.
type Weights struct {
	IPHost         float64
	InsecureScheme float64
	LongURL        float64
	ManySubdomains float64
	AtSymbol       float64
	HyphenInHost   float64

	// URLKeywords and EmailKeywords are keyed by keyword table name
	URLKeywords   map[string]float64
	EmailKeywords map[string]float64

	HighEntropy   float64
	Impersonation float64
	Typosquat     float64

	SuspiciousTLD    float64
	PunycodeHost     float64
	EmbeddedRedirect float64
	BrandMismatch    float64
}

// DefaultWeights returns the weight table used in production
func DefaultWeights() Weights {
	return Weights{
		IPHost:         0.30,
		InsecureScheme: 0.10,
		LongURL:        0.06,
		ManySubdomains: 0.08,
		AtSymbol:       0.15,
		HyphenInHost:   0.05,
		URLKeywords: map[string]float64{
			features.TablePhishing: 0.12,
			features.TableTestDemo: 0.06,
		},
		EmailKeywords: map[string]float64{
			features.TableUrgency:      0.15,
			features.TableSocial:       0.12,
			features.TableCallToAction: 0.08,
			features.TablePhishing:     0.06,
		},
		HighEntropy:      0.15,
		Impersonation:    0.25,
		Typosquat:        0.30,
		SuspiciousTLD:    0.10,
		PunycodeHost:     0.10,
		EmbeddedRedirect: 0.08,
		BrandMismatch:    0.20,
	}
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/mikey/phishguard/internal/core"
)

// Supported vectorizer analyzers
const (
	AnalyzerCharWB = "char_wb"
	AnalyzerChar   = "char"
)

// Artifact is the frozen classifier exported by the training pipeline.
// It is immutable once loaded and safe for concurrent reads.
type Artifact struct {
	Version    string           `json:"version"`
	Vectorizer VectorizerParams `json:"vectorizer"`
	Classifier LogisticParams   `json:"classifier"`
}

// VectorizerParams describes a character n-gram TF-IDF vectorizer
type VectorizerParams struct {
	Analyzer    string         `json:"analyzer"`
	NgramRange  [2]int         `json:"ngram_range"`
	Lowercase   bool           `json:"lowercase"`
	SublinearTF bool           `json:"sublinear_tf"`
	Norm        string         `json:"norm"`
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
}

// LogisticParams holds a binary logistic regression over the vectorizer output
type LogisticParams struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// LoadArtifact reads and validates the artifact at path. A missing file
// yields core.ErrModelUnavailable, anything unreadable core.ErrCorruptArtifact.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrModelUnavailable, path)
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", core.ErrModelUnavailable, path, err)
	}
	return ParseArtifact(data)
}

// ParseArtifact decodes and validates an artifact
func ParseArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptArtifact, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the internal consistency of the artifact
func (a *Artifact) Validate() error {
	v := a.Vectorizer
	switch v.Analyzer {
	case AnalyzerCharWB, AnalyzerChar:
	default:
		return corrupt("unsupported analyzer %q", v.Analyzer)
	}

	lo, hi := v.NgramRange[0], v.NgramRange[1]
	if lo < 1 || hi < lo || hi > 16 {
		return corrupt("invalid ngram range [%d, %d]", lo, hi)
	}

	switch v.Norm {
	case "", "l1", "l2":
	default:
		return corrupt("unsupported norm %q", v.Norm)
	}

	n := len(v.Vocabulary)
	if n == 0 {
		return corrupt("empty vocabulary")
	}
	if len(v.IDF) != n {
		return corrupt("idf has %d entries, vocabulary has %d", len(v.IDF), n)
	}
	if len(a.Classifier.Coefficients) != n {
		return corrupt("classifier has %d coefficients, vocabulary has %d", len(a.Classifier.Coefficients), n)
	}

	seen := make([]bool, n)
	for term, idx := range v.Vocabulary {
		if idx < 0 || idx >= n {
			return corrupt("term %q has out-of-range index %d", term, idx)
		}
		if seen[idx] {
			return corrupt("index %d is assigned twice", idx)
		}
		seen[idx] = true
	}

	if !finite(a.Classifier.Intercept) {
		return corrupt("intercept is not finite")
	}
	for i := 0; i < n; i++ {
		if !finite(v.IDF[i]) || !finite(a.Classifier.Coefficients[i]) {
			return corrupt("non-finite weight at index %d", i)
		}
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrCorruptArtifact, fmt.Sprintf(format, args...))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

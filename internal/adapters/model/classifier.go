package model

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
)

// Classifier is the core.Classifier backed by a frozen logistic model
type Classifier struct {
	artifact   *Artifact
	vectorizer *Vectorizer
	logger     *zap.Logger
}

// NewClassifier creates a classifier from a loaded artifact
func NewClassifier(artifact *Artifact, logger *zap.Logger) (*Classifier, error) {
	if artifact == nil {
		return nil, fmt.Errorf("%w: no artifact", core.ErrModelUnavailable)
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		artifact:   artifact,
		vectorizer: NewVectorizer(artifact.Vectorizer),
		logger:     logger,
	}, nil
}

// Predict returns the phishing probability of text in [0, 1]
func (c *Classifier) Predict(ctx context.Context, text string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	vec := c.vectorizer.Transform(text)
	z := c.artifact.Classifier.Intercept
	for i, idx := range vec.Indices {
		z += c.artifact.Classifier.Coefficients[idx] * vec.Values[i]
	}

	p := sigmoid(z)
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: non-finite decision value", core.ErrClassification)
	}

	c.logger.Debug("Classified text",
		zap.Int("features", len(vec.Indices)),
		zap.Float64("decision", z),
		zap.Float64("probability", p))
	return p, nil
}

// VocabularySize returns the number of features known to the model
func (c *Classifier) VocabularySize() int {
	return c.vectorizer.VocabularySize()
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ServiceOptions holds the tunables of the detection service
type ServiceOptions struct {
	CacheEnabled bool
	MaxBodySize  int
}

// DetectionService is the core service for phishing detection. It owns the
// immutable classifier handle and the injected cache for its whole lifetime.
type DetectionService struct {
	scorer     RuleScorer
	classifier Classifier
	merger     Merger
	cache      CacheRepository
	preparer   TextPreparer
	logger     *zap.Logger
	opts       ServiceOptions

	// inflight coalesces concurrent analyses of the same content
	inflight singleflight.Group
}

// NewDetectionService creates a new detection service
func NewDetectionService(
	scorer RuleScorer,
	classifier Classifier,
	merger Merger,
	cache CacheRepository,
	preparer TextPreparer,
	logger *zap.Logger,
	opts ServiceOptions,
) *DetectionService {
	if cache == nil {
		opts.CacheEnabled = false
	}
	return &DetectionService{
		scorer:     scorer,
		classifier: classifier,
		merger:     merger,
		cache:      cache,
		preparer:   preparer,
		logger:     logger,
		opts:       opts,
	}
}

// ContentKey returns the cache key for a normalized input
func ContentKey(in NormalizedInput) string {
	data := in.Kind.String() + "\x00" + in.Text
	if in.Kind == KindEmail {
		// the combined text loses field boundaries the scorer depends on
		data = in.Kind.String() + "\x00" + in.Sender + "\x00" + in.Subject + "\x00" + in.Body
	}
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Analyze runs the hybrid pipeline for one input. Errors are returned as-is;
// callers decide whether to degrade them with FallbackResult.
func (s *DetectionService) Analyze(ctx context.Context, input AnalysisInput) (result *RiskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	if input.Kind != KindURL && input.Kind != KindEmail {
		return nil, fmt.Errorf("%w: unknown input kind %d", ErrInvalidInput, input.Kind)
	}

	normalized := s.prepare(input).Normalize()
	key := ContentKey(normalized)

	// Check cache if enabled
	if s.opts.CacheEnabled {
		cached, err := s.cache.Get(ctx, key)
		if err == nil {
			s.logger.Debug("Cache hit", zap.String("key", key), zap.String("kind", normalized.Kind.String()))
			return cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("Failed to read cache", zap.String("key", key), zap.Error(err))
		}
	}

	// The shared evaluation outlives any single caller; each caller
	// still stops waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(key, func() (any, error) {
		return s.evaluate(shared, key, normalized)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("Coalesced concurrent analysis", zap.String("key", key))
		}
		return res.Val.(*RiskResult).Clone(), nil
	}
}

// evaluate scores a normalized input and stores the verdict in the cache
func (s *DetectionService) evaluate(ctx context.Context, key string, normalized NormalizedInput) (result *RiskResult, err error) {
	// recovered here: a panic inside DoChan would crash the process
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	eval, err := s.scorer.Score(normalized)
	if err != nil {
		return nil, fmt.Errorf("rule scoring failed: %w", err)
	}

	if eval.Decisive {
		result = &RiskResult{
			Score:   eval.Score,
			Status:  eval.Status,
			Reasons: append([]string(nil), eval.Reasons...),
		}
	} else {
		probability, err := s.classifier.Predict(ctx, normalized.Text)
		if err != nil {
			if errors.Is(err, ErrClassification) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrClassification, err)
		}
		result = s.merger.Merge(eval, probability)
	}

	// Update cache with result if enabled
	if s.opts.CacheEnabled {
		if err := s.cache.Set(ctx, key, result.Clone()); err != nil {
			s.logger.Error("Failed to update cache", zap.String("key", key), zap.Error(err))
		}
	}

	return result, nil
}

// prepare sanitizes every field and bounds the email body
func (s *DetectionService) prepare(input AnalysisInput) AnalysisInput {
	if s.preparer == nil {
		return input
	}
	input.URL = s.preparer.ProcessText(input.URL, 0)
	input.Sender = s.preparer.ProcessText(input.Sender, 0)
	input.Subject = s.preparer.ProcessText(input.Subject, 0)
	input.Body = s.preparer.ProcessText(input.Body, s.opts.MaxBodySize)
	return input
}

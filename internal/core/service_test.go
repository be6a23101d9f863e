package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeScorer struct {
	calls    atomic.Int32
	eval     *RuleEvaluation
	err      error
	panicMsg string
	delay    time.Duration
}

func (f *fakeScorer) Score(in NormalizedInput) (*RuleEvaluation, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	eval := *f.eval
	eval.Reasons = append([]string(nil), f.eval.Reasons...)
	return &eval, nil
}

type fakeClassifier struct {
	calls       atomic.Int32
	probability float64
	err         error
	lastText    atomic.Value
}

func (f *fakeClassifier) Predict(ctx context.Context, text string) (float64, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.lastText.Store(text)
	return f.probability, f.err
}

type fakeMerger struct{}

func (fakeMerger) Merge(rule *RuleEvaluation, p float64) *RiskResult {
	score := FinalizeScore(rule.Score*0.6 + p*0.4)
	return &RiskResult{
		Score:   score,
		Status:  Thresholds{High: 0.7, Low: 0.4}.Classify(score),
		Reasons: append(append([]string(nil), rule.Reasons...), "ml"),
	}
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*RiskResult
	gets    int
	sets    int
	getErr  error
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*RiskResult)}
}

func (c *mapCache) Get(_ context.Context, key string) (*RiskResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	r, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return r.Clone(), nil
}

func (c *mapCache) Set(_ context.Context, key string, r *RiskResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = r.Clone()
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *mapCache) Cleanup(context.Context) error { return nil }

type truncatingPreparer struct{}

func (truncatingPreparer) ProcessText(text string, maxSize int) string {
	if maxSize > 0 && len(text) > maxSize {
		return text[:maxSize]
	}
	return text
}

func suspiciousEval() *RuleEvaluation {
	return &RuleEvaluation{
		Score:   0.5,
		Status:  StatusLowRisk,
		Reasons: []string{"URL is using HTTP (not HTTPS)"},
	}
}

func newService(scorer *fakeScorer, classifier *fakeClassifier, cache CacheRepository) *DetectionService {
	return NewDetectionService(scorer, classifier, fakeMerger{}, cache, truncatingPreparer{}, zap.NewNop(),
		ServiceOptions{CacheEnabled: true, MaxBodySize: 16})
}

func TestAnalyzeBlendsRuleAndClassifier(t *testing.T) {
	scorer := &fakeScorer{eval: suspiciousEval()}
	classifier := &fakeClassifier{probability: 1.0}
	svc := newService(scorer, classifier, nil)

	res, err := svc.Analyze(context.Background(), NewURLInput("  HTTP://Example.com/Login "))
	require.NoError(t, err)

	assert.Equal(t, 0.7, res.Score)
	assert.Equal(t, StatusHighRisk, res.Status)
	assert.Equal(t, []string{"URL is using HTTP (not HTTPS)", "ml"}, res.Reasons)
	assert.Equal(t, "http://example.com/login", classifier.lastText.Load())
}

func TestAnalyzeCacheHitSkipsRecomputation(t *testing.T) {
	scorer := &fakeScorer{eval: suspiciousEval()}
	classifier := &fakeClassifier{probability: 0.2}
	cache := newMapCache()
	svc := newService(scorer, classifier, cache)
	ctx := context.Background()

	first, err := svc.Analyze(ctx, NewURLInput("http://example.com"))
	require.NoError(t, err)

	// differently cased and padded input normalizes to the same key
	second, err := svc.Analyze(ctx, NewURLInput("  HTTP://EXAMPLE.COM  "))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, scorer.calls.Load())
	assert.EqualValues(t, 1, classifier.calls.Load())
	assert.Equal(t, 1, cache.sets)
}

func TestAnalyzeCacheKeyIncludesKind(t *testing.T) {
	url := NewURLInput("a b c").Normalize()
	email := NewEmailInput("a", "b", "c").Normalize()

	require.Equal(t, url.Text, email.Text)
	assert.NotEqual(t, ContentKey(url), ContentKey(email))
	assert.Len(t, ContentKey(url), 64)
}

func TestContentKeySeparatesEmailFields(t *testing.T) {
	a := NewEmailInput("alerts@evil.xyz", "urgent notice", "").Normalize()
	b := NewEmailInput("alerts@evil.xyz urgent", "notice", "").Normalize()

	require.Equal(t, a.Text, b.Text)
	assert.NotEqual(t, ContentKey(a), ContentKey(b))
	assert.Equal(t, ContentKey(a), ContentKey(NewEmailInput(" Alerts@Evil.xyz", "URGENT notice ", "").Normalize()))
}

func TestAnalyzeDistinctEmailsAreScoredSeparately(t *testing.T) {
	scorer := &fakeScorer{eval: suspiciousEval()}
	svc := newService(scorer, &fakeClassifier{probability: 0.5}, newMapCache())
	ctx := context.Background()

	_, err := svc.Analyze(ctx, NewEmailInput("alerts@evil.xyz", "urgent notice", ""))
	require.NoError(t, err)
	_, err = svc.Analyze(ctx, NewEmailInput("alerts@evil.xyz urgent", "notice", ""))
	require.NoError(t, err)

	assert.Equal(t, int32(2), scorer.calls.Load())
}

func TestAnalyzeCallersCannotMutateCachedResult(t *testing.T) {
	svc := newService(&fakeScorer{eval: suspiciousEval()}, &fakeClassifier{probability: 0.5}, newMapCache())
	ctx := context.Background()

	first, err := svc.Analyze(ctx, NewURLInput("http://example.com"))
	require.NoError(t, err)
	first.Reasons[0] = "tampered"

	second, err := svc.Analyze(ctx, NewURLInput("http://example.com"))
	require.NoError(t, err)
	assert.Equal(t, "URL is using HTTP (not HTTPS)", second.Reasons[0])
}

func TestAnalyzeDecisiveSkipsClassifier(t *testing.T) {
	scorer := &fakeScorer{eval: &RuleEvaluation{
		Score: 0, Status: StatusSafe, Reasons: []string{"Trusted domain"}, Decisive: true,
	}}
	classifier := &fakeClassifier{probability: 1}
	svc := newService(scorer, classifier, nil)

	res, err := svc.Analyze(context.Background(), NewURLInput("https://www.google.com"))
	require.NoError(t, err)
	assert.Equal(t, &RiskResult{Score: 0, Status: StatusSafe, Reasons: []string{"Trusted domain"}}, res)
	assert.Zero(t, classifier.calls.Load())
}

func TestAnalyzeSurfacesErrors(t *testing.T) {
	ctx := context.Background()

	svc := newService(&fakeScorer{err: errors.New("boom")}, &fakeClassifier{}, nil)
	_, err := svc.Analyze(ctx, NewURLInput("http://example.com"))
	assert.ErrorContains(t, err, "boom")

	svc = newService(&fakeScorer{eval: suspiciousEval()}, &fakeClassifier{err: errors.New("bad vector")}, nil)
	_, err = svc.Analyze(ctx, NewURLInput("http://example.com"))
	assert.ErrorIs(t, err, ErrClassification)

	_, err = svc.Analyze(ctx, AnalysisInput{Kind: InputKind(9)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAnalyzeRecoversPanics(t *testing.T) {
	cache := newMapCache()
	svc := newService(&fakeScorer{panicMsg: "index out of range"}, &fakeClassifier{}, cache)

	res, err := svc.Analyze(context.Background(), NewURLInput("http://example.com"))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorContains(t, err, "index out of range")
	assert.Zero(t, cache.sets)
}

func TestAnalyzeIgnoresCacheReadFailures(t *testing.T) {
	cache := newMapCache()
	cache.getErr = errors.New("disk on fire")
	svc := newService(&fakeScorer{eval: suspiciousEval()}, &fakeClassifier{probability: 0.5}, cache)

	res, err := svc.Analyze(context.Background(), NewURLInput("http://example.com"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Score)
}

func TestAnalyzeTruncatesEmailBody(t *testing.T) {
	classifier := &fakeClassifier{probability: 0.1}
	svc := newService(&fakeScorer{eval: suspiciousEval()}, classifier, nil)

	_, err := svc.Analyze(context.Background(),
		NewEmailInput("a@b.com", "Hi", strings.Repeat("x", 100)))
	require.NoError(t, err)
	assert.Equal(t, "a@b.com hi "+strings.Repeat("x", 16), classifier.lastText.Load())
}

func TestAnalyzeCoalescesConcurrentRequests(t *testing.T) {
	scorer := &fakeScorer{eval: suspiciousEval(), delay: 50 * time.Millisecond}
	classifier := &fakeClassifier{probability: 0.3}
	svc := newService(scorer, classifier, newMapCache())

	var wg sync.WaitGroup
	results := make([]*RiskResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Analyze(context.Background(), NewURLInput("http://example.com"))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	assert.LessOrEqual(t, scorer.calls.Load(), int32(len(results)))
	assert.EqualValues(t, scorer.calls.Load(), classifier.calls.Load())
}

func TestAnalyzeCanceledCallerDoesNotFailCoalescedCallers(t *testing.T) {
	scorer := &fakeScorer{eval: suspiciousEval(), delay: 50 * time.Millisecond}
	classifier := &fakeClassifier{probability: 0.3}
	cache := newMapCache()
	svc := newService(scorer, classifier, cache)
	input := NewURLInput("http://example.com")

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(ctx, input)
		firstErr <- err
	}()

	time.Sleep(5 * time.Millisecond)
	secondDone := make(chan *RiskResult, 1)
	go func() {
		res, err := svc.Analyze(context.Background(), input)
		assert.NoError(t, err)
		secondDone <- res
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	res := <-secondDone
	require.NotNil(t, res)
	assert.Equal(t, 0.42, res.Score)

	// the shared evaluation completed and was cached
	calls := scorer.calls.Load()
	_, err := svc.Analyze(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, calls, scorer.calls.Load())
}

func TestFallbackResult(t *testing.T) {
	res := FallbackResult(errors.New("model exploded"))
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, StatusSafe, res.Status)
	assert.Equal(t, []string{"Server error: model exploded"}, res.Reasons)
}

func TestFinalizeScore(t *testing.T) {
	assert.Equal(t, 0.99, FinalizeScore(1.7))
	assert.Equal(t, 0.0, FinalizeScore(-0.2))
	assert.Equal(t, 0.35, FinalizeScore(0.349999))
	assert.Equal(t, 0.0, FinalizeScore(0))
}

func TestThresholdsAreInclusive(t *testing.T) {
	th := Thresholds{High: 0.7, Low: 0.3}
	assert.Equal(t, StatusHighRisk, th.Classify(0.7))
	assert.Equal(t, StatusLowRisk, th.Classify(0.3))
	assert.Equal(t, StatusSafe, th.Classify(0.29))
}

func TestStrictThresholdsRequireExceeding(t *testing.T) {
	th := Thresholds{High: 0.7, Low: 0.3, Strict: true}
	assert.Equal(t, StatusLowRisk, th.Classify(0.7))
	assert.Equal(t, StatusHighRisk, th.Classify(0.71))
	assert.Equal(t, StatusSafe, th.Classify(0.3))
	assert.Equal(t, StatusLowRisk, th.Classify(0.31))
}

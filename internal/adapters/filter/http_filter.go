package filter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/ports"
)

// maxTrackedClients bounds the per-client rate limiters kept in memory
const maxTrackedClients = 4096

// maxRequestIDLength bounds caller supplied request IDs
const maxRequestIDLength = 64

// HTTPOptions configures the HTTP frontend
type HTTPOptions struct {
	ListenAddress   string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	// RateLimit is the sustained requests per second allowed per client; zero disables limiting
	RateLimit float64
	RateBurst int
}

// HTTPFilter serves the analysis endpoints over HTTP
type HTTPFilter struct {
	analyzer ports.Analyzer
	logger   *zap.Logger
	opts     HTTPOptions
	engine   *gin.Engine
	limiters *lru.Cache[string, *rate.Limiter]

	mu     sync.Mutex
	server *http.Server
}

// NewHTTPFilter creates the HTTP frontend and registers its routes
func NewHTTPFilter(analyzer ports.Analyzer, logger *zap.Logger, opts HTTPOptions) (*HTTPFilter, error) {
	f := &HTTPFilter{
		analyzer: analyzer,
		logger:   logger,
		opts:     opts,
	}

	if opts.RateLimit > 0 {
		if f.opts.RateBurst <= 0 {
			f.opts.RateBurst = max(1, int(opts.RateLimit))
		}
		limiters, err := lru.New[string, *rate.Limiter](maxTrackedClients)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter cache: %w", err)
		}
		f.limiters = limiters
	}

	engine := gin.New()
	engine.Use(f.requestLogger(), f.cors())
	engine.GET("/health", f.handleHealth)

	analyze := engine.Group("/", f.rateLimit(), f.recoverWithFallback())
	analyze.POST("/analyze-url", f.handleAnalyzeURL)
	analyze.POST("/analyze-email", f.handleAnalyzeEmail)
	analyze.POST("/analyze", f.handleLegacyAnalyze)

	f.engine = engine
	return f, nil
}

// Handler returns the HTTP handler serving every route
func (f *HTTPFilter) Handler() http.Handler {
	return f.engine
}

// Submit analyzes input, degrading failures to the fallback verdict
func (f *HTTPFilter) Submit(ctx context.Context, input core.AnalysisInput) *core.RiskResult {
	result, _ := submit(ctx, f.analyzer, f.logger, input)
	return result
}

// Start starts listening in the background
func (f *HTTPFilter) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.server = &http.Server{
		Addr:              f.opts.ListenAddress,
		Handler:           f.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := f.server

	f.logger.Info("HTTP filter starting", zap.String("address", f.opts.ListenAddress))

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the server down
func (f *HTTPFilter) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.server == nil {
		return nil
	}

	timeout := f.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := f.server.Shutdown(ctx)
	f.server = nil
	return err
}

func (f *HTTPFilter) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (f *HTTPFilter) handleAnalyzeURL(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, f.Submit(c.Request.Context(), core.NewURLInput(req.URL)))
}

func (f *HTTPFilter) handleAnalyzeEmail(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	input := core.NewEmailInput(req.Sender, req.Subject, req.Body)
	c.JSON(http.StatusOK, f.Submit(c.Request.Context(), input))
}

func (f *HTTPFilter) handleLegacyAnalyze(c *gin.Context) {
	var req legacyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	result := f.Submit(c.Request.Context(), input)
	c.JSON(http.StatusOK, legacyResponse{Status: result.Status, RiskScore: result.Score})
}

// recoverWithFallback turns a panic in a handler into the fallback verdict
func (f *HTTPFilter) recoverWithFallback() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%w: %v", core.ErrInternal, r)
				f.logger.Error("Panic recovered in HTTP handler",
					zap.String("trace_id", c.GetString("trace_id")),
					zap.String("path", c.Request.URL.Path),
					zap.Error(err))
				c.AbortWithStatusJSON(http.StatusOK, core.FallbackResult(err))
			}
		}()
		c.Next()
	}
}

func (f *HTTPFilter) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Request-ID")
		if traceID == "" || len(traceID) > maxRequestIDLength {
			traceID = uuid.NewString()[:8]
		}
		start := time.Now()
		c.Set("trace_id", traceID)
		c.Header("X-Request-ID", traceID)

		c.Next()

		f.logger.Debug("Request completed",
			zap.String("trace_id", traceID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// cors allows the configured origins; "*" echoes any origin
func (f *HTTPFilter) cors() gin.HandlerFunc {
	wildcard := slices.Contains(f.opts.AllowedOrigins, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || slices.Contains(f.opts.AllowedOrigins, origin)) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// rateLimit applies a token bucket per client IP
func (f *HTTPFilter) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if f.limiters == nil {
			c.Next()
			return
		}

		ip := c.ClientIP()
		limiter, ok := f.limiters.Get(ip)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(f.opts.RateLimit), f.opts.RateBurst)
			if prev, found, _ := f.limiters.PeekOrAdd(ip, limiter); found {
				limiter = prev
			}
		}

		if !limiter.Allow() {
			f.logger.Info("Rate limit triggered",
				zap.String("trace_id", c.GetString("trace_id")),
				zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

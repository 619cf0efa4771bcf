package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kioku/internal/telemetry"
)

var tracer = otel.Tracer("kioku/llm")

// defaultTimeout bounds a call whose ProviderConfig carries no timeout.
const defaultTimeout = 60 * time.Second

// Client dispatches GenerateRequests to provider backends. Backends are
// created on first use and cached per provider, endpoint, and key.
type Client struct {
	logger *slog.Logger

	duration otelmetric.Float64Histogram

	mu       sync.Mutex
	backends map[string]backend

	// newBackend is swapped in tests.
	newBackend func(ctx context.Context, req GenerateRequest) (backend, error)
}

// NewClient creates a Client.
func NewClient(logger *slog.Logger) *Client {
	duration, _ := telemetry.Meter("kioku/llm").Float64Histogram("kioku.llm.duration",
		otelmetric.WithDescription("Oracle call latency"),
		otelmetric.WithUnit("ms"))
	return &Client{
		logger:     logger,
		duration:   duration,
		backends:   make(map[string]backend),
		newBackend: newProviderBackend,
	}
}

// GenerateText performs exactly one completion attempt. It never panics and
// never returns without a result: provider errors, timeouts, and empty
// responses all become Success=false.
func (c *Client) GenerateText(ctx context.Context, req GenerateRequest) (result GenerateResult) {
	ctx, span := tracer.Start(ctx, "llm.generate")
	span.SetAttributes(
		attribute.String("llm.provider", req.Provider),
		attribute.String("llm.model", req.Model),
		attribute.String("llm.context", req.Context),
	)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = failure(fmt.Errorf("llm: %s provider panicked: %v", req.Provider, r))
		}
		if !result.Success {
			span.SetStatus(codes.Error, result.Error)
		}
		span.End()
		c.recordDuration(ctx, req, result.Success, time.Since(start))
	}()

	if req.Prompt == "" {
		return failure(errors.New("llm: empty prompt"))
	}

	b, err := c.backendFor(ctx, req)
	if err != nil {
		return failure(err)
	}

	timeout := req.ProviderConfig.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := b.complete(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("llm: %s call timed out after %s: %w", req.Provider, timeout, err)
		}
		c.logger.Warn("llm: generate failed",
			"provider", req.Provider, "model", req.Model, "context", req.Context, "error", err)
		return failure(err)
	}
	if text == "" {
		return failure(fmt.Errorf("llm: %s returned an empty response", req.Provider))
	}
	return GenerateResult{Success: true, Text: text}
}

// Close releases cached backends that hold connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for key, b := range c.backends {
		if closer, ok := b.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(c.backends, key)
	}
	return errors.Join(errs...)
}

func (c *Client) backendFor(ctx context.Context, req GenerateRequest) (backend, error) {
	key := req.Provider + "|" + req.ProviderConfig.BaseURL + "|" + req.ProviderConfig.APIKey

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.backends[key]; ok {
		return b, nil
	}
	b, err := c.newBackend(ctx, req)
	if err != nil {
		return nil, err
	}
	c.backends[key] = b
	return b, nil
}

func newProviderBackend(ctx context.Context, req GenerateRequest) (backend, error) {
	pc := req.ProviderConfig
	switch req.Provider {
	case ProviderOpenAI:
		return newOpenAIBackend(pc.APIKey, pc.BaseURL), nil
	case ProviderAnthropic:
		return newAnthropicBackend(pc.APIKey, pc.BaseURL), nil
	case ProviderGemini:
		// Detached from the request context: the client outlives this call.
		return newGeminiBackend(context.WithoutCancel(ctx), pc.APIKey)
	case ProviderOllama:
		return newOllamaBackend(pc.BaseURL), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", req.Provider)
	}
}

func (c *Client) recordDuration(ctx context.Context, req GenerateRequest, ok bool, d time.Duration) {
	if c.duration == nil {
		return
	}
	c.duration.Record(ctx, float64(d.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("llm.provider", req.Provider),
		attribute.String("llm.context", req.Context),
		attribute.Bool("llm.success", ok),
	))
}

package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

type rateLimited struct {
	next    workflow.TextGenerator
	limiter *rate.Limiter
}

// WithRateLimit waits for a token before each call.
func WithRateLimit(next workflow.TextGenerator, rps float64, burst int) workflow.TextGenerator {
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (g *rateLimited) Generate(ctx context.Context, model, systemPrompt string, messages []types.Message) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", types.WrapError(err, types.ErrRateLimited, "llm rate limit exceeded")
	}
	return g.next.Generate(ctx, model, systemPrompt, messages)
}

type retrying struct {
	next       workflow.TextGenerator
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// WithRetry retries calls that fail with a retryable error.
func WithRetry(next workflow.TextGenerator, maxRetries int, logger *zap.Logger) workflow.TextGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retrying{
		next:       next,
		maxRetries: uint64(maxRetries),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:     logger,
	}
}

func (g *retrying) Generate(ctx context.Context, model, systemPrompt string, messages []types.Message) (string, error) {
	var reply string
	attempt := 0
	op := func() error {
		attempt++
		out, err := g.next.Generate(ctx, model, systemPrompt, messages)
		if err == nil {
			reply = out
			return nil
		}
		if !types.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		g.logger.Warn("llm call failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), g.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return "", err
	}
	return reply, nil
}

// RequestRecorder observes completed generation calls.
type RequestRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration)
}

type instrumented struct {
	next     workflow.TextGenerator
	provider string
	rec      RequestRecorder
	now      func() time.Time
}

// WithMetrics reports every call to rec, labelled with the provider and the
// error code of failed calls.
func WithMetrics(next workflow.TextGenerator, provider string, rec RequestRecorder) workflow.TextGenerator {
	return &instrumented{next: next, provider: provider, rec: rec, now: time.Now}
}

func (g *instrumented) Generate(ctx context.Context, model, systemPrompt string, messages []types.Message) (string, error) {
	start := g.now()
	reply, err := g.next.Generate(ctx, model, systemPrompt, messages)
	status := "success"
	if err != nil {
		status = string(types.GetErrorCode(err))
		if status == "" {
			status = "error"
		}
	}
	g.rec.RecordLLMRequest(g.provider, model, status, g.now().Sub(start))
	return reply, err
}

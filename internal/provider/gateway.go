package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/reasoner/internal/logging"
	"github.com/opencode-ai/reasoner/internal/metrics"
)

var (
	// ErrNoModel is returned when inference is requested before a model is active.
	ErrNoModel = errors.New("no model loaded")
	// ErrModelNotFound is returned when a requested model is unknown.
	ErrModelNotFound = errors.New("model not found")
)

const (
	// MaxRetries is the maximum number of attempts to open a completion.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = 500 * time.Millisecond
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 5 * time.Second
)

// Request is a single inference call.
type Request struct {
	Prompt      string
	Temperature float64
	// MaxTokens of 0 uses the template default.
	MaxTokens int
	// Stop of nil uses the template default. A non-nil empty slice disables stops.
	Stop     []string
	Template Template
}

func (r *Request) completion(modelID string) *CompletionRequest {
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = r.Template.DefaultMaxTokens()
	}
	stop := r.Stop
	if stop == nil {
		stop = r.Template.DefaultStop()
	}
	return &CompletionRequest{
		Model:       modelID,
		Messages:    r.Template.Messages(r.Prompt),
		MaxTokens:   maxTokens,
		Temperature: r.Temperature,
		StopWords:   stop,
	}
}

// Gateway is the single entry point for inference. It owns the active model
// and the pool that serialises access to it.
type Gateway struct {
	mu       sync.RWMutex
	provider Provider
	modelID  string
	pool     *Pool
	backoff  func(ctx context.Context) backoff.BackOff
	log      zerolog.Logger
}

// NewGateway creates a gateway with no active model.
func NewGateway(pool *Pool) *Gateway {
	if pool == nil {
		pool = NewPool(1)
	}
	return &Gateway{
		pool:    pool,
		backoff: newRetryBackoff,
		log:     logging.Component("gateway"),
	}
}

// newRetryBackoff creates an exponential backoff with jitter for opening completions.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries-1), ctx)
}

// Use makes p the active provider, serving modelID.
func (g *Gateway) Use(p Provider, modelID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.provider = p
	g.modelID = modelID
	g.log.Info().Str("provider", p.ID()).Str("model", modelID).Msg("active model changed")
}

// Active returns the active provider and model.
func (g *Gateway) Active() (Provider, string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.provider, g.modelID, g.provider != nil
}

// Unload clears the active model.
func (g *Gateway) Unload() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.provider = nil
	g.modelID = ""
}

// Pool returns the gateway's pool.
func (g *Gateway) Pool() *Pool {
	return g.pool
}

// Complete runs a request to completion and returns the full text.
func (g *Gateway) Complete(ctx context.Context, req *Request) (string, error) {
	stream, err := g.open(ctx, req, "complete")
	if err != nil {
		return "", err
	}
	return stream.Collect()
}

// Stream runs a request and yields text chunks as they are generated.
// The pool slot is held until the stream ends or is closed.
func (g *Gateway) Stream(ctx context.Context, req *Request) (*Stream, error) {
	return g.open(ctx, req, "stream")
}

func (g *Gateway) open(ctx context.Context, req *Request, kind string) (*Stream, error) {
	start := time.Now()

	p, modelID, ok := g.Active()
	if !ok {
		metrics.RecordGatewayCall(kind, metrics.OutcomeError, time.Since(start))
		return nil, ErrNoModel
	}

	release, err := g.pool.Acquire(ctx)
	if err != nil {
		metrics.RecordGatewayCall(kind, outcome(err), time.Since(start))
		return nil, err
	}

	// the completion outlives open, so it gets its own cancel
	callCtx, cancelCall := context.WithCancel(ctx)
	creq := req.completion(modelID)
	var cs *CompletionStream
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		var openErr error
		cs, openErr = p.CreateCompletion(callCtx, creq)
		if openErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		g.log.Warn().Err(openErr).Int("attempt", attempt).Str("kind", kind).Msg("completion failed to open")
		return openErr
	}, g.backoff(ctx))
	if err != nil {
		cancelCall()
		release()
		metrics.RecordGatewayCall(kind, outcome(err), time.Since(start))
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	produce := func(ctx context.Context, emit func(string) bool) error {
		stop := context.AfterFunc(ctx, cancelCall)
		defer stop()
		defer cs.Close()
		for {
			msg, err := cs.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			if !emit(msg.Content) {
				return ctx.Err()
			}
		}
	}

	return NewStream(ctx, produce, func(err error) {
		cancelCall()
		release()
		metrics.RecordGatewayCall(kind, outcome(err), time.Since(start))
	}), nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeError
	}
}

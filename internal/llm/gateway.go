package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Options configures the gateway's retry and pacing behavior.
type Options struct {
	Models            []string // fallback chain, tried in order
	AttemptsPerModel  int
	RetryMinDelay     time.Duration
	RetryMaxDelay     time.Duration
	CallTimeout       time.Duration
	RequestsPerMinute int // 0 disables pacing
}

// Gateway is the one call surface to the model provider. It walks the
// model fallback chain with bounded per-model retry and exposes markdown,
// structured, and mermaid generation.
type Gateway struct {
	provider Provider
	opts     Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	genCalls atomic.Int64
}

// NewGateway wires a provider behind the retry chain.
func NewGateway(provider Provider, opts Options) *Gateway {
	if opts.AttemptsPerModel <= 0 {
		opts.AttemptsPerModel = 2
	}
	return &Gateway{
		provider: provider,
		opts:     opts,
		limiters: map[string]*rate.Limiter{},
	}
}

// GenCalls reports how many generation calls were attempted, for the
// persisted token budget.
func (g *Gateway) GenCalls() int {
	return int(g.genCalls.Load())
}

// GenerateMarkdown produces prose output from a system and user prompt.
func (g *Gateway) GenerateMarkdown(ctx context.Context, system, user string) (string, error) {
	text, err := g.callWithFallback(ctx, system+"\n\n"+user)
	if err != nil {
		return "", err
	}
	return CleanMarkdown(text), nil
}

// GenerateStructured produces JSON output decoded into out. On a shape
// mismatch it issues one corrective retry with a repair prompt; a second
// mismatch surfaces ErrShape.
func (g *Gateway) GenerateStructured(ctx context.Context, system, user string, out any) error {
	text, err := g.callWithFallback(ctx, system+"\n\n"+user)
	if err != nil {
		return err
	}
	if decodeJSON(text, out) == nil {
		return nil
	}

	log.Warn("structured response failed validation, retrying with repair prompt")
	fixPrompt := system + " Return ONLY valid JSON matching the requested structure.\n\n" +
		"The previous output was invalid. Fix it.\n\n" + user
	text, err = g.callWithFallback(ctx, fixPrompt)
	if err != nil {
		return err
	}
	if err := decodeJSON(text, out); err != nil {
		return errors.Join(ErrShape, err)
	}
	return nil
}

// GenerateMermaid produces a Mermaid diagram body, extracting a fenced
// block when the model wraps one.
func (g *Gateway) GenerateMermaid(ctx context.Context, system, user string) (string, error) {
	text, err := g.callWithFallback(ctx, system+"\n\n"+user)
	if err != nil {
		return "", err
	}
	return ExtractMermaid(text), nil
}

// callWithFallback walks the model chain. Per model: up to AttemptsPerModel
// attempts with a jittered delay between them; quota moves straight to the
// next model; transient and deadline failures retry in place; any other
// provider error is terminal. The chain ends in a QuotaError only when every
// model stopped on quota; a model that used up its attempts on transient
// failures makes the chain end in an APIError carrying the last such failure.
func (g *Gateway) callWithFallback(ctx context.Context, prompt string) (string, error) {
	var attempted []string
	var lastErr error
	lastModel := ""

	for _, model := range g.opts.Models {
		attempted = append(attempted, model)
		var modelErr error

		for attempt := 0; attempt < g.opts.AttemptsPerModel; attempt++ {
			if attempt > 0 {
				if err := g.sleepJitter(ctx); err != nil {
					return "", err
				}
			}
			if err := g.pace(ctx, model); err != nil {
				return "", err
			}

			g.genCalls.Add(1)
			text, err := g.attempt(ctx, model, prompt)
			if err == nil {
				return text, nil
			}

			switch {
			case errors.Is(err, ErrModelQuota):
				log.Warn("model quota exhausted, moving to next model", "model", model)
				modelErr = nil
				attempt = g.opts.AttemptsPerModel // break out of the attempt loop
			case errors.Is(err, ErrTransient):
				log.Warn("transient model failure", "model", model, "attempt", attempt+1, "err", err)
				modelErr = err
			case ctx.Err() != nil:
				return "", ctx.Err()
			default:
				return "", &APIError{Model: model, Err: err}
			}
		}
		if modelErr != nil {
			lastErr, lastModel = modelErr, model
		}
	}

	if lastErr != nil {
		return "", &APIError{Model: lastModel, Err: lastErr}
	}
	return "", &QuotaError{Attempted: attempted}
}

// attempt runs one provider call under the per-call deadline. Deadline
// expiry of the call (not the outer context) counts as transient.
func (g *Gateway) attempt(ctx context.Context, model, prompt string) (string, error) {
	callCtx := ctx
	if g.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.opts.CallTimeout)
		defer cancel()
	}
	text, err := g.provider.Generate(callCtx, model, prompt)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return "", errors.Join(ErrTransient, err)
	}
	return text, err
}

// sleepJitter waits a uniform random delay in [RetryMinDelay, RetryMaxDelay].
func (g *Gateway) sleepJitter(ctx context.Context) error {
	min, max := g.opts.RetryMinDelay, g.opts.RetryMaxDelay
	if max <= min {
		max = min
	}
	delay := min
	if max > min {
		delay = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pace blocks on the per-model rate limiter.
func (g *Gateway) pace(ctx context.Context, model string) error {
	if g.opts.RequestsPerMinute <= 0 {
		return nil
	}
	g.mu.Lock()
	lim, ok := g.limiters[model]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(g.opts.RequestsPerMinute)/60), 1)
		g.limiters[model] = lim
	}
	g.mu.Unlock()
	return lim.Wait(ctx)
}

// decodeJSON extracts the first JSON object or array from text and decodes
// it into out.
func decodeJSON(text string, out any) error {
	raw := ExtractJSON(text)
	if raw == "" {
		return errors.New("no JSON value in response")
	}
	return json.Unmarshal([]byte(raw), out)
}

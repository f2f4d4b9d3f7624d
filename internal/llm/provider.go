package llm

import "context"

// Provider is the single point that talks to a model API. Implementations
// classify failures by wrapping ErrModelQuota (quota) or ErrTransient
// (retryable); any other error is terminal for the call.
type Provider interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ProviderFunc adapts a function to the Provider interface; tests use it
// to substitute fakes.
type ProviderFunc func(ctx context.Context, model, prompt string) (string, error)

// Generate implements Provider.
func (f ProviderFunc) Generate(ctx context.Context, model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}

package diagram

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shikhar1verma/code-architecture-mapper/internal/content"
	"github.com/shikhar1verma/code-architecture-mapper/internal/depgraph"
	"github.com/shikhar1verma/code-architecture-mapper/internal/deps"
	"github.com/shikhar1verma/code-architecture-mapper/internal/llm"
)

// scriptedProvider replies with responses in order, repeating the last one.
type scriptedProvider struct {
	responses []string
	errs      []error
	calls     atomic.Int32
}

func (p *scriptedProvider) generate(ctx context.Context, model, prompt string) (string, error) {
	i := int(p.calls.Add(1)) - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	if p.errs != nil && p.errs[i] != nil {
		return "", p.errs[i]
	}
	return p.responses[i], nil
}

func newLoop(p *scriptedProvider, maxAttempts int) *Loop {
	gw := llm.NewGateway(llm.ProviderFunc(p.generate), llm.Options{
		Models:           []string{"m1"},
		AttemptsPerModel: 1,
		RetryMinDelay:    time.Millisecond,
		RetryMaxDelay:    time.Millisecond,
	})
	return NewLoop(content.NewGenerator(gw, 8), maxAttempts)
}

func testInput() content.DiagramInput {
	return content.DiagramInput{
		Analysis:  &deps.Analysis{},
		Graph:     &depgraph.Graph{DegreeCentrality: map[string]float64{}},
		FilePaths: []string{"a.py"},
	}
}

func TestGenerateValidFirstTry(t *testing.T) {
	p := &scriptedProvider{responses: []string{"flowchart LR\nA --> B"}}
	loop := newLoop(p, 3)

	res := loop.Generate(context.Background(), "overview", testInput())
	assert.True(t, res.Valid)
	assert.False(t, res.Exhausted)
	assert.Equal(t, "flowchart LR\nA --> B", res.Diagram)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestGenerateRuleRepairAvoidsModelRepair(t *testing.T) {
	// candidate is broken but every finding is rule-repairable
	p := &scriptedProvider{responses: []string{"A[node (with parens)] --> B\nsubgraph S\nA --> B"}}
	loop := newLoop(p, 3)

	res := loop.Generate(context.Background(), "balanced", testInput())
	require.True(t, res.Valid)
	assert.True(t, strings.HasPrefix(res.Diagram, "flowchart LR"))
	assert.Contains(t, res.Diagram, `A["node (with parens)"]`)
	// one generation call, zero repair calls
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestGenerateModelRepairPath(t *testing.T) {
	// unrepairable by rules (more ends than subgraphs), then the model
	// returns a valid diagram
	p := &scriptedProvider{responses: []string{
		"flowchart LR\nA --> B\nend",
		"flowchart LR\nA --> B",
	}}
	loop := newLoop(p, 3)

	res := loop.Generate(context.Background(), "detailed", testInput())
	assert.True(t, res.Valid)
	assert.Equal(t, "flowchart LR\nA --> B", res.Diagram)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestGenerateExhaustedReturnsBestEffort(t *testing.T) {
	// every response keeps the unrepairable error
	p := &scriptedProvider{responses: []string{"flowchart LR\nA --> B\nend"}}
	loop := newLoop(p, 3)

	res := loop.Generate(context.Background(), "detailed", testInput())
	assert.False(t, res.Valid)
	assert.True(t, res.Exhausted)
	assert.NotEmpty(t, res.Diagram)
	assert.NotEmpty(t, res.Findings)
	// generation + at most maxAttempts-1 model repairs
	assert.LessOrEqual(t, p.calls.Load(), int32(3))
}

func TestGenerateQuotaReturnsEmpty(t *testing.T) {
	gw := llm.NewGateway(llm.ProviderFunc(func(ctx context.Context, model, prompt string) (string, error) {
		return "", context.DeadlineExceeded
	}), llm.Options{Models: nil, AttemptsPerModel: 1})
	loop := NewLoop(content.NewGenerator(gw, 8), 3)

	res := loop.Generate(context.Background(), "overview", testInput())
	assert.True(t, res.Exhausted)
	assert.True(t, res.QuotaHit)
	assert.Equal(t, "", res.Diagram)
}

func TestCorrectAlreadyValidReturnsUnchanged(t *testing.T) {
	p := &scriptedProvider{responses: []string{"should never be called"}}
	loop := newLoop(p, 3)

	candidate := "flowchart LR\nA --> B"
	res := loop.Correct(context.Background(), "overview", candidate, nil, testInput())
	assert.True(t, res.Valid)
	assert.Equal(t, candidate, res.Diagram)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestCorrectAppliesRuleRepairs(t *testing.T) {
	p := &scriptedProvider{responses: []string{"unused"}}
	loop := newLoop(p, 3)

	broken := "A[node (with parens)] --> B\nsubgraph S\nA --> B"
	res := loop.Correct(context.Background(), "overview", broken, []string{"renderer said: parse error"}, testInput())

	require.True(t, res.Valid)
	assert.True(t, strings.HasPrefix(res.Diagram, "flowchart LR"))
	assert.Contains(t, res.Diagram, `A["node (with parens)"]`)
	assert.Contains(t, res.Diagram, "end")
	assert.Equal(t, int32(0), p.calls.Load())
}

// Package diagram runs the bounded self-correction loop for one Mermaid
// diagram mode: generate, validate, rule-repair, and — while attempts
// remain — model-repair, returning the best candidate when exhausted.
package diagram

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/shikhar1verma/code-architecture-mapper/internal/content"
	"github.com/shikhar1verma/code-architecture-mapper/internal/llm"
	"github.com/shikhar1verma/code-architecture-mapper/internal/mermaid"
)

// Result is one loop outcome. Valid means the final candidate passed the
// validator with zero errors; Exhausted means no valid diagram was reached,
// either because the attempt bound was hit or because a model call failed.
// Diagram then holds the candidate with the fewest remaining errors, or is
// empty when the initial generation failed.
type Result struct {
	Diagram   string
	Valid     bool
	Exhausted bool
	QuotaHit  bool
	Findings  []mermaid.Finding
}

// Loop wraps the generator and the validator behind a retry bound.
type Loop struct {
	gen         *content.Generator
	maxAttempts int
}

// NewLoop creates a Loop. maxAttempts bounds the total iterations; the
// model-repair call count is at most maxAttempts-1.
func NewLoop(gen *content.Generator, maxAttempts int) *Loop {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Loop{gen: gen, maxAttempts: maxAttempts}
}

// Generate produces a diagram for the mode and drives it through the
// correction loop. Quota exhaustion mid-loop is swallowed: the best partial
// candidate is returned and the caller's run continues.
func (l *Loop) Generate(ctx context.Context, mode string, in content.DiagramInput) Result {
	candidate, err := l.gen.Diagram(ctx, mode, in)
	if err != nil {
		quota := errors.Is(err, llm.ErrQuotaExhausted)
		if quota {
			log.Warn("diagram generation hit quota, returning empty diagram", "mode", mode)
		} else {
			log.Warn("diagram generation failed", "mode", mode, "err", err)
		}
		return Result{Diagram: "", Exhausted: true, QuotaHit: quota}
	}
	return l.correct(ctx, mode, candidate, nil, in)
}

// Correct drives a caller-provided candidate through the loop, bypassing
// initial generation. extraErrors (e.g. a downstream renderer's message)
// are handed to the model repair alongside the validator findings.
func (l *Loop) Correct(ctx context.Context, mode, candidate string, extraErrors []string, in content.DiagramInput) Result {
	return l.correct(ctx, mode, candidate, extraErrors, in)
}

func (l *Loop) correct(ctx context.Context, mode, candidate string, extra []string, in content.DiagramInput) Result {
	budget := mermaid.Budget{MaxNodes: in.MaxNodes, MaxEdges: in.MaxEdges}
	centrality := centralityByID(in)

	best := candidate
	bestErrs := len(mermaid.Validate(candidate, budget))

	for attempt := 1; ; attempt++ {
		findings := mermaid.Validate(candidate, budget)
		if len(findings) == 0 {
			return Result{Diagram: candidate, Valid: true}
		}

		candidate = mermaid.Repair(candidate, findings, centrality, budget)
		findings = mermaid.Validate(candidate, budget)
		if len(findings) == 0 {
			return Result{Diagram: candidate, Valid: true}
		}

		if len(findings) < bestErrs {
			best, bestErrs = candidate, len(findings)
		}

		if attempt >= l.maxAttempts {
			log.Warn("diagram correction exhausted", "mode", mode, "remaining_errors", len(findings))
			return Result{Diagram: best, Exhausted: true, Findings: findings}
		}

		repaired, err := l.gen.RepairDiagram(ctx, candidate, findingMessages(findings, extra))
		if err != nil {
			quota := errors.Is(err, llm.ErrQuotaExhausted)
			if quota {
				log.Warn("diagram repair hit quota, keeping best candidate", "mode", mode)
			} else {
				log.Warn("diagram model repair failed", "mode", mode, "err", err)
			}
			return Result{Diagram: best, Exhausted: true, QuotaHit: quota, Findings: findings}
		}
		candidate = repaired
	}
}

func findingMessages(findings []mermaid.Finding, extra []string) []string {
	msgs := make([]string, 0, len(findings)+len(extra))
	for _, f := range findings {
		msgs = append(msgs, f.Message)
	}
	msgs = append(msgs, extra...)
	return msgs
}

func centralityByID(in content.DiagramInput) map[string]float64 {
	if in.Graph == nil {
		return nil
	}
	return in.Graph.DegreeCentrality
}

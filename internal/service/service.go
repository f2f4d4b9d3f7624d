// Package service exposes the analysis operations: starting (with cache
// semantics), polling, result retrieval, and on-demand diagram generation
// and correction against stored analysis data.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shikhar1verma/code-architecture-mapper/internal/config"
	"github.com/shikhar1verma/code-architecture-mapper/internal/content"
	"github.com/shikhar1verma/code-architecture-mapper/internal/deps"
	"github.com/shikhar1verma/code-architecture-mapper/internal/diagram"
	"github.com/shikhar1verma/code-architecture-mapper/internal/store"
	"github.com/shikhar1verma/code-architecture-mapper/internal/workflow"
)

// ErrNotReady is returned by Result while a run is still in flight.
var ErrNotReady = errors.New("analysis not yet completed")

// ErrUnknownMode is returned for a diagram mode outside the known set.
var ErrUnknownMode = errors.New("unknown diagram mode")

// Modes of the on-demand diagram operations.
var validModes = map[string]bool{"overview": true, "balanced": true, "detailed": true}

// Service coordinates the store, the workflow runner, and the diagram loop.
type Service struct {
	store  *store.Store
	runner *workflow.Runner
	loop   *diagram.Loop
	cfg    config.AnalysisConfig
}

// New wires a Service.
func New(st *store.Store, runner *workflow.Runner, loop *diagram.Loop, cfg config.AnalysisConfig) *Service {
	return &Service{store: st, runner: runner, loop: loop, cfg: cfg}
}

// StartResult reports the outcome of a start request.
type StartResult struct {
	RunID    string
	Status   string
	Cached   bool
	CachedAt time.Time
}

// Start begins an analysis for repoURL, or returns the existing run when
// one is cached or in flight. With forceRefresh a new run is always
// scheduled. The workflow executes in the background; callers poll Status.
func (s *Service) Start(ctx context.Context, repoURL string, forceRefresh bool) (StartResult, error) {
	if !forceRefresh {
		existing, err := s.store.LookupLatestByURL(ctx, repoURL)
		switch {
		case err == nil && existing.Status == store.StatusCompleted:
			return StartResult{
				RunID:    existing.ID,
				Status:   existing.Status,
				Cached:   true,
				CachedAt: existing.UpdatedAt,
			}, nil
		case err == nil && (existing.Status == store.StatusPending || existing.Status == store.StatusStarted):
			return StartResult{RunID: existing.ID, Status: existing.Status}, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return StartResult{}, fmt.Errorf("cache lookup: %w", err)
		}
		// a previous failed run does not block a retry
	}

	runID, err := s.store.CreateRun(ctx, repoURL)
	if err != nil {
		return StartResult{}, err
	}

	go func() {
		// the run outlives the request; the workflow applies its own deadline
		if err := s.runner.Run(context.Background(), runID, repoURL); err != nil {
			log.Error("background analysis failed", "run", runID, "err", err)
		}
	}()

	return StartResult{RunID: runID, Status: store.StatusPending}, nil
}

// Status is a fast read of the run's lifecycle record.
func (s *Service) Status(ctx context.Context, runID string) (*store.RunInfo, error) {
	return s.store.GetRun(ctx, runID)
}

// Result returns the persisted results of a completed run.
func (s *Service) Result(ctx context.Context, runID string) (*store.Results, error) {
	info, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if info.Status != store.StatusCompleted {
		return nil, fmt.Errorf("%w: status %s", ErrNotReady, info.Status)
	}
	return s.store.LoadResults(ctx, runID)
}

// GenerateDiagram runs one diagram subgraph instance against the stored
// analysis data. Idempotent: a non-empty stored diagram is returned as-is.
func (s *Service) GenerateDiagram(ctx context.Context, runID, mode string) (string, error) {
	results, in, err := s.diagramContext(ctx, runID, mode)
	if err != nil {
		return "", err
	}
	if existing := artifactFor(results, mode); existing != "" {
		return existing, nil
	}

	res := s.loop.Generate(ctx, mode, in)
	if err := s.persistDiagram(ctx, runID, results, mode, res.Diagram); err != nil {
		return "", err
	}
	return res.Diagram, nil
}

// CorrectDiagram feeds a caller-provided candidate and renderer error into
// the diagram subgraph, bypassing initial generation, and persists the
// corrected diagram.
func (s *Service) CorrectDiagram(ctx context.Context, runID, mode, brokenCode, errorMessage string) (string, error) {
	results, in, err := s.diagramContext(ctx, runID, mode)
	if err != nil {
		return "", err
	}

	var extra []string
	if errorMessage != "" {
		extra = []string{errorMessage}
	}
	res := s.loop.Correct(ctx, mode, brokenCode, extra, in)
	if err := s.persistDiagram(ctx, runID, results, mode, res.Diagram); err != nil {
		return "", err
	}
	return res.Diagram, nil
}

// diagramContext loads a completed run and rebuilds the diagram input from
// its stored metrics.
func (s *Service) diagramContext(ctx context.Context, runID, mode string) (*store.Results, content.DiagramInput, error) {
	if !validModes[mode] {
		return nil, content.DiagramInput{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	results, err := s.store.LoadResults(ctx, runID)
	if err != nil {
		return nil, content.DiagramInput{}, err
	}

	var paths []string
	if results.Metrics.Graph != nil {
		for _, n := range results.Metrics.Graph.Nodes {
			paths = append(paths, n.ID)
		}
	}
	analysis := results.Metrics.DependencyAnalysis
	if analysis == nil {
		analysis = &deps.Analysis{}
	}
	budget := s.cfg.DiagramBudgets[mode]
	in := content.DiagramInput{
		Analysis:  analysis,
		Graph:     results.Metrics.Graph,
		Narrative: results.Artifacts.ArchitectureMD,
		FilePaths: paths,
		MaxNodes:  budget.MaxNodes,
		MaxEdges:  budget.MaxEdges,
	}
	return results, in, nil
}

// persistDiagram writes the mode's artifact back through the idempotent
// results save.
func (s *Service) persistDiagram(ctx context.Context, runID string, results *store.Results, mode, diagramText string) error {
	switch mode {
	case "overview":
		results.Artifacts.MermaidModulesSimple = diagramText
	case "balanced":
		results.Artifacts.MermaidModulesBalanced = diagramText
		results.Artifacts.MermaidModules = diagramText
	case "detailed":
		results.Artifacts.MermaidModulesDetailed = diagramText
	}
	return s.store.SaveResults(ctx, runID, results)
}

// artifactFor reads the stored diagram for a mode.
func artifactFor(results *store.Results, mode string) string {
	switch mode {
	case "overview":
		return results.Artifacts.MermaidModulesSimple
	case "balanced":
		return results.Artifacts.MermaidModulesBalanced
	case "detailed":
		return results.Artifacts.MermaidModulesDetailed
	}
	return ""
}

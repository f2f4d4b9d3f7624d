package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/shikhar1verma/code-architecture-mapper/internal/config"
	"github.com/shikhar1verma/code-architecture-mapper/internal/content"
	"github.com/shikhar1verma/code-architecture-mapper/internal/depgraph"
	"github.com/shikhar1verma/code-architecture-mapper/internal/deps"
	"github.com/shikhar1verma/code-architecture-mapper/internal/diagram"
	"github.com/shikhar1verma/code-architecture-mapper/internal/extract"
	"github.com/shikhar1verma/code-architecture-mapper/internal/gitfetch"
	"github.com/shikhar1verma/code-architecture-mapper/internal/llm"
	"github.com/shikhar1verma/code-architecture-mapper/internal/scanner"
	"github.com/shikhar1verma/code-architecture-mapper/internal/store"
)

// Machine-readable failure reasons.
const (
	ReasonFetchFailed       = "fetch_failed"
	ReasonScanFailed        = "scan_failed"
	ReasonQuotaExhausted    = "quota_exhausted"
	ReasonPersistenceFailed = "persistence_failed"
)

// fatalError wraps a run-terminating failure with its reason code.
type fatalError struct {
	reason string
	err    error
}

func (e *fatalError) Error() string { return fmt.Sprintf("%s: %v", e.reason, e.err) }
func (e *fatalError) Unwrap() error { return e.err }

// Runner executes analysis runs. Its collaborators are concrete types wired
// once by NewRunner and shared by every run; tests substitute a fake
// llm.Provider behind the gateway.
type Runner struct {
	store   *store.Store
	fetcher *gitfetch.Fetcher
	gen     *content.Generator
	gateway *llm.Gateway
	loop    *diagram.Loop
	cfg     config.AnalysisConfig
}

// NewRunner wires a runner.
func NewRunner(st *store.Store, fetcher *gitfetch.Fetcher, gen *content.Generator, gw *llm.Gateway, loop *diagram.Loop, cfg config.AnalysisConfig) *Runner {
	return &Runner{store: st, fetcher: fetcher, gen: gen, gateway: gw, loop: loop, cfg: cfg}
}

// Run drives one analysis to a terminal status. The returned error reports
// a failed run; a degraded-but-completed run returns nil.
func (r *Runner) Run(ctx context.Context, runID, repoURL string) error {
	st := &State{RunID: runID, RepoURL: repoURL}

	r.progress(ctx, runID, store.StatusStarted, "Cloning repository and performing static analysis...")

	err := r.staticPrelude(ctx, st)
	if st.Snapshot != nil {
		defer st.Snapshot.Release()
	}
	if err != nil {
		return r.fail(ctx, runID, err)
	}

	// the LLM-involving phase runs under the per-run deadline
	llmCtx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout.Std())
	defer cancel()

	if len(st.Files) == 0 {
		st.Narrative = "no supported files"
		st.AppendNote("scan: no supported files found")
	} else {
		if err := r.narrative(llmCtx, st); err != nil {
			return r.fail(ctx, runID, err)
		}
		r.fanOut(llmCtx, st)
	}

	if llmCtx.Err() == context.DeadlineExceeded {
		st.TimedOut = true
		st.AppendNote("run deadline exceeded; partial results persisted")
	}

	// S4: join barrier has passed; persist whatever is available
	r.progress(ctx, runID, store.StatusStarted, "Finalizing and saving results...")
	results := r.assemble(st)
	if err := r.store.SaveResults(ctx, runID, results); err != nil {
		return r.fail(ctx, runID, &fatalError{reason: ReasonPersistenceFailed, err: err})
	}
	msg := ""
	if entries := st.ErrorLog(); len(entries) > 0 {
		msg = strings.Join(entries, "; ")
	}
	if err := r.store.UpdateStatus(ctx, runID, store.StatusCompleted, "Analysis completed", msg); err != nil {
		return r.fail(ctx, runID, &fatalError{reason: ReasonPersistenceFailed, err: err})
	}
	log.Info("analysis completed", "run", runID, "files", len(st.Files), "errors", len(st.ErrorLog()))
	return nil
}

// staticPrelude is S1: clone, scan, extract, graph, classify. Every failure
// here is fatal to the run.
func (r *Runner) staticPrelude(ctx context.Context, st *State) error {
	snap, err := r.fetcher.Clone(ctx, st.RepoURL)
	if err != nil {
		return &fatalError{reason: ReasonFetchFailed, err: err}
	}
	st.Snapshot = snap
	snap.Meta.ResolveDefaultBranch(ctx)

	scanCfg := r.cfg
	if ov, err := config.LoadRepoOverrides(snap.Root); err == nil {
		scanCfg = ov.Apply(r.cfg)
	} else {
		st.AppendError("scan-overrides", err)
	}

	files, stats, err := scanner.Scan(snap.Root, scanner.Options{
		Extensions:   scanCfg.SupportedExtensions,
		ExcludedDirs: scanCfg.ExcludedDirs,
		ExcerptChars: scanCfg.ExcerptChars,
	})
	if err != nil {
		return &fatalError{reason: ReasonScanFailed, err: err}
	}
	st.Files = files
	st.Stats = stats
	st.Edges = extract.Extract(snap.Root, files)
	st.Graph = depgraph.Build(files, st.Edges)
	st.Analysis = deps.Analyze(st.Edges, len(files))

	topFiles := st.Graph.TopFiles
	if len(topFiles) > r.cfg.TopFiles {
		topFiles = topFiles[:r.cfg.TopFiles]
	}
	st.Excerpts = content.SelectExcerpts(files, topFiles, r.cfg.ExcerptChars*12)
	return nil
}

// narrative is S2. Quota exhaustion here fails the run; any other model
// failure degrades it to an empty narrative.
func (r *Runner) narrative(ctx context.Context, st *State) error {
	r.progress(ctx, st.RunID, store.StatusStarted, "Generating architecture overview...")

	topFiles := st.Graph.TopFiles
	if len(topFiles) > r.cfg.TopFiles {
		topFiles = topFiles[:r.cfg.TopFiles]
	}
	md, err := r.gen.Narrative(ctx, st.Stats.LanguageStats, topFiles, st.Excerpts)
	switch {
	case err == nil:
		st.Narrative = md
	case errors.Is(err, llm.ErrQuotaExhausted):
		return &fatalError{reason: ReasonQuotaExhausted, err: err}
	default:
		st.AppendError("narrative", err)
	}
	return nil
}

// fanOut is S3: components and the three diagram modes run concurrently on
// a shared pool, writing disjoint state fields. The join waits for all four
// regardless of individual outcomes.
func (r *Runner) fanOut(ctx context.Context, st *State) {
	r.progress(ctx, st.RunID, store.StatusStarted, "Extracting components and generating diagrams...")

	in := content.DiagramInput{
		Analysis:  st.Analysis,
		Graph:     st.Graph,
		Narrative: st.Narrative,
		FilePaths: filePaths(st.Files),
	}

	p := pool.New().WithMaxGoroutines(4)

	p.Go(func() {
		topFiles := st.Graph.TopFiles
		if len(topFiles) > r.cfg.ComponentCount {
			topFiles = topFiles[:r.cfg.ComponentCount]
		}
		comps, err := r.gen.Components(ctx, topFiles, st.Excerpts)
		st.Components = comps
		if err != nil {
			if errors.Is(err, llm.ErrQuotaExhausted) {
				st.AppendError("components", fmt.Errorf("%s: %w", ReasonQuotaExhausted, err))
			} else {
				st.AppendError("components", err)
			}
		}
	})

	modes := []struct {
		name string
		dst  *string
	}{
		{"overview", &st.DiagramOverview},
		{"balanced", &st.DiagramBalanced},
		{"detailed", &st.DiagramDetailed},
	}
	for _, m := range modes {
		m := m
		p.Go(func() {
			if ctx.Err() != nil {
				st.AppendError("diagram:"+m.name, ctx.Err())
				return
			}
			budget := r.cfg.DiagramBudgets[m.name]
			modeIn := in
			modeIn.MaxNodes = budget.MaxNodes
			modeIn.MaxEdges = budget.MaxEdges
			res := r.loop.Generate(ctx, m.name, modeIn)
			*m.dst = res.Diagram
			switch {
			case res.QuotaHit:
				st.AppendError("diagram:"+m.name, errors.New(ReasonQuotaExhausted))
			case res.Exhausted:
				st.AppendError("diagram:"+m.name, fmt.Errorf("correction exhausted with %d findings", len(res.Findings)))
			}
		})
	}

	p.Wait()
}

// assemble builds the persisted results from the run state. Unset optional
// outputs become empty values, never nulls.
func (r *Runner) assemble(st *State) *store.Results {
	components := st.Components
	if components == nil {
		components = []content.Component{}
	}
	var repo store.RepoInfo
	if st.Snapshot != nil {
		repo = store.RepoInfoFromSnapshot(st.RepoURL, st.Snapshot)
	} else {
		repo = store.RepoInfo{URL: st.RepoURL}
	}
	stats := st.Stats.LanguageStats
	if stats == nil {
		stats = map[string]float64{}
	}
	return &store.Results{
		Status:        store.StatusCompleted,
		Repo:          repo,
		LanguageStats: stats,
		LinesTotal:    st.Stats.LinesTotal,
		FileCount:     st.Stats.FileCount,
		Metrics: store.Metrics{
			CentralFiles:       st.Graph.TopFiles,
			Graph:              st.Graph,
			DependencyAnalysis: st.Analysis,
		},
		Components: components,
		Artifacts: store.Artifacts{
			ArchitectureMD:         st.Narrative,
			MermaidModules:         st.DiagramBalanced,
			MermaidModulesSimple:   st.DiagramOverview,
			MermaidModulesBalanced: st.DiagramBalanced,
			MermaidModulesDetailed: st.DiagramDetailed,
			MermaidFolders:         deps.FoldersMermaid(filePaths(st.Files)),
		},
		TokenBudget: store.TokenBudget{GenCalls: r.gateway.GenCalls()},
	}
}

// fail marks the run failed with its machine-readable reason.
func (r *Runner) fail(ctx context.Context, runID string, err error) error {
	reason := "internal_error"
	var fe *fatalError
	if errors.As(err, &fe) {
		reason = fe.reason
	}
	log.Error("analysis failed", "run", runID, "reason", reason, "err", err)
	if uerr := r.store.UpdateStatus(ctx, runID, store.StatusFailed, "Analysis failed", reason); uerr != nil {
		log.Error("failed to persist failure status", "run", runID, "err", uerr)
	}
	return err
}

func (r *Runner) progress(ctx context.Context, runID, status, label string) {
	if err := r.store.UpdateStatus(ctx, runID, status, label, ""); err != nil {
		log.Warn("progress update failed", "run", runID, "err", err)
	}
}

func filePaths(files []scanner.FileRecord) []string {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}

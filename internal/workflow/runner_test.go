package workflow

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shikhar1verma/code-architecture-mapper/internal/config"
	"github.com/shikhar1verma/code-architecture-mapper/internal/content"
	"github.com/shikhar1verma/code-architecture-mapper/internal/diagram"
	"github.com/shikhar1verma/code-architecture-mapper/internal/gitfetch"
	"github.com/shikhar1verma/code-architecture-mapper/internal/llm"
	"github.com/shikhar1verma/code-architecture-mapper/internal/store"
)

// ---------- helpers ----------

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.CommandContext(context.Background(), "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(out))
}

// fixtureRepo creates a local git repository with a minimal python package.
func fixtureRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test")

	writeFile(t, filepath.Join(dir, "pkg", "__init__.py"), "")
	writeFile(t, filepath.Join(dir, "pkg", "a.py"), "from pkg import b\n")
	writeFile(t, filepath.Join(dir, "pkg", "b.py"), "")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "fixture")
	return dir
}

// promptRouter answers by prompt kind so each stage gets a plausible reply.
// quotaFor marks prompt substrings that exhaust quota instead.
type promptRouter struct {
	quotaFor []string
	slow     time.Duration
}

func (p *promptRouter) generate(ctx context.Context, model, prompt string) (string, error) {
	if p.slow > 0 {
		select {
		case <-time.After(p.slow):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	for _, marker := range p.quotaFor {
		if strings.Contains(prompt, marker) {
			return "", llm.ErrModelQuota
		}
	}
	switch {
	case strings.Contains(prompt, "Architecture.md"):
		return "# Overview\n\n## Component Map\npkg\n\n## Data Flow\nimports\n", nil
	case strings.Contains(prompt, "ONE architectural component"):
		return `{"name": "Pkg", "purpose": "the package", "key_files": [{"path": "pkg/a.py", "reason": "entry"}]}`, nil
	default:
		return "flowchart TB\nA[\"pkg\"] --> B[\"deps\"]", nil
	}
}

func testConfig() config.AnalysisConfig {
	cfg := config.DefaultConfig().Analysis
	cfg.RunTimeout = config.Duration(30 * time.Second)
	return cfg
}

// buildRunner wires a runner over an in-memory store and the given provider.
// A provider error that is not transient or model quota surfaces as an
// APIError; returning quota for the single model exhausts the chain.
func buildRunner(t *testing.T, provider llm.Provider, cfg config.AnalysisConfig) (*Runner, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gw := llm.NewGateway(provider, llm.Options{
		Models:           []string{"only-model"},
		AttemptsPerModel: 1,
		RetryMinDelay:    time.Millisecond,
		RetryMaxDelay:    time.Millisecond,
	})
	gen := content.NewGenerator(gw, cfg.ComponentCount)
	loop := diagram.NewLoop(gen, cfg.DiagramMaxAttempts)
	fetcher := gitfetch.NewFetcher(t.TempDir())
	return NewRunner(st, fetcher, gen, gw, loop, cfg), st
}

// quotaProvider exhausts the model chain for every call.
type quotaProvider struct{}

func (quotaProvider) Generate(ctx context.Context, model, prompt string) (string, error) {
	return "", llm.ErrModelQuota
}

// ---------- tests ----------

func TestRunCompletesAndPersists(t *testing.T) {
	repo := fixtureRepo(t)
	router := &promptRouter{}
	runner, st := buildRunner(t, llm.ProviderFunc(router.generate), testConfig())

	ctx := context.Background()
	runID, err := st.CreateRun(ctx, repo)
	require.NoError(t, err)

	require.NoError(t, runner.Run(ctx, runID, repo))

	info, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, info.Status)

	results, err := st.LoadResults(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, results.Status)
	assert.Equal(t, 3, results.FileCount)
	assert.Equal(t, map[string]float64{"python": 100.0}, results.LanguageStats)
	assert.NotEmpty(t, results.Repo.CommitSHA)

	require.NotNil(t, results.Metrics.Graph)
	assert.Len(t, results.Metrics.Graph.Nodes, 3)
	assert.Len(t, results.Metrics.Graph.Edges, 1)
	assert.Equal(t, "pkg/a.py", results.Metrics.Graph.Edges[0].Source)
	assert.Equal(t, "pkg/b.py", results.Metrics.Graph.Edges[0].Target)

	assert.Contains(t, results.Artifacts.ArchitectureMD, "# Overview")
	assert.NotEmpty(t, results.Artifacts.MermaidModulesBalanced)
	assert.NotEmpty(t, results.Artifacts.MermaidModulesSimple)
	assert.NotEmpty(t, results.Artifacts.MermaidModulesDetailed)
	assert.True(t, strings.HasPrefix(results.Artifacts.MermaidFolders, "flowchart TD"))
	require.Len(t, results.Components, 1)
	assert.Equal(t, "Pkg", results.Components[0].Name)
	assert.Greater(t, results.TokenBudget.GenCalls, 0)
}

func TestRunWorkspaceRemovedAfterCompletion(t *testing.T) {
	repo := fixtureRepo(t)
	router := &promptRouter{}
	cfg := testConfig()

	workDir := t.TempDir()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	gw := llm.NewGateway(llm.ProviderFunc(router.generate), llm.Options{
		Models: []string{"m"}, AttemptsPerModel: 1,
		RetryMinDelay: time.Millisecond, RetryMaxDelay: time.Millisecond,
	})
	gen := content.NewGenerator(gw, cfg.ComponentCount)
	runner := NewRunner(st, gitfetch.NewFetcher(workDir), gen, gw, diagram.NewLoop(gen, 3), cfg)

	ctx := context.Background()
	runID, err := st.CreateRun(ctx, repo)
	require.NoError(t, err)
	require.NoError(t, runner.Run(ctx, runID, repo))

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace must be removed after the run")
}

func TestRunFetchFailureFailsRun(t *testing.T) {
	router := &promptRouter{}
	runner, st := buildRunner(t, llm.ProviderFunc(router.generate), testConfig())

	ctx := context.Background()
	runID, err := st.CreateRun(ctx, "/nonexistent/repo/nowhere")
	require.NoError(t, err)

	err = runner.Run(ctx, runID, "/nonexistent/repo/nowhere")
	require.Error(t, err)

	info, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, info.Status)
	assert.Equal(t, ReasonFetchFailed, info.Message)
}

func TestRunNarrativeQuotaFailsRun(t *testing.T) {
	repo := fixtureRepo(t)
	runner, st := buildRunner(t, quotaProvider{}, testConfig())

	ctx := context.Background()
	runID, err := st.CreateRun(ctx, repo)
	require.NoError(t, err)

	err = runner.Run(ctx, runID, repo)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrQuotaExhausted))

	info, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, info.Status)
	assert.Equal(t, ReasonQuotaExhausted, info.Message)
}

func TestRunPartialDegradationOneDiagramMode(t *testing.T) {
	repo := fixtureRepo(t)
	// the detailed diagram prompt names its own mode; everything else works
	router := &promptRouter{quotaFor: []string{`"detailed" complexity level`}}
	runner, st := buildRunner(t, llm.ProviderFunc(router.generate), testConfig())

	ctx := context.Background()
	runID, err := st.CreateRun(ctx, repo)
	require.NoError(t, err)

	require.NoError(t, runner.Run(ctx, runID, repo))

	info, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, info.Status)
	assert.Contains(t, info.Message, "diagram:detailed")

	results, err := st.LoadResults(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, results.Artifacts.MermaidModulesDetailed)
	assert.NotEmpty(t, results.Artifacts.MermaidModulesBalanced)
	assert.NotEmpty(t, results.Artifacts.MermaidModulesSimple)
	assert.NotEmpty(t, results.Artifacts.ArchitectureMD)
}

func TestRunEmptyRepository(t *testing.T) {
	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test")
	writeFile(t, filepath.Join(dir, "README.md"), "# nothing to scan\n")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "empty")

	router := &promptRouter{}
	runner, st := buildRunner(t, llm.ProviderFunc(router.generate), testConfig())

	ctx := context.Background()
	runID, err := st.CreateRun(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, runner.Run(ctx, runID, dir))

	results, err := st.LoadResults(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 0, results.FileCount)
	assert.Equal(t, "no supported files", results.Artifacts.ArchitectureMD)
	assert.Empty(t, results.Components)
	assert.Empty(t, results.Artifacts.MermaidModulesBalanced)
	assert.Empty(t, results.Metrics.Graph.Nodes)
}

func TestRunDeadlineDegradesButCompletes(t *testing.T) {
	repo := fixtureRepo(t)
	router := &promptRouter{slow: 2 * time.Second}
	cfg := testConfig()
	cfg.RunTimeout = config.Duration(100 * time.Millisecond)

	workDir := t.TempDir()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	gw := llm.NewGateway(llm.ProviderFunc(router.generate), llm.Options{
		Models: []string{"m"}, AttemptsPerModel: 1,
		RetryMinDelay: time.Millisecond, RetryMaxDelay: time.Millisecond,
	})
	gen := content.NewGenerator(gw, cfg.ComponentCount)
	runner := NewRunner(st, gitfetch.NewFetcher(workDir), gen, gw, diagram.NewLoop(gen, 3), cfg)

	ctx := context.Background()
	runID, err := st.CreateRun(ctx, repo)
	require.NoError(t, err)
	require.NoError(t, runner.Run(ctx, runID, repo))

	info, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, info.Status)
	assert.Contains(t, info.Message, "deadline")

	// workspace is still released on the timeout path
	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestErrorLogConcurrentAppend(t *testing.T) {
	st := &State{}
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				st.AppendError("stage", errors.New("x"))
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Len(t, st.ErrorLog(), 800)
}

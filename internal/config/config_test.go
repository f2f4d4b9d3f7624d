package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, []string{
		"gemini-2.5-flash-lite",
		"gemini-2.5-flash",
		"gemini-2.0-flash",
		"gemini-2.0-flash-lite",
	}, cfg.LLM.ModelFallback)
	assert.Equal(t, 2, cfg.LLM.MaxAttemptsPerModel)
	assert.Equal(t, time.Second, cfg.LLM.RetryMinDelay.Std())
	assert.Equal(t, 2*time.Second, cfg.LLM.RetryMaxDelay.Std())

	assert.Equal(t, 40, cfg.Analysis.TopFiles)
	assert.Equal(t, 8, cfg.Analysis.ComponentCount)
	assert.Equal(t, 3, cfg.Analysis.DiagramMaxAttempts)
	assert.Equal(t, 300*time.Second, cfg.Analysis.RunTimeout.Std())

	assert.Equal(t, DiagramBudget{MaxNodes: 20, MaxEdges: 25}, cfg.Analysis.DiagramBudgets["overview"])
	assert.Equal(t, DiagramBudget{MaxNodes: 50, MaxEdges: 75}, cfg.Analysis.DiagramBudgets["balanced"])
	assert.Equal(t, DiagramBudget{MaxNodes: 100, MaxEdges: 150}, cfg.Analysis.DiagramBudgets["detailed"])

	assert.Contains(t, cfg.Analysis.SupportedExtensions, ".py")
	assert.Contains(t, cfg.Analysis.SupportedExtensions, ".tsx")
	assert.Contains(t, cfg.Analysis.ExcludedDirs, "node_modules")
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Analysis.TopFiles, cfg.Analysis.TopFiles)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[llm]
call_timeout = "90s"

[analysis]
top_files = 25
run_timeout = "2m"

[server]
addr = ":9999"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Analysis.TopFiles)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 90*time.Second, cfg.LLM.CallTimeout.Std())
	assert.Equal(t, 2*time.Minute, cfg.Analysis.RunTimeout.Std())
	// untouched sections keep defaults
	assert.Equal(t, 8, cfg.Analysis.ComponentCount)
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("ARCHMAPPER_TEST_KEY", "from-env")

	key, err := ResolveAPIKey("env", "", "ARCHMAPPER_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	key, err = ResolveAPIKey("config", "inline", "")
	require.NoError(t, err)
	assert.Equal(t, "inline", key)

	_, err = ResolveAPIKey("env", "", "ARCHMAPPER_UNSET_KEY")
	assert.Error(t, err)

	_, err = ResolveAPIKey("wat", "", "")
	assert.Error(t, err)
}

func TestRepoOverrides(t *testing.T) {
	dir := t.TempDir()
	body := "exclude_dirs:\n  - generated\nextensions:\n  - .py\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".archmapper.yaml"), []byte(body), 0o644))

	ov, err := LoadRepoOverrides(dir)
	require.NoError(t, err)

	base := DefaultConfig().Analysis
	merged := ov.Apply(base)
	assert.Contains(t, merged.ExcludedDirs, "generated")
	assert.Contains(t, merged.ExcludedDirs, "node_modules")
	assert.Equal(t, []string{".py"}, merged.SupportedExtensions)

	// the base config is untouched
	assert.NotContains(t, base.ExcludedDirs, "generated")
}

func TestRepoOverridesMissingFile(t *testing.T) {
	ov, err := LoadRepoOverrides(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, ov.ExcludeDirs)
	assert.Empty(t, ov.Extensions)
}

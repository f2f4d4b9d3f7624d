package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shikhar1verma/code-architecture-mapper/internal/store"
)

func TestRenderMarkdownEmpty(t *testing.T) {
	assert.Equal(t, "", RenderMarkdown(""))
}

func TestRenderMarkdownNonTerminalPassthrough(t *testing.T) {
	// tests never run on a terminal stdout, so the text passes through
	md := "# Title\n\nbody text\n"
	assert.Equal(t, md, RenderMarkdown(md))
}

func TestSummary(t *testing.T) {
	results := &store.Results{
		Repo: store.RepoInfo{URL: "https://github.com/acme/app", CommitSHA: "abcdef0123456789"},
		LanguageStats: map[string]float64{
			"python":     75.0,
			"typescript": 25.0,
		},
		FileCount:  4,
		LinesTotal: 120,
		Metrics: store.Metrics{
			CentralFiles: []string{"pkg/a.py", "pkg/b.py"},
		},
		TokenBudget: store.TokenBudget{GenCalls: 6},
	}

	out := Summary(results)
	assert.Contains(t, out, "https://github.com/acme/app")
	assert.Contains(t, out, "abcdef0123") // shortened sha
	assert.Contains(t, out, "python")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "4 files, 120 lines")
	assert.Contains(t, out, "pkg/a.py")
	assert.Contains(t, out, "llm calls: 6")
	assert.True(t, strings.Contains(out, "typescript"))
}

// Package output renders analysis results for the CLI: styled markdown
// when stdout is a terminal, plain text otherwise.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/shikhar1verma/code-architecture-mapper/internal/store"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// RenderMarkdown returns the markdown styled for the terminal when stdout
// is one, otherwise unchanged.
func RenderMarkdown(md string) string {
	if md == "" {
		return ""
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Summary renders the run's headline numbers.
func Summary(results *store.Results) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Repository"))
	fmt.Fprintf(&b, "\n  %s @ %s\n\n", results.Repo.URL, short(results.Repo.CommitSHA))

	b.WriteString(headerStyle.Render("Languages"))
	b.WriteString("\n")
	langs := make([]string, 0, len(results.LanguageStats))
	for l := range results.LanguageStats {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		fmt.Fprintf(&b, "  %-12s %5.1f%%\n", l, results.LanguageStats[l])
	}

	fmt.Fprintf(&b, "\n%s\n  %d files, %d lines, %d components\n",
		headerStyle.Render("Totals"),
		results.FileCount, results.LinesTotal, len(results.Components))

	if len(results.Metrics.CentralFiles) > 0 {
		b.WriteString("\n" + headerStyle.Render("Most central files") + "\n")
		for i, p := range results.Metrics.CentralFiles {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}

	fmt.Fprintf(&b, "\n%s\n", dimStyle.Render(fmt.Sprintf("llm calls: %d", results.TokenBudget.GenCalls)))
	return b.String()
}

func short(sha string) string {
	if len(sha) > 10 {
		return sha[:10]
	}
	return sha
}

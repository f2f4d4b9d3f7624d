// Package content assembles the LLM requests of the analysis: the
// architecture narrative, the component records, and the per-mode diagram
// prompts, including their response parsing.
package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/charmbracelet/log"

	"github.com/shikhar1verma/code-architecture-mapper/internal/depgraph"
	"github.com/shikhar1verma/code-architecture-mapper/internal/deps"
	"github.com/shikhar1verma/code-architecture-mapper/internal/llm"
	"github.com/shikhar1verma/code-architecture-mapper/internal/scanner"
)

var (
	overviewTmpl   = template.Must(template.New("overview").Parse(overviewUserTmpl))
	componentTmpl  = template.Must(template.New("component").Parse(componentUserTmpl))
	diagramTmpl    = template.Must(template.New("diagram").Parse(diagramUserTmpl))
	correctionTmpl = template.Must(template.New("correction").Parse(correctionUserTmpl))
)

// Component is one architectural component record, persisted as opaque
// structured data.
type Component struct {
	Name         string         `json:"name"`
	Purpose      string         `json:"purpose"`
	KeyFiles     []ComponentRef `json:"key_files"`
	APIs         []ComponentAPI `json:"apis"`
	Dependencies []string       `json:"dependencies"`
	Risks        []string       `json:"risks"`
	Tests        []string       `json:"tests"`
}

// ComponentRef is a key file with its rationale.
type ComponentRef struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ComponentAPI names an API with its owning file.
type ComponentAPI struct {
	Name string `json:"name"`
	File string `json:"file"`
}

// Excerpt pairs a file path with a content snippet.
type Excerpt struct {
	Path string
	Text string
}

// Generator assembles prompts and parses responses through the gateway.
type Generator struct {
	gw             *llm.Gateway
	componentCount int
}

// NewGenerator wires a gateway.
func NewGenerator(gw *llm.Gateway, componentCount int) *Generator {
	if componentCount <= 0 {
		componentCount = 8
	}
	return &Generator{gw: gw, componentCount: componentCount}
}

// SelectExcerpts picks excerpts from the most central files, spreading
// across top-level directories for diversity, bounded by a total character
// budget.
func SelectExcerpts(files []scanner.FileRecord, topFiles []string, totalBudget int) []Excerpt {
	byPath := make(map[string]scanner.FileRecord, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}

	// bucket the ranked files by top-level directory, preserving rank order
	buckets := map[string][]string{}
	var bucketOrder []string
	for _, p := range topFiles {
		top := strings.SplitN(p, "/", 2)[0]
		if _, ok := buckets[top]; !ok {
			bucketOrder = append(bucketOrder, top)
		}
		buckets[top] = append(buckets[top], p)
	}

	var out []Excerpt
	used := 0
	// round-robin over buckets so one directory cannot dominate
	for len(bucketOrder) > 0 {
		var next []string
		for _, b := range bucketOrder {
			paths := buckets[b]
			if len(paths) == 0 {
				continue
			}
			p := paths[0]
			buckets[b] = paths[1:]
			if len(buckets[b]) > 0 {
				next = append(next, b)
			}
			f, ok := byPath[p]
			if !ok || f.Excerpt == "" {
				continue
			}
			if totalBudget > 0 && used+len(f.Excerpt) > totalBudget {
				return out
			}
			used += len(f.Excerpt)
			out = append(out, Excerpt{Path: p, Text: f.Excerpt})
		}
		bucketOrder = next
	}
	return out
}

// Narrative produces the architecture overview markdown.
func (g *Generator) Narrative(ctx context.Context, langStats map[string]float64, topFiles []string, excerpts []Excerpt) (string, error) {
	if len(topFiles) > 30 {
		topFiles = topFiles[:30]
	}
	if len(excerpts) > 12 {
		excerpts = excerpts[:12]
	}

	var topLines strings.Builder
	for _, p := range topFiles {
		fmt.Fprintf(&topLines, "- %s\n", p)
	}

	var buf bytes.Buffer
	err := overviewTmpl.Execute(&buf, struct {
		LanguageStats string
		TopFiles      string
		Excerpts      string
	}{
		LanguageStats: formatLangStats(langStats),
		TopFiles:      topLines.String(),
		Excerpts:      renderExcerpts(excerpts, 0),
	})
	if err != nil {
		return "", fmt.Errorf("rendering narrative prompt: %w", err)
	}
	return g.gw.GenerateMarkdown(ctx, overviewSystem, buf.String())
}

// Components extracts component records: the top files are grouped by path
// heuristics and each group with at least one excerpt becomes one structured
// request; groups without excerpts produce no record. Quota errors
// propagate; any other per-group failure degrades to a stub record.
func (g *Generator) Components(ctx context.Context, topFiles []string, excerpts []Excerpt) ([]Component, error) {
	if len(topFiles) == 0 {
		return nil, nil
	}

	byPath := map[string]string{}
	for _, ex := range excerpts {
		byPath[ex.Path] = ex.Text
	}

	var components []Component
	for _, group := range groupByComponent(topFiles, g.componentCount) {
		var groupExcerpts []Excerpt
		for _, p := range group.files {
			if text, ok := byPath[p]; ok {
				groupExcerpts = append(groupExcerpts, Excerpt{Path: p, Text: truncate(text, 800)})
			}
		}
		if len(groupExcerpts) == 0 {
			continue
		}

		var filesList strings.Builder
		for _, p := range group.files {
			fmt.Fprintf(&filesList, "- %s\n", p)
		}

		var buf bytes.Buffer
		if err := componentTmpl.Execute(&buf, struct {
			Files    string
			Excerpts string
		}{
			Files:    filesList.String(),
			Excerpts: renderExcerpts(groupExcerpts, 0),
		}); err != nil {
			return nil, fmt.Errorf("rendering component prompt: %w", err)
		}

		var comp Component
		err := g.gw.GenerateStructured(ctx, componentSystem, buf.String(), &comp)
		switch {
		case err == nil:
			if comp.Name == "" {
				comp.Name = group.name
			}
			components = append(components, comp)
		case isQuota(err):
			return components, err
		default:
			log.Warn("component extraction degraded", "group", group.name, "err", err)
			components = append(components, stubComponent(group.name, group.files))
		}
	}
	return components, nil
}

// DiagramInput carries everything the diagram prompt references.
type DiagramInput struct {
	Analysis  *deps.Analysis
	Graph     *depgraph.Graph
	Narrative string
	FilePaths []string
	MaxNodes  int
	MaxEdges  int
}

// Diagram produces one Mermaid flowchart for the given mode.
func (g *Generator) Diagram(ctx context.Context, mode string, in DiagramInput) (string, error) {
	user, err := g.diagramPrompt(mode, in)
	if err != nil {
		return "", err
	}
	return g.gw.GenerateMermaid(ctx, diagramSystem, user)
}

// RepairDiagram asks the model to fix a broken diagram given the remaining
// validation errors.
func (g *Generator) RepairDiagram(ctx context.Context, broken string, errs []string) (string, error) {
	var buf bytes.Buffer
	if err := correctionTmpl.Execute(&buf, struct {
		Diagram string
		Errors  string
	}{
		Diagram: broken,
		Errors:  "- " + strings.Join(errs, "\n- "),
	}); err != nil {
		return "", fmt.Errorf("rendering correction prompt: %w", err)
	}
	return g.gw.GenerateMermaid(ctx, correctionSystem, buf.String())
}

func (g *Generator) diagramPrompt(mode string, in DiagramInput) (string, error) {
	var internalDeps strings.Builder
	for i, e := range in.Analysis.InternalEdges {
		if i >= 30 {
			break
		}
		fmt.Fprintf(&internalDeps, "%s -> %s\n", e.Src, e.Dst)
	}

	var externalDeps strings.Builder
	cats := make([]string, 0, len(in.Analysis.ExternalGroups))
	for cat := range in.Analysis.ExternalGroups {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		refs := in.Analysis.ExternalGroups[cat]
		var sample []string
		for i, r := range refs {
			if i >= 5 {
				break
			}
			sample = append(sample, r.Package)
		}
		fmt.Fprintf(&externalDeps, "%s (%d): %s\n", cat, len(refs), strings.Join(sample, ", "))
	}

	topFiles := in.Graph.TopFiles
	if len(topFiles) > 15 {
		topFiles = topFiles[:15]
	}

	var buf bytes.Buffer
	err := diagramTmpl.Execute(&buf, struct {
		Mode          string
		MaxNodes      int
		MaxEdges      int
		ModeGuidance  string
		FolderDiagram string
		ComponentMap  string
		DataFlow      string
		InternalDeps  string
		ExternalDeps  string
		TotalFiles    int
		TopFiles      string
	}{
		Mode:          mode,
		MaxNodes:      in.MaxNodes,
		MaxEdges:      in.MaxEdges,
		ModeGuidance:  modeGuidance[mode],
		FolderDiagram: deps.FoldersMermaid(in.FilePaths),
		ComponentMap:  orDefault(markdownSection(in.Narrative, "Component Map"), "No component map available"),
		DataFlow:      orDefault(markdownSection(in.Narrative, "Data Flow"), "No data flow information available"),
		InternalDeps:  orDefault(internalDeps.String(), "No internal dependencies found"),
		ExternalDeps:  orDefault(externalDeps.String(), "No external dependencies found"),
		TotalFiles:    len(in.FilePaths),
		TopFiles:      strings.Join(topFiles, ", "),
	})
	if err != nil {
		return "", fmt.Errorf("rendering diagram prompt: %w", err)
	}
	return buf.String(), nil
}

// ---------- helpers ----------

type fileGroup struct {
	name  string
	files []string
}

// groupByComponent buckets file paths into candidate components by their
// leading directory, keeping the largest limit groups.
func groupByComponent(paths []string, limit int) []fileGroup {
	buckets := map[string][]string{}
	var order []string
	for _, p := range paths {
		parts := strings.Split(p, "/")
		name := parts[0]
		if len(parts) >= 2 && (parts[0] == "src" || parts[0] == "lib" || parts[0] == "app") {
			name = parts[1]
		}
		if path.Ext(name) != "" {
			name = strings.TrimSuffix(name, path.Ext(name))
		}
		name = titleCase(name)
		if _, ok := buckets[name]; !ok {
			order = append(order, name)
		}
		buckets[name] = append(buckets[name], p)
	}

	groups := make([]fileGroup, 0, len(order))
	for _, name := range order {
		groups = append(groups, fileGroup{name: name, files: buckets[name]})
	}
	sort.SliceStable(groups, func(i, j int) bool { return len(groups[i].files) > len(groups[j].files) })
	if len(groups) > limit {
		groups = groups[:limit]
	}
	return groups
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func stubComponent(name string, files []string) Component {
	keyFiles := make([]ComponentRef, 0, 3)
	for i, f := range files {
		if i >= 3 {
			break
		}
		keyFiles = append(keyFiles, ComponentRef{Path: f, Reason: "Core file"})
	}
	return Component{
		Name:     name,
		Purpose:  fmt.Sprintf("Component containing %d key files", len(files)),
		KeyFiles: keyFiles,
		Risks:    []string{"Analysis incomplete due to processing error"},
	}
}

// markdownSection extracts the body of a "## name" section.
func markdownSection(markdown, name string) string {
	if markdown == "" {
		return ""
	}
	re := regexp.MustCompile(`(?is)##\s+` + regexp.QuoteMeta(name) + `\s*\n(.*?)(\n##|\n#|\z)`)
	m := re.FindStringSubmatch(markdown)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func renderExcerpts(excerpts []Excerpt, limit int) string {
	if limit > 0 && len(excerpts) > limit {
		excerpts = excerpts[:limit]
	}
	parts := make([]string, 0, len(excerpts))
	for _, ex := range excerpts {
		parts = append(parts, fmt.Sprintf("<file name=%q>\n%s\n</file>", ex.Path, ex.Text))
	}
	return strings.Join(parts, "\n\n")
}

func formatLangStats(stats map[string]float64) string {
	langs := make([]string, 0, len(stats))
	for l := range stats {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	parts := make([]string, 0, len(langs))
	for _, l := range langs {
		parts = append(parts, fmt.Sprintf("%s: %.1f%%", l, stats[l]))
	}
	return strings.Join(parts, ", ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func isQuota(err error) bool {
	return errors.Is(err, llm.ErrQuotaExhausted)
}

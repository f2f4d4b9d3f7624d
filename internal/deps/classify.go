// Package deps partitions the merged edge set into the dependency analysis:
// internal edges plus external packages grouped by category, with summary
// counts and the deterministic folder-structure diagram.
package deps

import (
	"sort"
	"strings"

	"github.com/shikhar1verma/code-architecture-mapper/internal/extract"
)

// Category names, in cascade priority order. The first matching rule wins;
// adding a token must never reorder the cascade.
const (
	CategoryFrontend = "Frontend Frameworks"
	CategoryWeb      = "Web Frameworks"
	CategoryDatabase = "Databases"
	CategoryTesting  = "Testing"
	CategoryBuild    = "Build Tools"
	CategoryUI       = "UI Libraries"
	CategoryTypes    = "Type Definitions"
	CategoryScoped   = "Scoped Packages"
	CategoryStdlib   = "Standard Library"
	CategoryExternal = "External Libraries"
)

var categoryTokens = []struct {
	category string
	tokens   []string
}{
	{CategoryFrontend, []string{"react", "vue", "angular", "svelte"}},
	{CategoryWeb, []string{"express", "fastapi", "flask", "django", "koa"}},
	{CategoryDatabase, []string{"postgres", "mysql", "mongodb", "redis", "sqlite"}},
	{CategoryTesting, []string{"jest", "pytest", "mocha", "chai", "cypress"}},
	{CategoryBuild, []string{"webpack", "vite", "rollup", "babel", "typescript"}},
	{CategoryUI, []string{"tailwind", "bootstrap", "material", "antd", "chakra"}},
}

// pythonStdlib is the module set de-prioritized into the standard library
// category.
var pythonStdlib = map[string]bool{
	"os": true, "sys": true, "json": true, "time": true, "datetime": true,
	"collections": true, "itertools": true, "functools": true, "re": true,
	"math": true, "random": true, "urllib": true, "http": true, "pathlib": true,
	"typing": true, "dataclasses": true, "enum": true, "abc": true,
	"asyncio": true, "concurrent": true, "logging": true, "unittest": true,
	"sqlite3": true, "csv": true, "xml": true, "html": true, "shutil": true,
	"subprocess": true, "tempfile": true, "io": true,
}

// Categorize assigns an external package specifier to exactly one category.
func Categorize(pkg string) string {
	lower := strings.ToLower(pkg)
	for _, rule := range categoryTokens {
		for _, tok := range rule.tokens {
			if strings.Contains(lower, tok) {
				return rule.category
			}
		}
	}
	if strings.HasPrefix(pkg, "@types/") {
		return CategoryTypes
	}
	if strings.HasPrefix(pkg, "@") {
		return CategoryScoped
	}
	if pythonStdlib[strings.SplitN(lower, ".", 2)[0]] {
		return CategoryStdlib
	}
	return CategoryExternal
}

// EdgeRef is an internal dependency (src file, dst file).
type EdgeRef struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// ExternalRef ties an importing file to an external package.
type ExternalRef struct {
	Src     string `json:"src"`
	Package string `json:"dst"`
}

// PathCount is a ranked (path, count) pair.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Summary carries the dependency analysis headline counts.
type Summary struct {
	InternalCount int            `json:"internal_count"`
	ExternalCount int            `json:"external_count"`
	Categories    []string       `json:"categories"`
	TotalFiles    int            `json:"total_files"`
	EdgeTypes     map[string]int `json:"edge_type_breakdown"`
}

// Analysis is the full partition of the edge set.
type Analysis struct {
	TotalEdges     int                      `json:"total_edges"`
	InternalEdges  []EdgeRef                `json:"internal_edges"`
	ExternalGroups map[string][]ExternalRef `json:"external_groups"`
	EdgeTypes      map[string]int           `json:"edge_types"`
	MostImported   []PathCount              `json:"most_imported"`
	MostImporting  []PathCount              `json:"most_importing"`
	Summary        Summary                  `json:"summary"`
}

// Analyze partitions edges into the dependency analysis. The partition is
// total: every edge is either internal or lands in exactly one external
// category.
func Analyze(edges []extract.Edge, totalFiles int) *Analysis {
	a := &Analysis{
		TotalEdges:     len(edges),
		ExternalGroups: map[string][]ExternalRef{},
		EdgeTypes:      map[string]int{},
	}

	importedBy := map[string]int{}
	importing := map[string]int{}

	for _, e := range edges {
		a.EdgeTypes[e.Via]++
		importing[e.Src]++
		importedBy[e.Dst]++
		if e.Internal {
			a.InternalEdges = append(a.InternalEdges, EdgeRef{Src: e.Src, Dst: e.Dst})
		} else {
			cat := Categorize(e.Dst)
			a.ExternalGroups[cat] = append(a.ExternalGroups[cat], ExternalRef{Src: e.Src, Package: e.Dst})
		}
	}

	a.MostImported = topCounts(importedBy, 10)
	a.MostImporting = topCounts(importing, 10)

	categories := make([]string, 0, len(a.ExternalGroups))
	externalCount := 0
	for cat, refs := range a.ExternalGroups {
		categories = append(categories, cat)
		externalCount += len(refs)
	}
	sort.Strings(categories)

	a.Summary = Summary{
		InternalCount: len(a.InternalEdges),
		ExternalCount: externalCount,
		Categories:    categories,
		TotalFiles:    totalFiles,
		EdgeTypes:     a.EdgeTypes,
	}
	return a
}

func topCounts(counts map[string]int, limit int) []PathCount {
	out := make([]PathCount, 0, len(counts))
	for p, c := range counts {
		out = append(out, PathCount{Path: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

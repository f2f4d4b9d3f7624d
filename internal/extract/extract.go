package extract

import (
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/shikhar1verma/code-architecture-mapper/internal/scanner"
)

// jsConcurrency bounds parallel per-file JS/TS parsing.
const jsConcurrency = 8

// Extract produces the complete edge set for the scanned files. Both the
// primary and the fallback extractor run for each language capability and
// their results are merged: union with deduplication, internal resolutions
// winning over raw specifiers for the same import.
func Extract(repoRoot string, files []scanner.FileRecord) []Edge {
	fileSet := make(map[string]bool, len(files))
	for _, f := range files {
		fileSet[f.Path] = true
	}

	var all []Edge
	all = append(all, pythonPackageEdges(files)...)
	all = append(all, pythonASTEdges(files)...)

	cfg := loadTSConfig(repoRoot)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(jsConcurrency)
	for _, f := range files {
		switch f.Language {
		case "javascript", "jsx", "typescript", "tsx":
		default:
			continue
		}
		f := f
		g.Go(func() error {
			edges, err := jsTreeSitterEdges(f, cfg, fileSet)
			if err != nil {
				log.Warn("tree-sitter parse failed, regex fallback only", "file", f.Path, "err", err)
			}
			edges = append(edges, jsRegexEdges(f, cfg, fileSet)...)
			mu.Lock()
			all = append(all, edges...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return merge(all, fileSet)
}

// merge applies the deterministic tie-breaks: internal beats external for
// the same (src, specifier), duplicates collapse to one edge, self-loops
// are dropped, and sources outside the file set are discarded.
func merge(edges []Edge, fileSet map[string]bool) []Edge {
	// internal wins per (src, specifier)
	internalSpec := map[[2]string]bool{}
	for _, e := range edges {
		if e.Internal {
			internalSpec[[2]string{e.Src, e.spec}] = true
		}
	}

	seen := map[[3]string]bool{}
	var out []Edge
	for _, e := range edges {
		if !fileSet[e.Src] {
			continue
		}
		if e.Internal && e.Src == e.Dst {
			continue // self-import, never meaningful in the graph
		}
		if !e.Internal && internalSpec[[2]string{e.Src, e.spec}] {
			continue
		}
		key := [3]string{e.Src, e.Dst, flag(e.Internal)}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Src != out[j].Src {
			return out[i].Src < out[j].Src
		}
		return out[i].Dst < out[j].Dst
	})
	return out
}

func flag(b bool) string {
	if b {
		return "i"
	}
	return "e"
}

package extract

import (
	"regexp"

	"github.com/shikhar1verma/code-architecture-mapper/internal/scanner"
)

// Line-oriented fallback patterns for the constructs the tree-sitter
// extractor handles. Coarser than a real parse, but resilient to files the
// grammar chokes on.
var jsImportPatterns = []*regexp.Regexp{
	regexp.MustCompile(`import\s+[^'"]*?\s+from\s+['"]([^'"]+)['"]`), // import ... from "m"
	regexp.MustCompile(`import\s+['"]([^'"]+)['"]`),                  // import "m"
	regexp.MustCompile(`export\s+[^'"]*?\s+from\s+['"]([^'"]+)['"]`), // export ... from "m"
	regexp.MustCompile(`require\s*\(\s*['"]([^'"]+)['"]\s*\)`),       // require("m")
	regexp.MustCompile(`import\s*\(\s*['"]([^'"]+)['"]\s*\)`),        // import("m")
}

// jsRegexEdges is the TS/JS fallback extractor: a regex scan over the file
// body for the same import constructs.
func jsRegexEdges(f scanner.FileRecord, cfg tsConfig, fileSet map[string]bool) []Edge {
	seen := map[string]bool{}
	var specs []string
	for _, pat := range jsImportPatterns {
		for _, m := range pat.FindAllSubmatch(f.Content, -1) {
			spec := string(m[1])
			if spec != "" && !seen[spec] {
				seen[spec] = true
				specs = append(specs, spec)
			}
		}
	}
	return resolveJSEdges(f.Path, specs, cfg, fileSet, viaTSRegexp)
}

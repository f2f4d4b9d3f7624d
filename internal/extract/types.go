// Package extract resolves imports across mixed python and JS/TS trees into
// a directed edge set. Each language has a primary and a fallback extractor;
// both run and their results are merged, with internal resolutions winning
// over raw specifiers for the same import.
package extract

// Edge is one resolved import relation. When Internal is true, Dst is a
// repository-relative file path; otherwise Dst is the raw import specifier.
// Via names the extractor that produced the edge and is diagnostic only.
type Edge struct {
	Src      string `json:"src"`
	Dst      string `json:"dst"`
	Internal bool   `json:"internal"`
	Via      string `json:"via"`

	// spec is the raw import specifier the edge was derived from. Two
	// extractors that disagree on resolution still share the spec, which
	// is what the merge step keys on.
	spec string
}

// extractor tags.
const (
	viaPyPkg    = "py-pkg"
	viaPyAST    = "py-ast"
	viaTS       = "tree-sitter"
	viaTSRegexp = "ts-regex"
)

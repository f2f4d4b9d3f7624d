package extract

import (
	"context"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/shikhar1verma/code-architecture-mapper/internal/scanner"
)

// pyImport is one import construct found in a python source file.
type pyImport struct {
	module string   // dotted module path, may be empty for "from . import x"
	level  int      // relative import level: number of leading dots
	names  []string // imported names of a from-import
}

// specifier returns the raw text the import was written with.
func (imp pyImport) specifier() string {
	return strings.Repeat(".", imp.level) + imp.module
}

// parsePythonImports extracts import and from-import constructs from source
// using the tree-sitter python grammar.
func parsePythonImports(source []byte) ([]pyImport, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var out []pyImport
	walk(tree.RootNode(), func(node *sitter.Node) {
		switch node.Type() {
		case "import_statement":
			// import a.b, c as d
			for i := 0; i < int(node.NamedChildCount()); i++ {
				child := node.NamedChild(i)
				switch child.Type() {
				case "dotted_name":
					out = append(out, pyImport{module: child.Content(source)})
				case "aliased_import":
					if name := child.ChildByFieldName("name"); name != nil {
						out = append(out, pyImport{module: name.Content(source)})
					}
				}
			}
		case "import_from_statement":
			// from x.y import z   /   from ..x import z
			mod := node.ChildByFieldName("module_name")
			if mod == nil {
				return
			}
			imp := pyImport{names: fromImportNames(node, mod, source)}
			switch mod.Type() {
			case "dotted_name":
				imp.module = mod.Content(source)
			case "relative_import":
				text := mod.Content(source)
				imp.level = leadingDots(text)
				imp.module = strings.TrimLeft(text, ".")
			}
			out = append(out, imp)
		}
	})
	return out, nil
}

// fromImportNames collects the imported names of a from-import statement.
func fromImportNames(node, moduleNode *sitter.Node, source []byte) []string {
	var names []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			names = append(names, child.Content(source))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(source))
			}
		case "wildcard_import":
			names = append(names, "*")
		}
	}
	return names
}

func leadingDots(s string) int {
	n := 0
	for _, r := range s {
		if r != '.' {
			break
		}
		n++
	}
	return n
}

// walk performs a depth-first traversal, calling fn for each node.
func walk(node *sitter.Node, fn func(*sitter.Node)) {
	if node == nil {
		return
	}
	fn(node)
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child != nil {
			walk(child, fn)
		}
	}
}

// ---------- package-aware primary ----------

// pyModuleIndex maps dotted module names to repository file paths, built
// from python packages detected by their __init__.py markers.
type pyModuleIndex struct {
	byModule map[string]string
}

// buildPyModuleIndex indexes every python file reachable through a package
// chain. Both "pkg.mod" (pkg/mod.py) and "pkg.sub" (pkg/sub/__init__.py)
// forms are present; top-level loose files index under their stem.
func buildPyModuleIndex(files []scanner.FileRecord) *pyModuleIndex {
	idx := &pyModuleIndex{byModule: map[string]string{}}

	markers := map[string]bool{}
	for _, f := range files {
		if path.Base(f.Path) == "__init__.py" {
			markers[path.Dir(f.Path)] = true
		}
	}

	for _, f := range files {
		if f.Language != "python" {
			continue
		}
		mod := moduleNameForPath(f.Path, markers)
		if mod == "" {
			continue
		}
		idx.byModule[mod] = f.Path
	}
	return idx
}

// moduleNameForPath converts a file path into its dotted module name if the
// file sits inside a package chain (every ancestor directory carries an
// __init__.py marker).
func moduleNameForPath(p string, markers map[string]bool) string {
	dir := path.Dir(p)
	base := strings.TrimSuffix(path.Base(p), ".py")

	if dir == "." {
		return base
	}
	for d := dir; d != "."; d = path.Dir(d) {
		if !markers[d] {
			return ""
		}
	}
	prefix := strings.ReplaceAll(dir, "/", ".")
	if base == "__init__" {
		return prefix
	}
	return prefix + "." + base
}

// resolve maps an absolute from-import to internal file paths. Imported
// names that are themselves submodules win over the module's own file, so
// "from pkg import b" lands on pkg/b.py rather than pkg/__init__.py.
func (idx *pyModuleIndex) resolve(module string, names []string) []string {
	var dsts []string
	for _, name := range names {
		if p, ok := idx.byModule[module+"."+name]; ok {
			dsts = append(dsts, p)
		}
	}
	if len(dsts) > 0 {
		return dsts
	}
	if p, ok := idx.byModule[module]; ok {
		return []string{p}
	}
	// progressively shorter prefixes: "import pkg.sub.thing" where only
	// pkg.sub is a real module still counts as an internal dependency
	parts := strings.Split(module, ".")
	for n := len(parts) - 1; n > 0; n-- {
		if p, ok := idx.byModule[strings.Join(parts[:n], ".")]; ok {
			return []string{p}
		}
	}
	return nil
}

// pythonPackageEdges is the package-aware primary: it resolves each import
// against the package index and emits internal edges when both ends map to
// repository files. Relative imports are left to the syntax-tree fallback.
func pythonPackageEdges(files []scanner.FileRecord) []Edge {
	idx := buildPyModuleIndex(files)
	var edges []Edge
	for _, f := range files {
		if f.Language != "python" {
			continue
		}
		imports, err := parsePythonImports(f.Content)
		if err != nil {
			continue // tried once and dropped; the fallback still covers the file
		}
		for _, imp := range imports {
			if imp.level > 0 || imp.module == "" {
				continue
			}
			if dsts := idx.resolve(imp.module, imp.names); len(dsts) > 0 {
				for _, dst := range dsts {
					edges = append(edges, Edge{Src: f.Path, Dst: dst, Internal: true, Via: viaPyPkg, spec: imp.specifier()})
				}
			} else {
				edges = append(edges, Edge{Src: f.Path, Dst: rootModule(imp.module), Internal: false, Via: viaPyPkg, spec: imp.specifier()})
			}
		}
	}
	return edges
}

// rootModule trims a dotted module to its top-level package name for
// external dependency reporting.
func rootModule(module string) string {
	if i := strings.Index(module, "."); i >= 0 {
		return module[:i]
	}
	return module
}

// ---------- syntax-tree fallback ----------

// pythonASTEdges is the fallback extractor: per-file parsing with
// path-probing resolution that needs no package markers. Relative imports
// are resolved by applying the file's package path with the declared level.
func pythonASTEdges(files []scanner.FileRecord) []Edge {
	fileSet := map[string]bool{}
	for _, f := range files {
		fileSet[f.Path] = true
	}

	var edges []Edge
	for _, f := range files {
		if f.Language != "python" {
			continue
		}
		imports, err := parsePythonImports(f.Content)
		if err != nil {
			continue
		}
		for _, imp := range imports {
			fq := absoluteModule(f.Path, imp)
			if fq == "" {
				continue
			}
			if dsts := probePyModule(fq, imp.names, fileSet); len(dsts) > 0 {
				for _, dst := range dsts {
					edges = append(edges, Edge{Src: f.Path, Dst: dst, Internal: true, Via: viaPyAST, spec: imp.specifier()})
				}
			} else if imp.level == 0 {
				edges = append(edges, Edge{Src: f.Path, Dst: rootModule(fq), Internal: false, Via: viaPyAST, spec: imp.specifier()})
			}
		}
	}
	return edges
}

// absoluteModule resolves a possibly-relative import into an absolute
// dotted module path, using the importing file's location.
func absoluteModule(srcPath string, imp pyImport) string {
	if imp.level == 0 {
		return imp.module
	}
	srcMod := strings.ReplaceAll(strings.TrimSuffix(srcPath, ".py"), "/", ".")
	parts := strings.Split(srcMod, ".")
	if imp.level > len(parts) {
		return ""
	}
	base := parts[:len(parts)-imp.level]
	if imp.module == "" {
		return strings.Join(base, ".")
	}
	return strings.Join(append(base, imp.module), ".")
}

// probePyModule checks the repository file set for the imported names as
// submodules first, then for the module itself as module.py or
// module/__init__.py.
func probePyModule(module string, names []string, fileSet map[string]bool) []string {
	rel := strings.ReplaceAll(module, ".", "/")

	var dsts []string
	for _, name := range names {
		sub := rel + "/" + name
		if fileSet[sub+".py"] {
			dsts = append(dsts, sub+".py")
		} else if fileSet[sub+"/__init__.py"] {
			dsts = append(dsts, sub+"/__init__.py")
		}
	}
	if len(dsts) > 0 {
		return dsts
	}
	if fileSet[rel+".py"] {
		return []string{rel + ".py"}
	}
	if fileSet[rel+"/__init__.py"] {
		return []string{rel + "/__init__.py"}
	}
	return nil
}

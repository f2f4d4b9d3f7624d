package extract

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/shikhar1verma/code-architecture-mapper/internal/scanner"
)

// grammarFor picks the tree-sitter grammar for a JS/TS file.
func grammarFor(ext string) *sitter.Language {
	switch ext {
	case ".ts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// parseJSImports extracts import specifiers from a JS/TS file: static
// imports, export-from re-exports, and string arguments to require() and
// dynamic import() calls.
func parseJSImports(ext string, source []byte) ([]string, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(grammarFor(ext))
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		// partial trees still yield imports below; a root-level failure
		// with no named children means the parse was useless
		if root.NamedChildCount() == 0 {
			return nil, fmt.Errorf("unparseable %s source", ext)
		}
	}

	var specs []string
	walk(root, func(node *sitter.Node) {
		switch node.Type() {
		case "import_statement", "export_statement":
			if src := node.ChildByFieldName("source"); src != nil {
				if s := stringLiteral(src, source); s != "" {
					specs = append(specs, s)
				}
			}
		case "call_expression":
			fn := node.ChildByFieldName("function")
			if fn == nil {
				return
			}
			isRequire := fn.Type() == "identifier" && fn.Content(source) == "require"
			isDynImport := fn.Type() == "import"
			if !isRequire && !isDynImport {
				return
			}
			args := node.ChildByFieldName("arguments")
			if args == nil {
				return
			}
			for i := 0; i < int(args.NamedChildCount()); i++ {
				arg := args.NamedChild(i)
				if arg.Type() == "string" {
					if s := stringLiteral(arg, source); s != "" {
						specs = append(specs, s)
					}
					break
				}
			}
		}
	})
	return specs, nil
}

// stringLiteral returns the unquoted content of a string node.
func stringLiteral(node *sitter.Node, source []byte) string {
	text := node.Content(source)
	if len(text) >= 2 {
		q := text[0]
		if (q == '"' || q == '\'' || q == '`') && text[len(text)-1] == q {
			return text[1 : len(text)-1]
		}
	}
	return strings.TrimSpace(text)
}

// jsTreeSitterEdges is the TS/JS primary extractor for a single file.
func jsTreeSitterEdges(f scanner.FileRecord, cfg tsConfig, fileSet map[string]bool) ([]Edge, error) {
	specs, err := parseJSImports(f.Ext, f.Content)
	if err != nil {
		return nil, err
	}
	return resolveJSEdges(f.Path, specs, cfg, fileSet, viaTS), nil
}

// resolveJSEdges turns raw specifiers into typed edges.
func resolveJSEdges(srcPath string, specs []string, cfg tsConfig, fileSet map[string]bool, via string) []Edge {
	var edges []Edge
	for _, spec := range specs {
		if spec == "" {
			continue
		}
		if dst := resolveJSImport(spec, srcPath, cfg, fileSet); dst != "" {
			edges = append(edges, Edge{Src: srcPath, Dst: dst, Internal: true, Via: via, spec: spec})
		} else {
			edges = append(edges, Edge{Src: srcPath, Dst: spec, Internal: false, Via: via, spec: spec})
		}
	}
	return edges
}

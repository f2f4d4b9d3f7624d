package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shikhar1verma/code-architecture-mapper/internal/scanner"
)

// ---------- helpers ----------

func record(path, content string) scanner.FileRecord {
	langs := map[string]string{
		".py": "python", ".js": "javascript", ".jsx": "jsx",
		".ts": "typescript", ".tsx": "tsx",
	}
	ext := filepath.Ext(path)
	return scanner.FileRecord{
		Path:     path,
		Ext:      ext,
		Language: langs[ext],
		Content:  []byte(content),
	}
}

func findEdge(t *testing.T, edges []Edge, src, dst string, internal bool) *Edge {
	t.Helper()
	for i := range edges {
		if edges[i].Src == src && edges[i].Dst == dst && edges[i].Internal == internal {
			return &edges[i]
		}
	}
	return nil
}

// ---------- python ----------

func TestPythonPackageImport(t *testing.T) {
	// minimal python package: from pkg import b resolves to pkg/b.py
	files := []scanner.FileRecord{
		record("pkg/__init__.py", ""),
		record("pkg/a.py", "from pkg import b\n"),
		record("pkg/b.py", ""),
	}

	edges := Extract(t.TempDir(), files)

	internal := 0
	external := 0
	for _, e := range edges {
		if e.Internal {
			internal++
		} else {
			external++
		}
	}
	assert.Equal(t, 1, internal)
	assert.Equal(t, 0, external)
	require.NotNil(t, findEdge(t, edges, "pkg/a.py", "pkg/b.py", true))
}

func TestPythonRelativeImport(t *testing.T) {
	files := []scanner.FileRecord{
		record("pkg/__init__.py", ""),
		record("pkg/sub/__init__.py", ""),
		record("pkg/sub/mod.py", "from ..helpers import util\nfrom . import sibling\n"),
		record("pkg/sub/sibling.py", ""),
		record("pkg/helpers.py", ""),
	}

	edges := Extract(t.TempDir(), files)

	assert.NotNil(t, findEdge(t, edges, "pkg/sub/mod.py", "pkg/helpers.py", true))
	assert.NotNil(t, findEdge(t, edges, "pkg/sub/mod.py", "pkg/sub/sibling.py", true))
}

func TestPythonExternalImport(t *testing.T) {
	files := []scanner.FileRecord{
		record("main.py", "import requests\nfrom flask import Flask\n"),
	}

	edges := Extract(t.TempDir(), files)

	assert.NotNil(t, findEdge(t, edges, "main.py", "requests", false))
	assert.NotNil(t, findEdge(t, edges, "main.py", "flask", false))
	assert.Nil(t, findEdge(t, edges, "main.py", "requests", true))
}

func TestPythonDottedImportResolvesPrefix(t *testing.T) {
	files := []scanner.FileRecord{
		record("pkg/__init__.py", ""),
		record("pkg/core.py", ""),
		record("main.py", "import pkg.core\n"),
	}

	edges := Extract(t.TempDir(), files)
	assert.NotNil(t, findEdge(t, edges, "main.py", "pkg/core.py", true))
}

func TestPythonSelfImportDropped(t *testing.T) {
	files := []scanner.FileRecord{
		record("pkg/__init__.py", ""),
		record("pkg/a.py", "import pkg.a\n"),
	}

	edges := Extract(t.TempDir(), files)
	assert.Nil(t, findEdge(t, edges, "pkg/a.py", "pkg/a.py", true))
}

// ---------- ts/js ----------

func TestTSRelativeImport(t *testing.T) {
	files := []scanner.FileRecord{
		record("src/app.ts", `import { x } from "./util";`),
		record("src/util.ts", "export const x = 1;\n"),
	}

	edges := Extract(t.TempDir(), files)
	assert.NotNil(t, findEdge(t, edges, "src/app.ts", "src/util.ts", true))
}

func TestTSConfigAlias(t *testing.T) {
	// mixed JS/TS with a path alias: "@/util" resolves through tsconfig
	dir := t.TempDir()
	tsconfig := `{ "compilerOptions": { "baseUrl": ".", "paths": { "@/*": ["src/*"] } } }`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tsconfig.json"), []byte(tsconfig), 0o644))

	files := []scanner.FileRecord{
		record("src/app.ts", `import { x } from "@/util";`+"\n"+`import React from "react";`),
		record("src/util.ts", "export const x = 1;\n"),
	}

	edges := Extract(dir, files)

	assert.NotNil(t, findEdge(t, edges, "src/app.ts", "src/util.ts", true))
	assert.NotNil(t, findEdge(t, edges, "src/app.ts", "react", false))
}

func TestTSIndexResolution(t *testing.T) {
	files := []scanner.FileRecord{
		record("src/app.ts", `import { api } from "./api";`),
		record("src/api/index.ts", "export const api = 1;\n"),
	}

	edges := Extract(t.TempDir(), files)
	assert.NotNil(t, findEdge(t, edges, "src/app.ts", "src/api/index.ts", true))
}

func TestJSRequireAndDynamicImport(t *testing.T) {
	files := []scanner.FileRecord{
		record("index.js", "const fs = require(\"fs\");\nconst mod = require(\"./lib\");\nimport(\"./lazy\");\n"),
		record("lib.js", ""),
		record("lazy.js", ""),
	}

	edges := Extract(t.TempDir(), files)

	assert.NotNil(t, findEdge(t, edges, "index.js", "fs", false))
	assert.NotNil(t, findEdge(t, edges, "index.js", "lib.js", true))
	assert.NotNil(t, findEdge(t, edges, "index.js", "lazy.js", true))
}

func TestTSExportFrom(t *testing.T) {
	files := []scanner.FileRecord{
		record("src/index.ts", `export { x } from "./util";`),
		record("src/util.ts", "export const x = 1;\n"),
	}

	edges := Extract(t.TempDir(), files)
	assert.NotNil(t, findEdge(t, edges, "src/index.ts", "src/util.ts", true))
}

func TestRegexFallbackCoversBrokenFile(t *testing.T) {
	// unparseable chunk up front must not lose the import on the next line
	broken := "const = = = ;;;\nimport { y } from \"./other\";\n"
	files := []scanner.FileRecord{
		record("src/broken.ts", broken),
		record("src/other.ts", "export const y = 2;\n"),
	}

	edges := Extract(t.TempDir(), files)
	assert.NotNil(t, findEdge(t, edges, "src/broken.ts", "src/other.ts", true))
}

// ---------- merge semantics ----------

func TestMergeInternalWins(t *testing.T) {
	fileSet := map[string]bool{"a.ts": true, "b.ts": true}
	edges := []Edge{
		{Src: "a.ts", Dst: "./b", Internal: false, Via: viaTSRegexp, spec: "./b"},
		{Src: "a.ts", Dst: "b.ts", Internal: true, Via: viaTS, spec: "./b"},
	}

	merged := merge(edges, fileSet)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Internal)
	assert.Equal(t, "b.ts", merged[0].Dst)
}

func TestMergeDeduplicates(t *testing.T) {
	fileSet := map[string]bool{"a.py": true, "b.py": true}
	edges := []Edge{
		{Src: "a.py", Dst: "b.py", Internal: true, Via: viaPyPkg, spec: "b"},
		{Src: "a.py", Dst: "b.py", Internal: true, Via: viaPyAST, spec: "b"},
	}

	merged := merge(edges, fileSet)
	require.Len(t, merged, 1)
	assert.Equal(t, viaPyPkg, merged[0].Via)
}

func TestMergeDropsUnknownSources(t *testing.T) {
	fileSet := map[string]bool{"a.py": true}
	edges := []Edge{
		{Src: "ghost.py", Dst: "a.py", Internal: true, spec: "a"},
	}

	assert.Empty(t, merge(edges, fileSet))
}

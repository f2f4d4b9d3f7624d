package extract

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// tsConfig is the subset of tsconfig.json the resolver honors.
type tsConfig struct {
	baseURL string
	paths   map[string][]string
}

// loadTSConfig reads tsconfig.json from the repository root. A missing or
// malformed file yields an empty config: resolution then only handles
// relative specifiers.
func loadTSConfig(repoRoot string) tsConfig {
	data, err := os.ReadFile(filepath.Join(repoRoot, "tsconfig.json"))
	if err != nil {
		return tsConfig{}
	}
	var raw struct {
		CompilerOptions struct {
			BaseURL string                     `json:"baseUrl"`
			Paths   map[string]json.RawMessage `json:"paths"`
		} `json:"compilerOptions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return tsConfig{}
	}
	cfg := tsConfig{baseURL: raw.CompilerOptions.BaseURL, paths: map[string][]string{}}
	for pat, v := range raw.CompilerOptions.Paths {
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			cfg.paths[pat] = list
			continue
		}
		var one string
		if err := json.Unmarshal(v, &one); err == nil {
			cfg.paths[pat] = []string{one}
		}
	}
	return cfg
}

// jsExtensions is the probe order for extensionless specifiers.
var jsExtensions = []string{".ts", ".tsx", ".js", ".jsx"}

// resolveJSImport maps an import specifier to a repository file path.
// Relative specifiers resolve against the importing file; bare specifiers
// are checked against tsconfig path aliases. Returns "" for external.
func resolveJSImport(spec, srcFile string, cfg tsConfig, fileSet map[string]bool) string {
	if strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		base := path.Join(path.Dir(srcFile), spec)
		if strings.HasPrefix(spec, "/") {
			base = strings.TrimPrefix(path.Clean(spec), "/")
		}
		return probeJSFile(base, fileSet)
	}

	// exact alias
	if repls, ok := cfg.paths[spec]; ok {
		for _, repl := range repls {
			if hit := probeJSFile(joinBase(cfg.baseURL, repl), fileSet); hit != "" {
				return hit
			}
		}
	}

	// wildcard alias, one star only
	for pat, repls := range cfg.paths {
		star := strings.Index(pat, "*")
		if star < 0 {
			continue
		}
		prefix, suffix := pat[:star], pat[star+1:]
		if !strings.HasPrefix(spec, prefix) || !strings.HasSuffix(spec, suffix) {
			continue
		}
		mid := spec[len(prefix) : len(spec)-len(suffix)]
		for _, repl := range repls {
			candidate := joinBase(cfg.baseURL, strings.Replace(repl, "*", mid, 1))
			if hit := probeJSFile(candidate, fileSet); hit != "" {
				return hit
			}
		}
	}

	return ""
}

func joinBase(baseURL, p string) string {
	if baseURL == "" || baseURL == "." {
		return path.Clean(p)
	}
	return path.Join(baseURL, p)
}

// probeJSFile tries extension candidates against the repository file set:
// exact, then each known extension, then index.* variants.
func probeJSFile(base string, fileSet map[string]bool) string {
	base = path.Clean(base)
	if fileSet[base] {
		return base
	}
	for _, ext := range jsExtensions {
		if fileSet[base+ext] {
			return base + ext
		}
	}
	for _, ext := range jsExtensions {
		if c := base + "/index" + ext; fileSet[c] {
			return c
		}
	}
	return ""
}

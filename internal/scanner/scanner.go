// Package scanner walks an analyzed repository tree, keeps the supported
// source files, and computes per-language aggregates.
package scanner

import (
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// langByExt maps supported file extensions to language names.
var langByExt = map[string]string{
	".py":  "python",
	".js":  "javascript",
	".jsx": "jsx",
	".ts":  "typescript",
	".tsx": "tsx",
}

// FileRecord describes one kept source file. Path is repository-relative
// with forward slashes regardless of host OS.
type FileRecord struct {
	Path     string `json:"path"`
	Ext      string `json:"ext"`
	Language string `json:"language"`
	Lines    int    `json:"loc"`
	Excerpt  string `json:"-"`

	// Content is the full file body, kept for the import extractors.
	// It is never serialized or persisted.
	Content []byte `json:"-"`
}

// Stats aggregates the scanned file set.
type Stats struct {
	FileCount     int                `json:"file_count"`
	LinesTotal    int                `json:"loc_total"`
	LanguageStats map[string]float64 `json:"language_stats"`
}

// Options controls a scan.
type Options struct {
	Extensions   []string // supported extension set, with leading dot
	ExcludedDirs []string // directory basenames pruned from the walk
	ExcerptChars int      // excerpt cap per file
}

// Scan walks root and returns the kept file records sorted by path, plus
// aggregate statistics. Unreadable files are skipped with a warning.
func Scan(root string, opts Options) ([]FileRecord, Stats, error) {
	extSet := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		extSet[strings.ToLower(e)] = true
	}
	skip := make(map[string]bool, len(opts.ExcludedDirs))
	for _, d := range opts.ExcludedDirs {
		skip[d] = true
	}

	var files []FileRecord
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn("scan: skipping path", "path", path, "err", err)
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (skip[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !extSet[ext] {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			log.Warn("scan: unreadable file", "path", path, "err", readErr)
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, FileRecord{
			Path:     filepath.ToSlash(rel),
			Ext:      ext,
			Language: langByExt[ext],
			Lines:    countNonEmptyLines(content),
			Excerpt:  excerpt(content, opts.ExcerptChars),
			Content:  content,
		})
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, computeStats(files), nil
}

// countNonEmptyLines counts lines containing at least one non-whitespace
// character. The count is stable across line-ending styles.
func countNonEmptyLines(content []byte) int {
	count := 0
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

// excerpt returns up to max characters of content, cut at a rune boundary.
func excerpt(content []byte, max int) string {
	if max <= 0 {
		return ""
	}
	s := string(content)
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}

// computeStats builds the per-language percentage table. Percentages are the
// share of files per language, rounded to one decimal place.
func computeStats(files []FileRecord) Stats {
	st := Stats{
		FileCount:     len(files),
		LanguageStats: map[string]float64{},
	}
	counts := map[string]int{}
	for _, f := range files {
		st.LinesTotal += f.Lines
		counts[f.Language]++
	}
	total := len(files)
	if total == 0 {
		return st
	}
	for lang, n := range counts {
		st.LanguageStats[lang] = math.Round(float64(n)*1000/float64(total)) / 10
	}
	return st
}

// Package workflow drives one analysis run through its stages: the static
// prelude, the narrative, the parallel fan-out of components and diagram
// modes, and the final persistence, with per-stage error isolation.
package workflow

import (
	"fmt"
	"sync"

	"github.com/shikhar1verma/code-architecture-mapper/internal/content"
	"github.com/shikhar1verma/code-architecture-mapper/internal/depgraph"
	"github.com/shikhar1verma/code-architecture-mapper/internal/deps"
	"github.com/shikhar1verma/code-architecture-mapper/internal/extract"
	"github.com/shikhar1verma/code-architecture-mapper/internal/gitfetch"
	"github.com/shikhar1verma/code-architecture-mapper/internal/scanner"
)

// State is the per-run working state. Each field is written by exactly one
// stage; the concurrent fan-out tasks write disjoint fields. The error log
// is the only shared mutable structure and its appends are lock-protected.
type State struct {
	RunID   string
	RepoURL string

	// S1 static prelude
	Snapshot *gitfetch.Snapshot
	Files    []scanner.FileRecord
	Stats    scanner.Stats
	Edges    []extract.Edge
	Graph    *depgraph.Graph
	Analysis *deps.Analysis
	Excerpts []content.Excerpt

	// S2
	Narrative string

	// S3 fan-out, disjoint outputs
	Components      []content.Component
	DiagramOverview string
	DiagramBalanced string
	DiagramDetailed string

	TimedOut bool

	mu     sync.Mutex
	errLog []string
}

// AppendError records a stage failure on the run's error log. Safe for
// concurrent use by the fan-out tasks.
func (s *State) AppendError(stage string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errLog = append(s.errLog, fmt.Sprintf("%s: %v", stage, err))
}

// AppendNote records a non-error log entry.
func (s *State) AppendNote(note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errLog = append(s.errLog, note)
}

// ErrorLog returns a copy of the accumulated log entries.
func (s *State) ErrorLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.errLog))
	copy(out, s.errLog)
	return out
}

// Package depgraph assembles the internal file dependency graph and its
// centrality metrics. Adjacency is kept as two parallel maps; the metrics
// are small arithmetic over them.
package depgraph

import (
	"sort"

	"github.com/shikhar1verma/code-architecture-mapper/internal/extract"
	"github.com/shikhar1verma/code-architecture-mapper/internal/scanner"
)

// topFileLimit caps the ranked file list.
const topFileLimit = 100

// Node is one internal file in the graph.
type Node struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Lines    int    `json:"loc"`
	FanIn    int    `json:"fan_in"`
	FanOut   int    `json:"fan_out"`
}

// GraphEdge is one internal dependency.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Via    string `json:"via"`
}

// Graph is the fully serializable dependency graph with its metric maps.
type Graph struct {
	Nodes []Node      `json:"nodes"`
	Edges []GraphEdge `json:"edges"`

	FanIn            map[string]int     `json:"fan_in"`
	FanOut           map[string]int     `json:"fan_out"`
	DegreeCentrality map[string]float64 `json:"degree_centrality"`

	// TopFiles ranks nodes by fan-in + fan-out, ties broken by path.
	TopFiles []string `json:"top_files"`
}

// Build constructs the graph from the file records and the merged edge set.
// Only internal edges whose destination is a known file become graph edges.
func Build(files []scanner.FileRecord, edges []extract.Edge) *Graph {
	g := &Graph{
		FanIn:            map[string]int{},
		FanOut:           map[string]int{},
		DegreeCentrality: map[string]float64{},
	}

	inSet := make(map[string]scanner.FileRecord, len(files))
	for _, f := range files {
		inSet[f.Path] = f
		g.FanIn[f.Path] = 0
		g.FanOut[f.Path] = 0
	}

	seen := map[[2]string]bool{}
	for _, e := range edges {
		if !e.Internal {
			continue
		}
		if _, ok := inSet[e.Dst]; !ok {
			continue
		}
		if e.Src == e.Dst {
			continue
		}
		key := [2]string{e.Src, e.Dst}
		if seen[key] {
			continue
		}
		seen[key] = true
		g.Edges = append(g.Edges, GraphEdge{Source: e.Src, Target: e.Dst, Via: e.Via})
		g.FanOut[e.Src]++
		g.FanIn[e.Dst]++
	}

	denom := float64(len(files) - 1)
	if denom < 1 {
		denom = 1
	}
	for _, f := range files {
		g.DegreeCentrality[f.Path] = float64(g.FanIn[f.Path]+g.FanOut[f.Path]) / denom
		g.Nodes = append(g.Nodes, Node{
			ID:       f.Path,
			Language: f.Language,
			Lines:    f.Lines,
			FanIn:    g.FanIn[f.Path],
			FanOut:   g.FanOut[f.Path],
		})
	}

	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		return g.Edges[i].Target < g.Edges[j].Target
	})

	g.TopFiles = rankTopFiles(g)
	return g
}

// rankTopFiles orders nodes by combined degree, descending, with the
// lexicographically smaller path winning ties.
func rankTopFiles(g *Graph) []string {
	paths := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		paths = append(paths, n.ID)
	}
	sort.Slice(paths, func(i, j int) bool {
		di := g.FanIn[paths[i]] + g.FanOut[paths[i]]
		dj := g.FanIn[paths[j]] + g.FanOut[paths[j]]
		if di != dj {
			return di > dj
		}
		return paths[i] < paths[j]
	})
	if len(paths) > topFileLimit {
		paths = paths[:topFileLimit]
	}
	return paths
}

package mermaid

import (
	"sort"
	"strings"
)

// Repair applies the rule-based fix for every repairable finding and
// returns the repaired diagram. Applying Repair to its own output yields
// the same text. The centrality map (may be nil) ranks nodes when the
// diagram must be trimmed to budget.
func Repair(diagram string, findings []Finding, centrality map[string]float64, budget Budget) string {
	out := diagram
	for _, f := range findings {
		if !f.Repairable {
			continue
		}
		switch f.Kind {
		case KindMissingHeader:
			out = repairHeader(out)
		case KindUnbalancedSubgraph:
			out = repairSubgraphs(out)
		case KindSpacedIdentifier:
			out = repairSpacedIDs(out)
		case KindParenLabel:
			out = repairParenLabels(out)
		case KindOverBudget:
			out = trimToBudget(out, centrality, budget)
		}
	}
	return out
}

func repairHeader(diagram string) string {
	if hasHeader(strings.Split(diagram, "\n")) {
		return diagram
	}
	return "flowchart LR\n" + diagram
}

func repairSubgraphs(diagram string) string {
	opens, closes := subgraphBalance(strings.Split(diagram, "\n"))
	if opens <= closes {
		return diagram
	}
	return strings.TrimRight(diagram, "\n") + strings.Repeat("\nend", opens-closes)
}

func repairSpacedIDs(diagram string) string {
	lines := strings.Split(diagram, "\n")
	for i := range lines {
		if skipLine(strings.TrimSpace(lines[i])) {
			continue
		}
		for spacedIDRe.MatchString(lines[i]) {
			lines[i] = spacedIDRe.ReplaceAllString(lines[i], "${1}${2}_${3}${4}")
		}
	}
	return strings.Join(lines, "\n")
}

func repairParenLabels(diagram string) string {
	return parenLabelRe.ReplaceAllString(diagram, `$1["$2"]`)
}

// trimToBudget drops the lowest-centrality nodes, their declarations, and
// any edges left orphaned until the diagram fits the budget. With no
// centrality data, lexicographically later identifiers go first.
func trimToBudget(diagram string, centrality map[string]float64, budget Budget) string {
	nodes, edges := Count(diagram)
	if (budget.MaxNodes <= 0 || nodes <= budget.MaxNodes) &&
		(budget.MaxEdges <= 0 || edges <= budget.MaxEdges) {
		return diagram
	}

	keep := keepSet(diagram, centrality, budget.MaxNodes)

	var out []string
	edgeCount := 0
	for _, line := range strings.Split(diagram, "\n") {
		s := strings.TrimSpace(line)
		if m := edgeRe.FindStringSubmatch(s); m != nil {
			if !keep[m[1]] || !keep[m[2]] {
				continue
			}
			if budget.MaxEdges > 0 && edgeCount >= budget.MaxEdges {
				continue
			}
			edgeCount++
			out = append(out, line)
			continue
		}
		if m := nodeDeclRe.FindStringSubmatch(s); m != nil && !skipLine(s) && !strings.HasPrefix(s, "subgraph") {
			if !keep[m[2]] {
				continue
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// keepSet ranks all identifiers by centrality (descending, ties by name)
// and keeps the top maxNodes.
func keepSet(diagram string, centrality map[string]float64, maxNodes int) map[string]bool {
	ids := map[string]bool{}
	for _, line := range strings.Split(diagram, "\n") {
		s := strings.TrimSpace(line)
		if s == "" || skipLine(s) || headerRe.MatchString(s) || strings.HasPrefix(s, "subgraph") || s == "end" {
			continue
		}
		if m := edgeRe.FindStringSubmatch(s); m != nil {
			ids[m[1]] = true
			ids[m[2]] = true
			continue
		}
		for _, m := range nodeDeclRe.FindAllStringSubmatch(s, -1) {
			ids[m[2]] = true
		}
	}

	ranked := make([]string, 0, len(ids))
	for id := range ids {
		ranked = append(ranked, id)
	}
	sort.Slice(ranked, func(i, j int) bool {
		ci, cj := centrality[ranked[i]], centrality[ranked[j]]
		if ci != cj {
			return ci > cj
		}
		return ranked[i] < ranked[j]
	})

	if maxNodes <= 0 || maxNodes > len(ranked) {
		maxNodes = len(ranked)
	}
	keep := map[string]bool{}
	for _, id := range ranked[:maxNodes] {
		keep[id] = true
	}
	return keep
}

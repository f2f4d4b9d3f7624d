// Package mermaid contains a pure-text validator and a rule-based repairer
// for Mermaid flowcharts. Validation is a deterministic line-oriented scan;
// no external renderer is ever invoked. The repairer is idempotent.
package mermaid

import (
	"fmt"
	"regexp"
	"strings"
)

// Finding kinds.
const (
	KindMissingHeader      = "missing-header"
	KindUnbalancedSubgraph = "unbalanced-subgraph"
	KindSpacedIdentifier   = "spaced-identifier"
	KindParenLabel         = "paren-label"
	KindOverBudget         = "over-budget"
)

// Finding is one validation error.
type Finding struct {
	Kind       string
	Line       int // 1-based, 0 when the finding is diagram-wide
	Message    string
	Repairable bool
}

// Budget bounds a diagram's complexity. Zero values disable the check.
type Budget struct {
	MaxNodes int
	MaxEdges int
}

var (
	headerRe = regexp.MustCompile(`^\s*(flowchart|graph)\b`)

	// node declaration: ID[label] or ID(label)
	nodeDeclRe = regexp.MustCompile(`(^|\s)([A-Za-z][\w-]*)\s*[\[\(]`)

	// identifier followed by whitespace then another identifier directly
	// before a bracket: a node id containing an internal space
	spacedIDRe = regexp.MustCompile(`(^|\s)([A-Za-z][\w-]*)[ \t]+([A-Za-z][\w-]*)([\[\(])`)

	// unquoted parentheses inside a square-bracket label
	parenLabelRe = regexp.MustCompile(`([A-Za-z_][\w-]*)\[([^"\]]*\([^"\]]*\)[^"\]]*)\]`)

	edgeRe = regexp.MustCompile(`^\s*([A-Za-z][\w-]*)(?:\[[^\]]*\]|\([^)]*\))?\s*(?:[-.=ox]{1,3}\s*(?:"[^"]*"|\|[^|]*\|)?\s*[-.=]{0,3}>)\s*([A-Za-z][\w-]*)`)
)

// skipPrefixes lists line starts the scanner ignores for node and edge
// checks.
var skipPrefixes = []string{"classDef", "class ", "style ", "linkStyle", "direction", "%%"}

// Validate scans a flowchart and returns its errors. A budget with zero
// limits skips the complexity check.
func Validate(diagram string, budget Budget) []Finding {
	var findings []Finding

	lines := strings.Split(diagram, "\n")

	if !hasHeader(lines) {
		findings = append(findings, Finding{
			Kind:       KindMissingHeader,
			Message:    "missing diagram type declaration; add 'flowchart LR' or 'graph TD' at the top",
			Repairable: true,
		})
	}

	opens, closes := subgraphBalance(lines)
	if opens != closes {
		findings = append(findings, Finding{
			Kind:       KindUnbalancedSubgraph,
			Message:    fmt.Sprintf("unbalanced subgraph blocks: subgraph=%d end=%d", opens, closes),
			Repairable: opens > closes, // missing opens cannot be synthesized safely
		})
	}

	for i, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" || skipLine(s) {
			continue
		}
		if spacedIDRe.MatchString(line) {
			findings = append(findings, Finding{
				Kind:       KindSpacedIdentifier,
				Line:       i + 1,
				Message:    fmt.Sprintf("line %d: node identifier contains a space", i+1),
				Repairable: true,
			})
		}
		if parenLabelRe.MatchString(line) {
			findings = append(findings, Finding{
				Kind:       KindParenLabel,
				Line:       i + 1,
				Message:    fmt.Sprintf("line %d: unquoted parentheses in node label; wrap the label in double quotes", i+1),
				Repairable: true,
			})
		}
	}

	nodes, edges := Count(diagram)
	if budget.MaxNodes > 0 && nodes > budget.MaxNodes {
		findings = append(findings, Finding{
			Kind:       KindOverBudget,
			Message:    fmt.Sprintf("node count %d exceeds budget %d", nodes, budget.MaxNodes),
			Repairable: true,
		})
	} else if budget.MaxEdges > 0 && edges > budget.MaxEdges {
		findings = append(findings, Finding{
			Kind:       KindOverBudget,
			Message:    fmt.Sprintf("edge count %d exceeds budget %d", edges, budget.MaxEdges),
			Repairable: true,
		})
	}

	return findings
}

// hasHeader reports whether the first non-empty, non-comment line declares
// the diagram type.
func hasHeader(lines []string) bool {
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" || strings.HasPrefix(s, "%%") {
			continue
		}
		return headerRe.MatchString(s)
	}
	return false
}

// subgraphBalance counts subgraph opens and matching end lines.
func subgraphBalance(lines []string) (opens, closes int) {
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, "subgraph") {
			opens++
		} else if s == "end" {
			closes++
		}
	}
	return opens, closes
}

func skipLine(s string) bool {
	for _, p := range skipPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Count returns the distinct node identifier count and the edge line count.
func Count(diagram string) (nodes, edges int) {
	ids := map[string]bool{}
	inSubgraph := 0
	for _, line := range strings.Split(diagram, "\n") {
		s := strings.TrimSpace(line)
		if s == "" || skipLine(s) || headerRe.MatchString(s) {
			continue
		}
		if strings.HasPrefix(s, "subgraph") {
			inSubgraph++
			continue
		}
		if s == "end" {
			if inSubgraph > 0 {
				inSubgraph--
			}
			continue
		}
		if m := edgeRe.FindStringSubmatch(s); m != nil {
			edges++
			ids[m[1]] = true
			ids[m[2]] = true
			continue
		}
		for _, m := range nodeDeclRe.FindAllStringSubmatch(s, -1) {
			ids[m[2]] = true
		}
	}
	return len(ids), edges
}

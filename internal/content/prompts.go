package content

// System and user prompt templates for the three request kinds. User
// templates are text/template bodies executed against the anonymous structs
// built in generator.go.

const overviewSystem = "You are summarizing a repository into an architecture overview. " +
	"Use only facts grounded in the provided files and metrics. If unsure, say 'unknown'."

const overviewUserTmpl = `Repo language stats: {{.LanguageStats}}

Top files (by centrality):
{{.TopFiles}}

For each listed file, you may see a short excerpt below delimited by <file> tags.
Write a clear, senior-level Architecture.md with sections: Overview, Component Map, Data Flow, Risks, How to Extend.
Keep it concise and practical.

{{.Excerpts}}`

const componentSystem = "You are a software architect analyzing code to identify architectural components. " +
	"Your response must be valid JSON only - no markdown, no explanations, no code blocks. " +
	"Analyze the provided files and return a single JSON object representing one architectural component."

const componentUserTmpl = `Analyze these files to identify ONE architectural component:

Files:
{{.Files}}

Code excerpts:
{{.Excerpts}}

Return a JSON object with this exact structure:
{
  "name": "ComponentName",
  "purpose": "Brief description of what this component does",
  "key_files": [
    {"path": "file/path.py", "reason": "Why this file is important"}
  ],
  "apis": [
    {"name": "function_name", "file": "file/path.py"}
  ],
  "dependencies": ["dependency1", "dependency2"],
  "risks": ["potential risk or concern"],
  "tests": ["test_file.py"]
}

Respond with ONLY the JSON object, no other text:`

const diagramSystem = "You are a software architect that outputs a Mermaid flowchart showing system architecture. " +
	"Optimize for clarity first, detail second. Work only with the provided repo context. " +
	"Do not invent components that do not exist.\n\n" +
	"OUTPUT RULES\n" +
	"- Return ONLY Mermaid code starting with 'flowchart TB'. No backticks. No preface text.\n" +
	"- Prefer short labels. Trim to <= 24 chars.\n" +
	"- Use at most one edge label per link, wrapped in double quotes. Example: A -- \"Auth\" --> B\n" +
	"- Quote any label containing spaces, parentheses, or punctuation inside brackets. Example: SVC[\"Auth Service\"]\n" +
	"- No duplicate edges between the same pair.\n" +
	"- If a budget would be exceeded, collapse into 'Other' nodes and skip low-signal edges."

const diagramUserTmpl = `Create a Mermaid flowchart for the "{{.Mode}}" complexity level.

Budget: at most {{.MaxNodes}} nodes and {{.MaxEdges}} edges.
{{.ModeGuidance}}

PROJECT STRUCTURE:
{{.FolderDiagram}}

COMPONENT MAP:
{{.ComponentMap}}

DATA FLOW:
{{.DataFlow}}

INTERNAL DEPENDENCIES:
{{.InternalDeps}}

EXTERNAL DEPENDENCIES:
{{.ExternalDeps}}

PROJECT STATS:
- Total files: {{.TotalFiles}}
- Top files: {{.TopFiles}}

Return ONLY the Mermaid diagram code, starting with 'flowchart':`

// modeGuidance steers the level of aggregation per diagram mode.
var modeGuidance = map[string]string{
	"overview": "Audience: non-technical stakeholders. Show only major component groups and their relationships.",
	"balanced": "Audience: technical stakeholders. Group modules by folder or layer; show the important cross-group dependencies.",
	"detailed": "Audience: developers working in this codebase. Show individual modules and their key relationships.",
}

const correctionSystem = "You are an expert at fixing Mermaid flowchart syntax errors. " +
	"Return ONLY the corrected Mermaid code, starting with 'flowchart' or 'graph'. " +
	"Preserve the diagram's structure and content; change only what the errors require."

const correctionUserTmpl = `The following Mermaid diagram fails validation.

Diagram:
{{.Diagram}}

Errors:
{{.Errors}}

Return the corrected diagram, nothing else:`

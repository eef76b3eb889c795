package chat

import (
	"fmt"
	"strings"

	"github.com/kalambet/sitecraft/internal/engine"
	"github.com/kalambet/sitecraft/internal/site"
)

const classifySystem = `You analyze user requests to modify one component of a generated website.
Respond with only a JSON object: no markdown fences, no explanations.`

const patchSystem = `You are a senior front-end developer editing one section of an existing website.
Keep the section responsive, consistent with the site theme and preserve existing functionality.
Return ONLY a single valid JSON object: no markdown fences, no explanations.`

func classifyPrompt(message string, known []string) []engine.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Message: %q\n\n", message)
	fmt.Fprintf(&sb, "Available components: %s\n\n", strings.Join(known, ", "))
	sb.WriteString(`Extract:
1. Which component they want to modify (must be one of the available components, or null)
2. Type of change: style, content, structure or functionality
3. Specific changes requested
4. Confidence level between 0 and 1

Respond with this exact JSON shape:
{"componentTarget": "component-name or null", "changeType": "style", "specificChanges": ["change1"], "confidence": 0.9}

Examples:
- "Change hero title" -> {"componentTarget": "hero", "changeType": "content", "specificChanges": ["update title text"], "confidence": 0.9}
- "Make header blue" -> {"componentTarget": "header", "changeType": "style", "specificChanges": ["change background to blue"], "confidence": 0.85}`)

	return []engine.Message{
		{Role: engine.RoleSystem, Content: classifySystem},
		{Role: engine.RoleUser, Content: sb.String()},
	}
}

func classifySchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"componentTarget": {Type: "string", Description: "Component id to modify, or null"},
			"changeType":      {Type: "string", Enum: changeTypes},
			"specificChanges": {Type: "array", Items: &engine.SchemaProperty{Type: "string"}},
			"confidence":      {Type: "number", Description: "Confidence between 0 and 1"},
		},
		Required: []string{"changeType", "specificChanges", "confidence"},
	}
}

func patchPrompt(a Analysis, current site.Artifact, req site.GenerationRequest) []engine.Message {
	id := a.ComponentTarget
	var sb strings.Builder
	fmt.Fprintf(&sb, "Component: %s\n", id)
	fmt.Fprintf(&sb, "Change type: %s\n", a.ChangeType)
	fmt.Fprintf(&sb, "Requested changes: %s\n\n", strings.Join(a.SpecificChanges, "; "))
	fmt.Fprintf(&sb, "Current HTML:\n%s\n\n", current.Markup)
	fmt.Fprintf(&sb, "Current CSS:\n%s\n\n", current.Style)
	fmt.Fprintf(&sb, "Current JS:\n%s\n\n", current.Behavior)
	if req.WebsiteType != "" || req.BusinessDescription != "" {
		fmt.Fprintf(&sb, "Website context: %s - %s\n\n", req.WebsiteType, req.BusinessDescription)
	}
	sb.WriteString("Return the complete updated component as JSON with exactly these keys:\n")
	fmt.Fprintf(&sb, "{%q: \"updated html\", %q: \"updated css\", %q: \"updated js\", \"description\": \"one sentence\"}",
		id+".html", id+".css", id+".js")

	return []engine.Message{
		{Role: engine.RoleSystem, Content: patchSystem},
		{Role: engine.RoleUser, Content: sb.String()},
	}
}

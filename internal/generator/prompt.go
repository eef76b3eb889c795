package generator

import (
	"fmt"
	"strings"

	"github.com/kalambet/sitecraft/internal/engine"
	"github.com/kalambet/sitecraft/internal/site"
)

const systemPrompt = `You are a senior front-end developer generating one section of a marketing website at a time.
Use semantic HTML5 with Tailwind CSS utility classes, mobile-first and fully responsive.
Return ONLY a single valid JSON object: no markdown fences, no explanations.`

// Context is the business context shared by every component of a session.
type Context struct {
	Request site.GenerationRequest
	// Plan lists every component of the session so sections can link to each other.
	Plan []string
}

// BuildPrompt constructs the chat messages that generate component id.
func BuildPrompt(id string, gc Context) []engine.Message {
	req := gc.Request
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate the %q component for a %s website.\n\n", id, orDefault(req.WebsiteType, "business"))
	fmt.Fprintf(&sb, "Business: %s\n", truncate(req.BusinessDescription, 500))
	fmt.Fprintf(&sb, "Color scheme: %s\n", orDefault(string(req.ColorScheme), string(site.SchemeLight)))
	if len(gc.Plan) > 0 {
		fmt.Fprintf(&sb, "Other sections on the page (use #<id> anchors for links): %s\n", strings.Join(gc.Plan, ", "))
	}
	fmt.Fprintf(&sb, "Guideline for %s: %s\n\n", id, site.Guideline(id))
	sb.WriteString("Return JSON with exactly these keys:\n")
	fmt.Fprintf(&sb, "{\n  %q: \"the section markup, root element id=%q\",\n", id+".html", id)
	fmt.Fprintf(&sb, "  %q: \"custom CSS, empty string if none\",\n", id+".css")
	fmt.Fprintf(&sb, "  %q: \"JavaScript, empty string if none\",\n", id+".js")
	sb.WriteString("  \"description\": \"one sentence describing the section\"\n}")

	return []engine.Message{
		{Role: engine.RoleSystem, Content: systemPrompt},
		{Role: engine.RoleUser, Content: sb.String()},
	}
}

// ArtifactSchema is the structured-output schema for one component.
func ArtifactSchema(id string) *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			id + ".html":  {Type: "string", Description: "Section markup"},
			id + ".css":   {Type: "string", Description: "Custom CSS"},
			id + ".js":    {Type: "string", Description: "JavaScript"},
			"description": {Type: "string", Description: "One sentence summary"},
		},
		Required: []string{id + ".html", id + ".css", id + ".js"},
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

package analyzer

import (
	"fmt"
	"strings"

	"github.com/kalambet/sitecraft/internal/engine"
	"github.com/kalambet/sitecraft/internal/site"
)

const systemPrompt = `You plan small marketing websites. Decide which page components to build for the business described by the user. Be realistic about what can be generated well.

Available components:
- header: navigation menu and branding
- hero: main banner with call-to-action
- footer: contact info and links
- about-us: company story and team
- services: service offerings grid
- contact-form: contact form with fields
- testimonials: customer reviews
- gallery: image showcase
- pricing: pricing plans

Rules:
1. ALWAYS include header, hero and footer.
2. Choose 1-2 additional components that make sense for the business.
3. Total components must be 3-5.

Respond with ONLY a JSON object of the form:
{"components": ["header", "hero", "footer", "about-us"], "reasoning": "why these components were chosen"}`

// BuildPrompt constructs the chat messages for component planning.
func BuildPrompt(req site.GenerationRequest) []engine.Message {
	features := "none specified"
	if len(req.SelectedFeatures) > 0 {
		features = strings.Join(req.SelectedFeatures, ", ")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Business description: %s\n", req.BusinessDescription)
	fmt.Fprintf(&sb, "Website type: %s\n", req.WebsiteType)
	fmt.Fprintf(&sb, "Requested features: %s", features)

	return []engine.Message{
		{Role: engine.RoleSystem, Content: systemPrompt},
		{Role: engine.RoleUser, Content: sb.String()},
	}
}

func planSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"components": {Type: "array", Description: "Component ids in generation order", Items: &engine.SchemaProperty{Type: "string"}},
			"reasoning":  {Type: "string", Description: "Short explanation of the selection"},
		},
		Required: []string{"components", "reasoning"},
	}
}

package site

import (
	"sort"
	"strings"
)

// Artifact is the content of one component. It is always written and
// replaced as a whole.
type Artifact struct {
	Markup      string `json:"markup"`
	Style       string `json:"style"`
	Behavior    string `json:"behavior"`
	Description string `json:"description,omitempty"`
}

// File extensions of the three artifact fields.
const (
	ExtMarkup   = "html"
	ExtStyle    = "css"
	ExtBehavior = "js"
)

// Empty reports whether the artifact has no markup.
func (a Artifact) Empty() bool {
	return strings.TrimSpace(a.Markup) == ""
}

// Files returns the component-qualified file map used by the HTTP surface,
// e.g. "hero.html", "hero.css", "hero.js".
func (a Artifact) Files(id string) map[string]string {
	return map[string]string{
		id + "." + ExtMarkup:   a.Markup,
		id + "." + ExtStyle:    a.Style,
		id + "." + ExtBehavior: a.Behavior,
	}
}

// ArtifactFromFiles builds an artifact from a loosely keyed file map. Both
// qualified ("<id>.html") and bare ("html") keys are accepted; qualified keys
// win when both are present.
func ArtifactFromFiles(id string, files map[string]string) Artifact {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := files[k]; ok && v != "" {
				return v
			}
		}
		return ""
	}
	return Artifact{
		Markup:      pick(id+".html", "html", "markup"),
		Style:       pick(id+".css", "css", "style"),
		Behavior:    pick(id+".js", "js", "javascript", "behavior"),
		Description: pick("description", "metadata.description"),
	}
}

// Site is a session's artifacts keyed by component id.
type Site map[string]Artifact

// IDs returns the component ids in render order.
func (s Site) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return RenderOrder(ids)
}

// Files flattens the site into the qualified file map.
func (s Site) Files() map[string]string {
	out := make(map[string]string, len(s)*3)
	for id, a := range s {
		for k, v := range a.Files(id) {
			out[k] = v
		}
	}
	return out
}

package site

import (
	"regexp"
	"strings"
)

// Known component identifiers.
const (
	Header       = "header"
	Hero         = "hero"
	AboutUs      = "about-us"
	Services     = "services"
	ContactForm  = "contact-form"
	Gallery      = "gallery"
	Testimonials = "testimonials"
	Pricing      = "pricing"
	Footer       = "footer"
)

// Optional lists the components a plan may add beyond header, hero and footer.
var Optional = []string{AboutUs, Services, ContactForm, Gallery, Testimonials, Pricing}

// renderOrder is the canonical page order. Unknown ids render before the footer.
var renderOrder = []string{Header, Hero, AboutUs, Services, ContactForm, Gallery, Testimonials, Pricing}

var featureComponents = map[string]string{
	"about":        AboutUs,
	"about-us":     AboutUs,
	"services":     Services,
	"contact":      ContactForm,
	"contact-form": ContactForm,
	"gallery":      Gallery,
	"testimonials": Testimonials,
	"pricing":      Pricing,
}

var guidelines = map[string]string{
	Header:       "Clean navigation bar with the brand name, section links and a mobile menu toggle",
	Hero:         "Compelling headline, short supporting copy and one strong call-to-action button",
	AboutUs:      "Company story, mission and a few trust-building highlights",
	Services:     "Grid of service cards with icons, short descriptions and clear benefits",
	ContactForm:  "Accessible contact form with name, email and message fields plus contact details",
	Gallery:      "Responsive image grid with captions and hover effects",
	Testimonials: "Customer quotes with names, roles and a rating indicator",
	Pricing:      "Two or three pricing tiers with a highlighted recommended plan",
	Footer:       "Contact information, quick links, social icons and copyright notice",
}

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,39}$`)

// ValidID reports whether id is a well-formed component identifier. Ids are
// used as file names, so only lowercase letters, digits and dashes are allowed.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Known reports whether id is part of the fixed component vocabulary.
func Known(id string) bool {
	_, ok := guidelines[id]
	return ok
}

// NormalizeID lowercases id and replaces spaces and underscores with dashes.
func NormalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.NewReplacer(" ", "-", "_", "-").Replace(id)
	return id
}

// Guideline returns the one-line style guidance for a component.
func Guideline(id string) string {
	if g, ok := guidelines[id]; ok {
		return g
	}
	return "Professional section with relevant content"
}

// FeatureComponent maps a selected onboarding feature to a component id.
func FeatureComponent(feature string) (string, bool) {
	id, ok := featureComponents[strings.ToLower(strings.TrimSpace(feature))]
	return id, ok
}

// EnforcePlan drops duplicate and malformed ids, moves header and hero to the
// front and appends footer when it is missing. Other ids keep their relative
// order, so generation order may differ from RenderOrder. Plans longer than
// max lose optional components from the end; header, hero and footer always
// survive. A max below 3 is treated as 3.
func EnforcePlan(ids []string, max int) []string {
	if max < 3 {
		max = 3
	}
	seen := map[string]bool{Header: true, Hero: true}
	rest := make([]string, 0, len(ids))
	hasFooter := false
	for _, id := range ids {
		id = NormalizeID(id)
		if !ValidID(id) || seen[id] {
			continue
		}
		seen[id] = true
		if id == Footer {
			hasFooter = true
		}
		rest = append(rest, id)
	}
	if !hasFooter {
		rest = append(rest, Footer)
	}
	for optional := len(rest) - 1; len(rest)+2 > max; {
		for optional >= 0 && rest[optional] == Footer {
			optional--
		}
		rest = append(rest[:optional], rest[optional+1:]...)
		optional--
	}
	return append([]string{Header, Hero}, rest...)
}

// RenderOrder sorts ids into the canonical page order: known sections first in
// their fixed order, then unknown ids in their given order, then the footer.
func RenderOrder(ids []string) []string {
	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}
	out := make([]string, 0, len(ids))
	for _, id := range renderOrder {
		if present[id] {
			out = append(out, id)
			delete(present, id)
		}
	}
	hasFooter := present[Footer]
	delete(present, Footer)
	for _, id := range ids {
		if present[id] {
			out = append(out, id)
			delete(present, id)
		}
	}
	if hasFooter {
		out = append(out, Footer)
	}
	return out
}

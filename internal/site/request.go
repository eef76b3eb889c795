package site

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ColorScheme selects the light or dark palette of the generated site.
type ColorScheme string

const (
	SchemeLight ColorScheme = "light"
	SchemeDark  ColorScheme = "dark"
)

// GenerationRequest is the onboarding payload a session is generated from.
// It is immutable once a session has been created for it.
type GenerationRequest struct {
	BusinessDescription string      `json:"businessDescription" yaml:"businessDescription"`
	WebsiteType         string      `json:"websiteType" yaml:"websiteType"`
	SelectedFeatures    []string    `json:"selectedFeatures" yaml:"selectedFeatures"`
	ColorScheme         ColorScheme `json:"colorScheme,omitempty" yaml:"colorScheme,omitempty"`
	UserEmail           string      `json:"userEmail,omitempty" yaml:"userEmail,omitempty"`
}

// ErrEmptyRequest is returned when neither a description nor a website type is present.
var ErrEmptyRequest = errors.New("business description or website type is required")

// Validate normalizes the request in place and reports whether it is usable.
func (r *GenerationRequest) Validate() error {
	r.BusinessDescription = strings.TrimSpace(r.BusinessDescription)
	r.WebsiteType = strings.TrimSpace(r.WebsiteType)
	if r.BusinessDescription == "" && r.WebsiteType == "" {
		return ErrEmptyRequest
	}
	switch r.ColorScheme {
	case "":
		r.ColorScheme = SchemeLight
	case SchemeLight, SchemeDark:
	default:
		return fmt.Errorf("invalid color scheme %q (want light or dark)", r.ColorScheme)
	}
	r.SelectedFeatures = dedupeLower(r.SelectedFeatures)
	return nil
}

// BrandName derives a short display name from the first words of the description.
func (r GenerationRequest) BrandName() string {
	words := strings.Fields(r.BusinessDescription)
	if len(words) == 0 {
		if r.WebsiteType != "" {
			return r.WebsiteType
		}
		return "Your Website"
	}
	if len(words) > 3 {
		words = words[:3]
	}
	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

// ContactEmail returns the user's email or a placeholder address derived from the brand name.
func (r GenerationRequest) ContactEmail() string {
	if r.UserEmail != "" {
		return r.UserEmail
	}
	var b strings.Builder
	for _, c := range strings.ToLower(r.BrandName()) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		b.WriteString("yourwebsite")
	}
	return "hello@" + b.String() + ".com"
}

func dedupeLower(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

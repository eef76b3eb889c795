package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"time"
)

//go:embed fallbacks/*
var fallbackFS embed.FS

var fallbackTemplates = template.Must(template.New("fallbacks").ParseFS(fallbackFS, "fallbacks/*.html"))

// fallbackData is the template context of the static library.
type fallbackData struct {
	ID        string
	Title     string
	Brand     string
	TypeLower string
	Email     string
	Guideline string
	Year      int
}

// Fallback returns the pre-authored artifact for id, personalized with the
// request's brand name and contact address. Unknown ids get a generic
// section. The result is never empty.
func Fallback(id string, req GenerationRequest) Artifact {
	data := fallbackData{
		ID:        id,
		Title:     titleCase(id),
		Brand:     req.BrandName(),
		TypeLower: strings.ToLower(req.WebsiteType),
		Email:     req.ContactEmail(),
		Guideline: Guideline(id),
		Year:      time.Now().Year(),
	}
	if data.TypeLower == "" {
		data.TypeLower = "business"
	}

	name := id + ".html"
	if fallbackTemplates.Lookup(name) == nil {
		name = "_section.html"
	}
	var buf bytes.Buffer
	if err := fallbackTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		// Templates are compiled in; only a broken build reaches this.
		panic(fmt.Sprintf("rendering fallback %s: %v", name, err))
	}

	style := readFallback("_base.css")
	if extra := readFallback(id + ".css"); extra != "" {
		style += "\n" + extra
	}
	return Artifact{
		Markup:      buf.String(),
		Style:       style,
		Behavior:    readFallback(id + ".js"),
		Description: fmt.Sprintf("Static %s section", strings.ReplaceAll(id, "-", " ")),
	}
}

// HasFallback reports whether id has a dedicated template in the static library.
func HasFallback(id string) bool {
	return fallbackTemplates.Lookup(id+".html") != nil
}

func readFallback(name string) string {
	b, err := fs.ReadFile(fallbackFS, "fallbacks/"+name)
	if err != nil {
		return ""
	}
	return string(b)
}

func titleCase(id string) string {
	words := strings.Split(id, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

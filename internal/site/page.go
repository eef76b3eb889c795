package site

import (
	"html/template"
	"strings"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{- range .Sections}}
<link rel="stylesheet" href="{{.ID}}.css">
{{- end}}
</head>
<body>
{{- range .Sections}}
{{.Markup}}
{{- end}}
{{- range .Sections}}
<script src="{{.ID}}.js"></script>
{{- end}}
</body>
</html>
`))

type pageSection struct {
	ID     string
	Markup template.HTML
}

// Page assembles the components of s into one HTML document that links each
// component's stylesheet and script by file name, in render order.
func Page(title string, s Site) (string, error) {
	data := struct {
		Title    string
		Sections []pageSection
	}{Title: title}
	for _, id := range s.IDs() {
		// Markup is model or template output stored by this service.
		data.Sections = append(data.Sections, pageSection{ID: id, Markup: template.HTML(s[id].Markup)})
	}
	var b strings.Builder
	if err := pageTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

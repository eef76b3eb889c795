package chat

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/kalambet/sitecraft/internal/site"
)

// LineDelta counts changed lines of one artifact field.
type LineDelta struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Changed reports whether any line differs.
func (d LineDelta) Changed() bool {
	return d.Added > 0 || d.Removed > 0
}

func lineDelta(before, after string) LineDelta {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var d LineDelta
	for _, df := range diffs {
		n := countLines(df.Text)
		switch df.Type {
		case diffmatchpatch.DiffInsert:
			d.Added += n
		case diffmatchpatch.DiffDelete:
			d.Removed += n
		}
	}
	return d
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// ChangeSummary describes, field by field, how after differs from before,
// e.g. "markup +3/-1 lines, style +2/-2 lines".
func ChangeSummary(before, after site.Artifact) string {
	fields := []struct {
		name          string
		before, after string
	}{
		{"markup", before.Markup, after.Markup},
		{"style", before.Style, after.Style},
		{"behavior", before.Behavior, after.Behavior},
	}
	var parts []string
	for _, f := range fields {
		if d := lineDelta(f.before, f.after); d.Changed() {
			parts = append(parts, fmt.Sprintf("%s +%d/-%d lines", f.name, d.Added, d.Removed))
		}
	}
	if len(parts) == 0 {
		return "no line-level changes"
	}
	return strings.Join(parts, ", ")
}

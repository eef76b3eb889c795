// Package extract pulls structured JSON out of free-form model output.
//
// Model responses often wrap the JSON object in prose or markdown fences.
// The extraction grammar is: locate the first balanced {...} span (string
// literals are honoured, so braces inside quoted values do not count), parse
// it strictly, then validate it against the caller's expected shape.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind classifies an extraction attempt.
type Kind int

const (
	// OK means a value was decoded and passed validation.
	OK Kind = iota
	// Malformed means text was present but no valid object could be decoded.
	Malformed
	// Empty means the model returned no usable text at all.
	Empty
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Malformed:
		return "malformed"
	case Empty:
		return "empty"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of decoding one model response.
type Result[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// ErrNoObject is reported when the text contains no balanced object.
var ErrNoObject = errors.New("no balanced JSON object in response")

// Span returns the first balanced {...} substring of text.
func Span(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// Decode extracts the first object from text into T and runs validate on it
// when validate is non-nil.
func Decode[T any](text string, validate func(T) error) Result[T] {
	var zero T
	if strings.TrimSpace(text) == "" {
		return Result[T]{Kind: Empty}
	}
	span, ok := Span(text)
	if !ok {
		return Result[T]{Kind: Malformed, Err: ErrNoObject}
	}
	var v T
	if err := json.Unmarshal([]byte(span), &v); err != nil {
		return Result[T]{Kind: Malformed, Err: fmt.Errorf("parsing response object: %w", err)}
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return Result[T]{Kind: Malformed, Value: zero, Err: err}
		}
	}
	return Result[T]{Kind: OK, Value: v}
}

// StringMap decodes the first object into a flat map of string values.
// Nested objects are flattened with dotted keys ("metadata.description") and
// non-string scalars are dropped.
func StringMap(text string) Result[map[string]string] {
	raw := Decode[map[string]any](text, nil)
	if raw.Kind != OK {
		return Result[map[string]string]{Kind: raw.Kind, Err: raw.Err}
	}
	out := make(map[string]string, len(raw.Value))
	flatten("", raw.Value, out)
	if len(out) == 0 {
		return Result[map[string]string]{Kind: Malformed, Err: errors.New("response object has no string fields")}
	}
	return Result[map[string]string]{Kind: OK, Value: out}
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		if prefix != "" {
			key = prefix + "." + key
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]any:
			flatten(key, val, out)
		}
	}
}

// ValidMarkup reports an error unless s parses as an HTML fragment containing
// at least one element.
func ValidMarkup(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("markup is empty")
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s), body)
	if err != nil {
		return fmt.Errorf("parsing markup: %w", err)
	}
	for _, n := range nodes {
		if hasElement(n) {
			return nil
		}
	}
	return errors.New("markup contains no elements")
}

func hasElement(n *html.Node) bool {
	if n.Type == html.ElementNode {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasElement(c) {
			return true
		}
	}
	return false
}

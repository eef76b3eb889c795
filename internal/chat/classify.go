// Package chat applies free-text edit instructions to a single generated
// component.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/kalambet/sitecraft/internal/engine"
	"github.com/kalambet/sitecraft/internal/extract"
	"github.com/kalambet/sitecraft/internal/generator"
	"github.com/kalambet/sitecraft/internal/metrics"
	"github.com/kalambet/sitecraft/internal/site"
)

// Change types.
const (
	ChangeStyle         = "style"
	ChangeContent       = "content"
	ChangeStructure     = "structure"
	ChangeFunctionality = "functionality"
)

// Classification sources.
const (
	SourceModel    = "model"
	SourceKeywords = "keywords"
)

// ConfidenceThreshold is the minimum confidence at which an edit is attempted.
const ConfidenceThreshold = 0.5

var changeTypes = []string{ChangeStyle, ChangeContent, ChangeStructure, ChangeFunctionality}

// keyword tables for the offline classifier, checked in order.
var changeKeywords = []struct {
	change string
	words  []string
}{
	{ChangeStyle, []string{
		"color", "colour", "style", "background", "font", "dark", "light",
		"red", "blue", "green", "yellow", "orange", "purple", "pink", "black", "white", "gray", "grey",
	}},
	{ChangeContent, []string{"text", "title", "heading", "copy", "wording"}},
	{ChangeStructure, []string{"layout", "column", "reorder", "move", "add a", "remove"}},
	{ChangeFunctionality, []string{"click", "submit", "validate", "animation", "animate", "behavior", "behaviour"}},
}

// Chatter is the subset of engine.Engine the classifier needs.
type Chatter interface {
	Chat(ctx context.Context, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Analysis is the interpretation of an edit instruction.
type Analysis struct {
	ComponentTarget string   `json:"componentTarget"`
	ChangeType      string   `json:"changeType"`
	SpecificChanges []string `json:"specificChanges"`
	Confidence      float64  `json:"confidence"`
	Source          string   `json:"source"`
}

// Actionable reports whether the analysis is confident enough to edit.
func (a Analysis) Actionable() bool {
	return a.ComponentTarget != "" && a.Confidence >= ConfidenceThreshold
}

// ClassifierOptions tune a Classifier. Zero values select the defaults.
type ClassifierOptions struct {
	MaxAttempts int
	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay  time.Duration
	CallTimeout time.Duration
	Metrics     metrics.Recorder
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Classifier works out which component an instruction is about and what
// kind of change it asks for.
type Classifier struct {
	client   Chatter
	attempts int
	delay    time.Duration
	timeout  time.Duration
	metrics  metrics.Recorder
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewClassifier creates a Classifier. client may be nil, in which case only
// keyword matching is used.
func NewClassifier(client Chatter, opts ClassifierOptions) *Classifier {
	c := &Classifier{
		client:   client,
		attempts: opts.MaxAttempts,
		delay:    opts.RetryDelay,
		timeout:  opts.CallTimeout,
		metrics:  metrics.OrNop(opts.Metrics),
		sleep:    opts.Sleep,
	}
	if c.attempts <= 0 {
		c.attempts = 3
	}
	if c.delay == 0 {
		c.delay = 2 * time.Second
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.sleep == nil {
		c.sleep = generator.Sleep
	}
	return c
}

// Classify interprets message against the known components. It never fails:
// when the model path is exhausted the keyword classifier answers.
func (c *Classifier) Classify(ctx context.Context, message string, known []string) Analysis {
	if c.client != nil {
		var lastErr error
		for attempt := 1; attempt <= c.attempts; attempt++ {
			a, err := c.fromModel(ctx, message, known)
			if err == nil {
				return a
			}
			lastErr = err
			slog.Warn("chat classification attempt failed", "attempt", attempt, "max_attempts", c.attempts, "error", err)
			if attempt < c.attempts {
				if c.sleep(ctx, c.delay*time.Duration(attempt)) != nil {
					break
				}
			}
		}
		slog.Warn("chat classification exhausted, using keywords", "error", lastErr)
		c.metrics.IncFallback("classify", "")
	}
	return Keywords(message, known)
}

type modelAnalysis struct {
	ComponentTarget *string  `json:"componentTarget"`
	ChangeType      string   `json:"changeType"`
	SpecificChanges []string `json:"specificChanges"`
	Confidence      float64  `json:"confidence"`
}

func (c *Classifier) fromModel(ctx context.Context, message string, known []string) (Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.client.Chat(ctx, classifyPrompt(message, known), classifySchema())
	if err != nil {
		c.metrics.ObserveModelCall("classify", "error", time.Since(start))
		return Analysis{}, fmt.Errorf("model call: %w", err)
	}
	res := extract.Decode(raw, func(m modelAnalysis) error { return validateAnalysis(m, known) })
	c.metrics.ObserveModelCall("classify", res.Kind.String(), time.Since(start))
	if res.Kind != extract.OK {
		return Analysis{}, fmt.Errorf("%s classification: %v", res.Kind, res.Err)
	}

	m := res.Value
	a := Analysis{
		ChangeType:      strings.ToLower(m.ChangeType),
		SpecificChanges: m.SpecificChanges,
		Confidence:      m.Confidence,
		Source:          SourceModel,
	}
	if m.ComponentTarget != nil {
		a.ComponentTarget = normalizeTarget(*m.ComponentTarget)
	}
	if a.ChangeType == "" {
		a.ChangeType = ChangeContent
	}
	if len(a.SpecificChanges) == 0 {
		a.SpecificChanges = []string{message}
	}
	return a, nil
}

func validateAnalysis(m modelAnalysis, known []string) error {
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", m.Confidence)
	}
	if m.ChangeType != "" && !slices.Contains(changeTypes, strings.ToLower(m.ChangeType)) {
		return fmt.Errorf("unknown change type %q", m.ChangeType)
	}
	if m.ComponentTarget != nil {
		if t := normalizeTarget(*m.ComponentTarget); t != "" && !slices.Contains(known, t) {
			return fmt.Errorf("target %q is not an available component", t)
		}
	}
	return nil
}

func normalizeTarget(t string) string {
	t = strings.TrimSpace(t)
	if strings.EqualFold(t, "null") || strings.EqualFold(t, "none") {
		return ""
	}
	return site.NormalizeID(t)
}

// Keywords classifies message by matching component names and a small
// keyword table. Confidence is 0.8 when a component matched, 0.4 otherwise.
func Keywords(message string, known []string) Analysis {
	text := words(message)

	target := ""
	for _, id := range known {
		if containsWord(text, id) {
			target = id
			break
		}
	}

	change := ChangeContent
classify:
	for _, group := range changeKeywords {
		for _, w := range group.words {
			if containsWord(text, w) {
				change = group.change
				break classify
			}
		}
	}

	confidence := 0.4
	if target != "" {
		confidence = 0.8
	}
	return Analysis{
		ComponentTarget: target,
		ChangeType:      change,
		SpecificChanges: []string{message},
		Confidence:      confidence,
		Source:          SourceKeywords,
	}
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// words lowercases s and reduces it to space separated words, with a space
// on either side.
func words(s string) string {
	return " " + strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(s), " ")) + " "
}

// inflections may follow the last word of a keyword: "lighter" matches
// "light", "highlight" does not.
var inflections = []string{"", "s", "es", "d", "ed", "er", "ing"}

// containsWord reports whether phrase occurs in text, as returned by words,
// on word boundaries.
func containsWord(text, phrase string) bool {
	p := strings.TrimSpace(words(phrase))
	if p == "" {
		return false
	}
	for _, suffix := range inflections {
		if strings.Contains(text, " "+p+suffix+" ") {
			return true
		}
	}
	return false
}

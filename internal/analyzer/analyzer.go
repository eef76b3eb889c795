// Package analyzer decides which components a site is built from.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/sitecraft/internal/engine"
	"github.com/kalambet/sitecraft/internal/extract"
	"github.com/kalambet/sitecraft/internal/metrics"
	"github.com/kalambet/sitecraft/internal/site"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxComponents = 5
)

// Plan sources.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Chatter is the subset of engine.Engine the analyzer needs.
type Chatter interface {
	Chat(ctx context.Context, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Analysis is an ordered component plan with the reasoning behind it.
type Analysis struct {
	Components    []string `json:"components"`
	Reasoning     string   `json:"reasoning"`
	ExpectedCount int      `json:"expectedCount"`
	Source        string   `json:"source"`
}

// Options tune an Analyzer. Zero values select the defaults.
type Options struct {
	Timeout       time.Duration
	MaxComponents int
	Metrics       metrics.Recorder
}

// Analyzer maps a GenerationRequest to a component plan. The model is asked
// first; any failure falls back to a keyword heuristic, so Plan always
// returns a usable plan.
type Analyzer struct {
	client  Chatter
	timeout time.Duration
	max     int
	metrics metrics.Recorder
}

// New creates an Analyzer. client may be nil, in which case only the
// heuristic is used.
func New(client Chatter, opts Options) *Analyzer {
	a := &Analyzer{
		client:  client,
		timeout: opts.Timeout,
		max:     opts.MaxComponents,
		metrics: metrics.OrNop(opts.Metrics),
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}
	if a.max <= 0 {
		a.max = defaultMaxComponents
	}
	return a
}

type modelPlan struct {
	Components []string `json:"components"`
	Reasoning  string   `json:"reasoning"`
}

// Plan returns the ordered component list for req. header and hero always
// lead the plan, footer is always present and the plan never exceeds the
// configured maximum.
func (a *Analyzer) Plan(ctx context.Context, req site.GenerationRequest) Analysis {
	var result Analysis
	if plan, err := a.fromModel(ctx, req); err != nil {
		slog.Warn("component analysis failed, using heuristic", "error", err)
		a.metrics.IncFallback("plan", "")
		result = Heuristic(req)
	} else {
		result = Analysis{Components: plan.Components, Reasoning: plan.Reasoning, Source: SourceModel}
	}

	result.Components = site.EnforcePlan(result.Components, a.max)
	result.ExpectedCount = len(result.Components)
	slog.Info("component plan ready", "components", result.Components, "source", result.Source)
	return result
}

func (a *Analyzer) fromModel(ctx context.Context, req site.GenerationRequest) (modelPlan, error) {
	if a.client == nil {
		return modelPlan{}, errors.New("no model client configured")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.client.Chat(ctx, BuildPrompt(req), planSchema())
	if err != nil {
		a.metrics.ObserveModelCall("plan", callStatus(err), time.Since(start))
		return modelPlan{}, fmt.Errorf("model call: %w", err)
	}

	res := extract.Decode(raw, validatePlan)
	a.metrics.ObserveModelCall("plan", res.Kind.String(), time.Since(start))
	if res.Kind != extract.OK {
		return modelPlan{}, fmt.Errorf("%s plan response: %v", res.Kind, res.Err)
	}
	return res.Value, nil
}

func validatePlan(p modelPlan) error {
	valid := 0
	for _, id := range p.Components {
		if site.ValidID(site.NormalizeID(id)) {
			valid++
		}
	}
	if valid == 0 {
		return errors.New("plan lists no valid components")
	}
	return nil
}

// Heuristic is the deterministic plan used when the model is unavailable.
// Restaurants and food businesses get an about-us section, other businesses
// and service providers get services, and selected features map onto their
// components.
func Heuristic(req site.GenerationRequest) Analysis {
	typ := strings.ToLower(req.WebsiteType)
	desc := strings.ToLower(req.BusinessDescription)

	components := []string{site.Header, site.Hero, site.Footer}
	switch {
	case strings.Contains(typ, "restaurant") || strings.Contains(desc, "restaurant") || strings.Contains(desc, "food"):
		components = append(components, site.AboutUs)
	case strings.Contains(typ, "business") || strings.Contains(desc, "service"):
		components = append(components, site.Services)
	}
	for _, f := range req.SelectedFeatures {
		if id, ok := site.FeatureComponent(f); ok {
			components = append(components, id)
		}
	}

	kind := req.WebsiteType
	if kind == "" {
		kind = "general"
	}
	return Analysis{
		Components: components,
		Reasoning:  fmt.Sprintf("Keyword-based selection for a %s website", kind),
		Source:     SourceFallback,
	}
}

func callStatus(err error) string {
	if engine.IsOverloaded(err) {
		return "overloaded"
	}
	if errors.Is(err, engine.ErrEmptyResponse) {
		return "empty"
	}
	return "error"
}

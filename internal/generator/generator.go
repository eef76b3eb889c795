// Package generator produces component artifacts with the model, retrying
// transient failures and substituting the static library on exhaustion.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/sitecraft/internal/engine"
	"github.com/kalambet/sitecraft/internal/extract"
	"github.com/kalambet/sitecraft/internal/metrics"
	"github.com/kalambet/sitecraft/internal/site"
)

// Result sources.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Chatter is the subset of engine.Engine the generator needs.
type Chatter interface {
	Chat(ctx context.Context, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Policy bounds the retry loop around a single model call.
type Policy struct {
	MaxAttempts int
	// RetryDelay is multiplied by the attempt number after ordinary failures.
	RetryDelay time.Duration
	// OverloadDelay is used instead when the backend reports overload.
	OverloadDelay time.Duration
	// CallTimeout bounds each model call.
	CallTimeout time.Duration
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   2,
		RetryDelay:    6 * time.Second,
		OverloadDelay: 15 * time.Second,
		CallTimeout:   30 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.RetryDelay < 0 {
		p.RetryDelay = 0
	}
	if p.OverloadDelay < 0 {
		p.OverloadDelay = 0
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = d.CallTimeout
	}
	return p
}

// Result is the outcome of generating one component.
type Result struct {
	Artifact site.Artifact
	Source   string
	Attempts int
	// Err is the last failure when Source is SourceFallback.
	Err error
}

// Options configure a Generator.
type Options struct {
	Policy  Policy
	Metrics metrics.Recorder
	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Generator turns component ids into artifacts.
type Generator struct {
	client  Chatter
	policy  Policy
	metrics metrics.Recorder
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a Generator. A zero Policy selects DefaultPolicy.
func New(client Chatter, opts Options) *Generator {
	p := opts.Policy
	if p == (Policy{}) {
		p = DefaultPolicy()
	}
	g := &Generator{
		client:  client,
		policy:  p.withDefaults(),
		metrics: metrics.OrNop(opts.Metrics),
		sleep:   opts.Sleep,
	}
	if g.sleep == nil {
		g.sleep = Sleep
	}
	return g
}

// Generate returns the artifact for component id. It never fails: when
// every attempt fails the static fallback for id is returned. Persisting the
// result is the caller's job.
func (g *Generator) Generate(ctx context.Context, id string, gc Context) Result {
	art, attempts, err := g.Call(ctx, "component", id, BuildPrompt(id, gc), ArtifactSchema(id))
	if err == nil {
		return Result{Artifact: art, Source: SourceModel, Attempts: attempts}
	}
	slog.Warn("component generation exhausted, using fallback", "component", id, "attempts", attempts, "error", err)
	g.metrics.IncFallback("component", id)
	return Result{
		Artifact: site.Fallback(id, gc.Request),
		Source:   SourceFallback,
		Attempts: attempts,
		Err:      err,
	}
}

// Call runs messages through the retry loop and parses the reply as the
// artifact of component id. Call failures and malformed replies are both
// retried; overload waits OverloadDelay, other failures wait RetryDelay
// times the attempt number. It returns the number of attempts made.
func (g *Generator) Call(ctx context.Context, purpose, id string, messages []engine.Message, schema *engine.Schema) (site.Artifact, int, error) {
	if g.client == nil {
		return site.Artifact{}, 0, errors.New("no model client configured")
	}

	var lastErr error
	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return site.Artifact{}, attempt - 1, err
		}

		art, err := g.attempt(ctx, purpose, id, messages, schema)
		if err == nil {
			return art, attempt, nil
		}
		lastErr = err
		slog.Warn("model attempt failed", "purpose", purpose, "component", id, "attempt", attempt, "max_attempts", g.policy.MaxAttempts, "error", err)

		if attempt == g.policy.MaxAttempts {
			return site.Artifact{}, attempt, lastErr
		}
		delay := g.policy.RetryDelay * time.Duration(attempt)
		if engine.IsOverloaded(err) {
			delay = g.policy.OverloadDelay
		}
		if err := g.sleep(ctx, delay); err != nil {
			return site.Artifact{}, attempt, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
	return site.Artifact{}, g.policy.MaxAttempts, lastErr
}

func (g *Generator) attempt(ctx context.Context, purpose, id string, messages []engine.Message, schema *engine.Schema) (site.Artifact, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.policy.CallTimeout)
	defer cancel()

	start := time.Now()
	raw, err := g.client.Chat(callCtx, messages, schema)
	if err != nil {
		status := "error"
		if engine.IsOverloaded(err) {
			status = "overloaded"
		}
		g.metrics.ObserveModelCall(purpose, status, time.Since(start))
		return site.Artifact{}, err
	}

	res := ParseArtifact(id, raw)
	g.metrics.ObserveModelCall(purpose, res.Kind.String(), time.Since(start))
	switch res.Kind {
	case extract.OK:
		return res.Value, nil
	case extract.Empty:
		return site.Artifact{}, engine.ErrEmptyResponse
	default:
		return site.Artifact{}, fmt.Errorf("malformed component response: %w", res.Err)
	}
}

// ParseArtifact extracts the artifact of component id from raw model text.
// Qualified ("hero.html") and bare ("html") keys are both accepted; the
// markup must contain at least one HTML element.
func ParseArtifact(id, raw string) extract.Result[site.Artifact] {
	fields := extract.StringMap(raw)
	if fields.Kind != extract.OK {
		return extract.Result[site.Artifact]{Kind: fields.Kind, Err: fields.Err}
	}
	art := site.ArtifactFromFiles(id, fields.Value)
	if err := extract.ValidMarkup(art.Markup); err != nil {
		return extract.Result[site.Artifact]{Kind: extract.Malformed, Err: err}
	}
	return extract.Result[site.Artifact]{Kind: extract.OK, Value: art}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package scheduler drives component generation for a session, one
// component at a time with a fixed spacing between model calls.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/sitecraft/internal/events"
	"github.com/kalambet/sitecraft/internal/generator"
	"github.com/kalambet/sitecraft/internal/metrics"
	"github.com/kalambet/sitecraft/internal/site"
	"github.com/kalambet/sitecraft/internal/storage"
)

// DefaultInterCallDelay is the spacing between consecutive generations.
const DefaultInterCallDelay = 6 * time.Second

// Generator produces one component artifact.
type Generator interface {
	Generate(ctx context.Context, id string, gc generator.Context) generator.Result
}

// Saver persists artifacts.
type Saver interface {
	Create(sessionID string) error
	WriteWithSource(sessionID, id string, a site.Artifact, source string) error
}

// EventRecorder keeps the per-component history of a session.
type EventRecorder interface {
	RecordComponentEvent(ctx context.Context, ev storage.ComponentEvent) error
}

// Outcome is the result of one plan entry.
type Outcome struct {
	Component string `json:"component"`
	Source    string `json:"source"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
	SaveError string `json:"saveError,omitempty"`
}

// Summary reports a whole run.
type Summary struct {
	SessionID string    `json:"sessionId"`
	Planned   int       `json:"planned"`
	Saved     int       `json:"saved"`
	Fallbacks int       `json:"fallbacks"`
	Outcomes  []Outcome `json:"outcomes"`
	// SaveErrors lists the components whose artifact could not be persisted.
	SaveErrors []string      `json:"saveErrors,omitempty"`
	Cancelled  bool          `json:"cancelled,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Options configure a Scheduler.
type Options struct {
	InterCallDelay time.Duration
	Events         events.Publisher
	Recorder       EventRecorder
	Metrics        metrics.Recorder
	// Sleep waits between components; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Scheduler runs component plans serially.
type Scheduler struct {
	gen      Generator
	saver    Saver
	delay    time.Duration
	events   events.Publisher
	recorder EventRecorder
	metrics  metrics.Recorder
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Scheduler. A negative InterCallDelay disables spacing; zero
// selects DefaultInterCallDelay.
func New(gen Generator, saver Saver, opts Options) *Scheduler {
	s := &Scheduler{
		gen:      gen,
		saver:    saver,
		delay:    opts.InterCallDelay,
		events:   opts.Events,
		recorder: opts.Recorder,
		metrics:  metrics.OrNop(opts.Metrics),
		sleep:    opts.Sleep,
	}
	if s.delay == 0 {
		s.delay = DefaultInterCallDelay
	}
	if s.delay < 0 {
		s.delay = 0
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.sleep == nil {
		s.sleep = generator.Sleep
	}
	return s
}

// Run generates every component of plan in order and persists each result
// as soon as it is available. Save failures are recorded in the summary and
// do not stop the run. Cancelling ctx stops the run between components.
func (s *Scheduler) Run(ctx context.Context, sessionID string, plan []string, gc generator.Context) Summary {
	start := time.Now()
	sum := Summary{SessionID: sessionID, Planned: len(plan)}
	log := slog.With("session_id", sessionID)

	if err := s.saver.Create(sessionID); err != nil {
		log.Error("creating session directory", "error", err)
	}
	s.events.Publish(events.Event{Kind: events.KindGenerationStarted, SessionID: sessionID, Expected: len(plan)})

	for i, id := range plan {
		if ctx.Err() != nil {
			sum.Cancelled = true
			break
		}

		res := s.gen.Generate(ctx, id, gc)
		out := Outcome{Component: id, Source: res.Source, Attempts: res.Attempts}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		if res.Source == generator.SourceFallback {
			sum.Fallbacks++
		}

		if err := s.saver.WriteWithSource(sessionID, id, res.Artifact, res.Source); err != nil {
			log.Error("saving component", "component", id, "error", err)
			out.SaveError = err.Error()
			sum.SaveErrors = append(sum.SaveErrors, id)
			s.metrics.IncSave("error")
		} else {
			sum.Saved++
			s.metrics.IncSave("ok")
			log.Info("component saved", "component", id, "source", res.Source, "attempts", res.Attempts,
				"progress", sum.Saved, "expected", len(plan))
		}
		sum.Outcomes = append(sum.Outcomes, out)
		s.record(ctx, sessionID, out)
		s.events.Publish(events.Event{
			Kind:      events.KindComponentSaved,
			SessionID: sessionID,
			Component: id,
			Source:    res.Source,
			Saved:     sum.Saved,
			Expected:  len(plan),
			Error:     out.SaveError,
		})

		if i < len(plan)-1 && s.delay > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				sum.Cancelled = true
				break
			}
		}
	}

	sum.Duration = time.Since(start)
	s.metrics.ObserveGeneration(sum.Saved, sum.Duration)
	s.events.Publish(events.Event{
		Kind:      events.KindGenerationCompleted,
		SessionID: sessionID,
		Saved:     sum.Saved,
		Expected:  len(plan),
	})
	log.Info("generation finished", "saved", sum.Saved, "planned", sum.Planned,
		"fallbacks", sum.Fallbacks, "save_errors", len(sum.SaveErrors), "cancelled", sum.Cancelled,
		"duration", sum.Duration)
	return sum
}

func (s *Scheduler) record(ctx context.Context, sessionID string, out Outcome) {
	if s.recorder == nil {
		return
	}
	// The history survives cancellation of the run itself.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.recorder.RecordComponentEvent(rctx, storage.ComponentEvent{
		SessionID:   sessionID,
		ComponentID: out.Component,
		Source:      out.Source,
		Attempts:    out.Attempts,
		SaveError:   out.SaveError,
		Error:       out.Error,
	})
	if err != nil {
		slog.Warn("recording component event", "session_id", sessionID, "component", out.Component, "error", err)
	}
}

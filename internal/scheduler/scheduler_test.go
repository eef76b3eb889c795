package scheduler

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/sitecraft/internal/events"
	"github.com/kalambet/sitecraft/internal/files"
	"github.com/kalambet/sitecraft/internal/generator"
	"github.com/kalambet/sitecraft/internal/site"
	"github.com/kalambet/sitecraft/internal/storage"
)

type fakeGenerator struct {
	mu       sync.Mutex
	calls    []string
	fallback map[string]bool
	onCall   func(id string)
}

func (f *fakeGenerator) Generate(_ context.Context, id string, gc generator.Context) generator.Result {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(id)
	}
	if f.fallback[id] {
		return generator.Result{
			Artifact: site.Fallback(id, gc.Request),
			Source:   generator.SourceFallback,
			Attempts: 2,
			Err:      errors.New("model unavailable"),
		}
	}
	return generator.Result{
		Artifact: site.Artifact{Markup: "<div>" + id + "</div>"},
		Source:   generator.SourceModel,
		Attempts: 1,
	}
}

type failingSaver struct {
	*files.Store
	fail map[string]bool
}

func (f *failingSaver) WriteWithSource(sessionID, id string, a site.Artifact, source string) error {
	if f.fail[id] {
		return errors.New("disk full")
	}
	return f.Store.WriteWithSource(sessionID, id, a, source)
}

type recorder struct {
	mu     sync.Mutex
	events []storage.ComponentEvent
}

func (r *recorder) RecordComponentEvent(_ context.Context, ev storage.ComponentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type sleeps struct {
	mu  sync.Mutex
	got []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.got = append(s.got, d)
	s.mu.Unlock()
	return ctx.Err()
}

var scenarioA = []string{site.Header, site.Hero, site.Footer, site.AboutUs}

func gc() generator.Context {
	return generator.Context{
		Request: site.GenerationRequest{BusinessDescription: "Pizza place", WebsiteType: "restaurant"},
		Plan:    scenarioA,
	}
}

func TestRun_SerialInPlanOrder(t *testing.T) {
	store := files.New(t.TempDir())
	gen := &fakeGenerator{}
	sl := &sleeps{}
	rec := &recorder{}
	s := New(gen, store, Options{Sleep: sl.sleep, Recorder: rec})

	sum := s.Run(context.Background(), "u1", scenarioA, gc())

	if !reflect.DeepEqual(gen.calls, scenarioA) {
		t.Errorf("calls = %v, want %v", gen.calls, scenarioA)
	}
	if sum.Saved != 4 || sum.Planned != 4 || sum.Fallbacks != 0 || len(sum.SaveErrors) != 0 {
		t.Errorf("summary = %+v", sum)
	}
	// Delay between completions only.
	want := []time.Duration{DefaultInterCallDelay, DefaultInterCallDelay, DefaultInterCallDelay}
	if !reflect.DeepEqual(sl.got, want) {
		t.Errorf("sleeps = %v, want %v", sl.got, want)
	}
	all, err := store.ReadAll("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("stored %d components, want 4", len(all))
	}
	if len(rec.events) != 4 || rec.events[2].ComponentID != site.Footer {
		t.Errorf("recorded events = %+v", rec.events)
	}
}

func TestRun_StoreGrowsMonotonically(t *testing.T) {
	store := files.New(t.TempDir())
	var counts []int
	gen := &fakeGenerator{onCall: func(string) {
		n, _ := store.Count("u1")
		counts = append(counts, n)
	}}
	s := New(gen, store, Options{InterCallDelay: -1})

	s.Run(context.Background(), "u1", scenarioA, gc())

	if !reflect.DeepEqual(counts, []int{0, 1, 2, 3}) {
		t.Errorf("store sizes before each call = %v", counts)
	}
}

// Scenario B: the model fails for hero; a fallback hero is stored and the
// loop carries on.
func TestRun_FallbackStillSaved(t *testing.T) {
	store := files.New(t.TempDir())
	gen := &fakeGenerator{fallback: map[string]bool{site.Hero: true}}
	rec := &recorder{}
	s := New(gen, store, Options{InterCallDelay: -1, Recorder: rec})

	sum := s.Run(context.Background(), "u1", scenarioA, gc())

	if sum.Saved != 4 || sum.Fallbacks != 1 {
		t.Errorf("summary = %+v", sum)
	}
	hero, ok, err := store.Read("u1", site.Hero)
	if err != nil || !ok || hero.Empty() {
		t.Fatalf("hero not stored: %v %v", ok, err)
	}
	if rec.events[1].Source != generator.SourceFallback || rec.events[1].Error == "" {
		t.Errorf("hero event = %+v", rec.events[1])
	}
}

func TestRun_SaveErrorDoesNotStopLoop(t *testing.T) {
	saver := &failingSaver{Store: files.New(t.TempDir()), fail: map[string]bool{site.Hero: true}}
	gen := &fakeGenerator{}
	s := New(gen, saver, Options{InterCallDelay: -1})

	sum := s.Run(context.Background(), "u1", scenarioA, gc())

	if len(gen.calls) != 4 {
		t.Errorf("generated %d components, want 4", len(gen.calls))
	}
	if sum.Saved != 3 || !reflect.DeepEqual(sum.SaveErrors, []string{site.Hero}) {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Outcomes[1].SaveError != "disk full" {
		t.Errorf("hero outcome = %+v", sum.Outcomes[1])
	}
}

func TestRun_CancelStopsBetweenComponents(t *testing.T) {
	store := files.New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{onCall: func(id string) {
		if id == site.Hero {
			cancel()
		}
	}}
	sl := &sleeps{}
	s := New(gen, store, Options{Sleep: sl.sleep})

	sum := s.Run(ctx, "u1", scenarioA, gc())

	if !sum.Cancelled {
		t.Error("Cancelled = false")
	}
	if !reflect.DeepEqual(gen.calls, []string{site.Header, site.Hero}) {
		t.Errorf("calls = %v", gen.calls)
	}
	if sum.Saved != 2 {
		t.Errorf("Saved = %d, want 2", sum.Saved)
	}
}

func TestRun_PublishesProgress(t *testing.T) {
	bus := events.NewBus()
	ch, stop := bus.Subscribe("u1")
	defer stop()

	s := New(&fakeGenerator{}, files.New(t.TempDir()), Options{InterCallDelay: -1, Events: bus})
	s.Run(context.Background(), "u1", scenarioA, gc())

	var kinds []string
	var lastSaved int
	for len(kinds) < 6 {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Kind)
			if ev.Kind == events.KindComponentSaved {
				lastSaved = ev.Saved
			}
		case <-time.After(time.Second):
			t.Fatalf("events = %v", kinds)
		}
	}
	if kinds[0] != events.KindGenerationStarted || kinds[5] != events.KindGenerationCompleted {
		t.Errorf("kinds = %v", kinds)
	}
	if lastSaved != 4 {
		t.Errorf("last saved count = %d", lastSaved)
	}
}

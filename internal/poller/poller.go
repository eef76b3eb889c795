// Package poller follows a generation run from the client side by
// repeatedly reading the session's persisted components until the run is
// done, the server goes away or the caller stops it.
package poller

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/kalambet/sitecraft/internal/client"
	"github.com/kalambet/sitecraft/internal/site"
)

// State of a Bridge.
type State string

const (
	StateIdle     State = "idle"
	StatePolling  State = "polling"
	StateComplete State = "complete"
	StateError    State = "error"
)

// Reasons a run stopped.
const (
	ReasonAll         = "all"
	ReasonThreshold   = "threshold"
	ReasonMaxAttempts = "max-attempts"
	ReasonMaxFailures = "max-failures"
	ReasonUnreachable = "unreachable"
	ReasonCancelled   = "cancelled"
)

// ErrAlreadyPolling is returned by Start while a run is in progress.
var ErrAlreadyPolling = errors.New("already polling")

// Reader fetches the components persisted for a session.
type Reader interface {
	GetFiles(ctx context.Context, sessionID string) (site.Site, error)
}

// Config tunes the polling schedule and stop conditions.
type Config struct {
	// BaseInterval is the delay between reads while reads succeed.
	BaseInterval time.Duration
	// Increment is added to the delay per consecutive failure.
	Increment   time.Duration
	MaxInterval time.Duration
	MaxAttempts int
	MaxFailures int
	// MinPolls and MinFraction form the early-exit threshold: after MinPolls
	// reads, ceil(expected*MinFraction) components are enough.
	MinPolls    int
	MinFraction float64
	ReadTimeout time.Duration
}

// DefaultConfig returns the production schedule.
func DefaultConfig() Config {
	return Config{
		BaseInterval: 3 * time.Second,
		Increment:    2 * time.Second,
		MaxInterval:  15 * time.Second,
		MaxAttempts:  20,
		MaxFailures:  3,
		MinPolls:     10,
		MinFraction:  0.6,
		ReadTimeout:  10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseInterval <= 0 {
		c.BaseInterval = d.BaseInterval
	}
	if c.Increment < 0 {
		c.Increment = 0
	}
	if c.MaxInterval < c.BaseInterval {
		c.MaxInterval = c.BaseInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = d.MaxFailures
	}
	if c.MinPolls <= 0 {
		c.MinPolls = d.MinPolls
	}
	if c.MinFraction <= 0 || c.MinFraction > 1 {
		c.MinFraction = d.MinFraction
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	return c
}

// Interval returns the delay before the next read after the given number of
// consecutive failures.
func (c Config) Interval(failures int) time.Duration {
	d := c.BaseInterval + time.Duration(failures)*c.Increment
	if d > c.MaxInterval {
		return c.MaxInterval
	}
	return d
}

// Threshold is the component count that satisfies the early-exit rule.
func (c Config) Threshold(expected int) int {
	return int(math.Ceil(float64(expected) * c.MinFraction))
}

// Update is the observable state passed to change callbacks.
type Update struct {
	State      State
	Components site.Site
	Expected   int
	Attempts   int
	Failures   int
}

// Result is the final state of a run.
type Result struct {
	State      State
	Reason     string
	Components site.Site
	Attempts   int
	// Err is the last read error for runs that stopped on failures.
	Err error
}

// View is the client's accumulated picture of a session. Merging the same
// read twice leaves it unchanged.
type View struct {
	components site.Site
}

// NewView returns an empty view.
func NewView() *View {
	return &View{components: site.Site{}}
}

// Merge folds a read into the view and reports whether anything observable
// changed. Components are never removed.
func (v *View) Merge(read site.Site) bool {
	changed := false
	for id, a := range read {
		if old, ok := v.components[id]; ok && old == a {
			continue
		}
		v.components[id] = a
		changed = true
	}
	return changed
}

// Len returns the number of components seen.
func (v *View) Len() int {
	return len(v.components)
}

// Snapshot returns a copy of the components seen so far.
func (v *View) Snapshot() site.Site {
	out := make(site.Site, len(v.components))
	for id, a := range v.components {
		out[id] = a
	}
	return out
}

// Poll follows a session synchronously until a stop condition holds or ctx
// is cancelled. onChange, if set, is called whenever the observable state
// changes.
func Poll(ctx context.Context, r Reader, cfg Config, sessionID string, expected int, onChange func(Update)) Result {
	p := &run{
		reader:   r,
		cfg:      cfg.withDefaults(),
		session:  sessionID,
		expected: expected,
		view:     NewView(),
		notify:   onChange,
	}
	return p.loop(ctx)
}

type run struct {
	reader   Reader
	cfg      Config
	session  string
	expected int
	view     *View
	notify   func(Update)

	attempts int
	failures int
}

func (p *run) emit(state State) {
	if p.notify == nil {
		return
	}
	p.notify(Update{
		State:      state,
		Components: p.view.Snapshot(),
		Expected:   p.expected,
		Attempts:   p.attempts,
		Failures:   p.failures,
	})
}

func (p *run) finish(state State, reason string, err error) Result {
	p.emit(state)
	return Result{
		State:      state,
		Reason:     reason,
		Components: p.view.Snapshot(),
		Attempts:   p.attempts,
		Err:        err,
	}
}

func (p *run) loop(ctx context.Context) Result {
	p.emit(StatePolling)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.finish(StateIdle, ReasonCancelled, ctx.Err())
		case <-timer.C:
		}

		p.attempts++
		rctx, cancel := context.WithTimeout(ctx, p.cfg.ReadTimeout)
		read, err := p.reader.GetFiles(rctx, p.session)
		cancel()

		switch {
		case err != nil && ctx.Err() != nil:
			return p.finish(StateIdle, ReasonCancelled, ctx.Err())
		case errors.Is(err, client.ErrUnreachable):
			return p.finish(StateComplete, ReasonUnreachable, err)
		case err != nil:
			p.failures++
			if p.failures >= p.cfg.MaxFailures {
				return p.finish(StateError, ReasonMaxFailures, err)
			}
		default:
			p.failures = 0
			if p.view.Merge(read) {
				p.emit(StatePolling)
			}
			n := p.view.Len()
			if n >= p.expected {
				return p.finish(StateComplete, ReasonAll, nil)
			}
			if p.attempts >= p.cfg.MinPolls && n >= p.cfg.Threshold(p.expected) {
				return p.finish(StateComplete, ReasonThreshold, nil)
			}
		}

		if p.attempts >= p.cfg.MaxAttempts {
			return p.finish(StateComplete, ReasonMaxAttempts, err)
		}
		timer.Reset(p.cfg.Interval(p.failures))
	}
}

// Bridge runs Poll in the background and exposes its state. A Bridge can be
// restarted once a run has finished.
type Bridge struct {
	reader   Reader
	cfg      Config
	onChange func(Update)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	result Result
	latest site.Site
}

// NewBridge creates an idle Bridge.
func NewBridge(r Reader, cfg Config, onChange func(Update)) *Bridge {
	return &Bridge{reader: r, cfg: cfg, onChange: onChange, state: StateIdle}
}

// Start begins polling sessionID in the background.
func (b *Bridge) Start(ctx context.Context, sessionID string, expected int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StatePolling {
		return ErrAlreadyPolling
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.state = StatePolling
	b.cancel = cancel
	b.done = done
	b.result = Result{}
	b.latest = site.Site{}

	go func() {
		defer close(done)
		defer cancel()
		res := Poll(ctx, b.reader, b.cfg, sessionID, expected, b.observe)
		b.mu.Lock()
		b.state = res.State
		b.result = res
		b.mu.Unlock()
	}()
	return nil
}

func (b *Bridge) observe(u Update) {
	b.mu.Lock()
	b.latest = u.Components
	b.mu.Unlock()
	if b.onChange != nil {
		b.onChange(u)
	}
}

// Stop cancels the run, including any read in flight, and returns once the
// run has ended. It is a no-op when idle.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current run ends and returns its result.
func (b *Bridge) Wait() Result {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

// State returns the current state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Components returns the components observed by the current or last run.
func (b *Bridge) Components() site.Site {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(site.Site, len(b.latest))
	for id, a := range b.latest {
		out[id] = a
	}
	return out
}

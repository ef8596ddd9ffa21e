// Package trap implements the simulated phishing pop-up that fires a
// random delay after a page is mounted.
package trap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pavelanni/phishtrap/internal/model"
)

// Default delay bounds.
const (
	DefaultMinDelay = 2000 * time.Millisecond
	DefaultMaxDelay = 8000 * time.Millisecond
)

// State is the lifecycle position of a Trigger.
type State int

const (
	Idle State = iota
	Armed
	Pending
	Resolved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is how a trigger was resolved.
type Outcome string

const (
	Proceeded Outcome = "proceeded"
	Dismissed Outcome = "dismissed"
	Cancelled Outcome = "cancelled"
)

var (
	// ErrNotIdle is returned by Arm on an already armed trigger.
	ErrNotIdle = errors.New("trap already armed")
	// ErrNotPending is returned when resolving a trigger that has not fired.
	ErrNotPending = errors.New("trap is not pending")
)

// Recorder persists trap events.
type Recorder interface {
	CreateTrap(ctx context.Context, e model.TrapEvent) (model.TrapEvent, error)
}

// Config controls a Trigger.
type Config struct {
	MinDelay  time.Duration
	MaxDelay  time.Duration
	DecoyPath string
	// OnResolve, if set, is called once with the outcome when the trigger
	// leaves Armed or Pending.
	OnResolve func(Outcome)
}

// Trigger is one mount of the phishing pop-up. It is safe for concurrent
// use; the timer fires on its own goroutine.
type Trigger struct {
	rec Recorder
	cfg Config

	mu      sync.Mutex
	state   State
	email   string
	delay   time.Duration
	timer   *time.Timer
	pending chan struct{}
}

// New returns an Idle trigger. Zero delay bounds fall back to the defaults.
func New(rec Recorder, cfg Config) *Trigger {
	if cfg.MinDelay <= 0 && cfg.MaxDelay <= 0 {
		cfg.MinDelay, cfg.MaxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Trigger{
		rec:     rec,
		cfg:     cfg,
		pending: make(chan struct{}),
	}
}

// Delay draws a delay uniformly from [min, max] at millisecond granularity.
func Delay(minDelay, maxDelay time.Duration) time.Duration {
	lo := minDelay.Milliseconds()
	hi := maxDelay.Milliseconds()
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	return time.Duration(lo+rand.Int64N(hi-lo+1)) * time.Millisecond
}

// Arm schedules the pop-up for the signed-in user.
func (t *Trigger) Arm(email string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return ErrNotIdle
	}
	t.state = Armed
	t.email = email
	t.delay = Delay(t.cfg.MinDelay, t.cfg.MaxDelay)
	t.timer = time.AfterFunc(t.delay, t.fire)
	slog.Debug("trap armed", "email", email, "delay", t.delay)
	return nil
}

func (t *Trigger) fire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Armed {
		return
	}
	t.state = Pending
	close(t.pending)
}

// Pending is closed when the pop-up should be shown.
func (t *Trigger) Pending() <-chan struct{} {
	return t.pending
}

// State returns the current state.
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ArmedDelay returns the delay drawn by Arm.
func (t *Trigger) ArmedDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

func (t *Trigger) resolve(o Outcome) {
	if t.cfg.OnResolve != nil {
		t.cfg.OnResolve(o)
	}
}

// Proceed resolves the pop-up by following its link. Nothing is recorded
// here; the decoy page records what the user types.
func (t *Trigger) Proceed() (string, error) {
	t.mu.Lock()
	if t.state != Pending {
		t.mu.Unlock()
		return "", ErrNotPending
	}
	t.state = Resolved
	t.mu.Unlock()

	t.resolve(Proceeded)
	return t.cfg.DecoyPath, nil
}

// Dismiss resolves the pop-up by ignoring it and records an ignored event.
func (t *Trigger) Dismiss(ctx context.Context) error {
	t.mu.Lock()
	if t.state != Pending {
		t.mu.Unlock()
		return ErrNotPending
	}
	t.state = Resolved
	email := t.email
	t.mu.Unlock()

	defer t.resolve(Dismissed)
	if _, err := t.rec.CreateTrap(ctx, model.TrapEvent{Email: email, Ignored: true}); err != nil {
		return fmt.Errorf("record dismissed trap: %w", err)
	}
	return nil
}

// Stop tears the trigger down. An armed timer is cancelled, so a trigger
// stopped before its delay elapses never becomes Pending.
func (t *Trigger) Stop() {
	t.mu.Lock()
	prev := t.state
	if t.timer != nil {
		t.timer.Stop()
	}
	if prev == Armed || prev == Pending {
		t.state = Resolved
	}
	t.mu.Unlock()

	if prev == Armed || prev == Pending {
		t.resolve(Cancelled)
	}
}

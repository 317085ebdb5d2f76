package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/engine"
)

// ErrRetriesExhausted is returned by Run when MaxConsecutiveFailures cycles
// failed in a row.
var ErrRetriesExhausted = errors.New(config.ErrRetriesExhausted)

// StepRequest is everything the agent needs to perform one cycle's action.
type StepRequest struct {
	CycleID string
	Action  ActionKind

	// Genre is set for recommend and new_releases cycles.
	Genre *GenrePick

	// Regenerate asks for a fresh image after an image URL failure.
	Regenerate bool

	// Attempt and MaxAttempts describe image retries, 1-based.
	Attempt     int
	MaxAttempts int

	// Instructions is the narrowed text for this action only.
	Instructions string
}

// Stepper performs a single agent step and reports its textual outcome.
type Stepper interface {
	Step(ctx context.Context, req StepRequest) (string, error)
}

// Instructor renders the instructions of a StepRequest.
type Instructor interface {
	Instructions(req StepRequest) string
}

// Outcome classifies a finished cycle.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeImageFailed    Outcome = "image_failed"
	OutcomeImageExhausted Outcome = "image_retries_exhausted"
	OutcomeFailed         Outcome = "failed"
)

// CycleReport summarizes one cycle.
type CycleReport struct {
	CycleID  string     `json:"cycleId"`
	Action   ActionKind `json:"action"`
	Outcome  Outcome    `json:"outcome"`
	Steps    int        `json:"steps"`
	Result   string     `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
	Started  time.Time  `json:"started"`
	Finished time.Time  `json:"finished"`
}

// Status is a point-in-time copy of the runner for reporting.
type Status struct {
	State               State        `json:"state"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastCycle           *CycleReport `json:"lastCycle,omitempty"`
}

// Runner drives the scheduler on a timer. Cycles never overlap: the next
// one is armed only after the current one returns.
type Runner struct {
	Clock      engine.Clock
	Stepper    Stepper
	Instructor Instructor

	// Guard is reset at the start of every cycle. Tools share it to refuse
	// a second side effect within one cycle.
	Guard  *CycleGuard
	Genres *GenreRotation

	// Rand returns jitter in [0, 1). Nil uses math/rand/v2.
	Rand func() float64

	// NewID returns cycle correlation ids. Nil uses uuid.NewString.
	NewID func() string

	mu       sync.Mutex
	policy   Policy
	state    State
	failures int
	last     *CycleReport
}

// NewRunner returns a runner with a fresh guard and genre rotation.
func NewRunner(clock engine.Clock, stepper Stepper, policy Policy) *Runner {
	return &Runner{
		Clock:   clock,
		Stepper: stepper,
		Guard:   &CycleGuard{},
		Genres:  &GenreRotation{},
		policy:  policy,
	}
}

// UpdatePolicy swaps the policy. It applies from the next cycle on.
func (r *Runner) UpdatePolicy(p Policy) {
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()

	slog.Info(config.MsgPolicyUpdated,
		config.LogKeyComponent, config.CompRunner,
		config.LogKeyInterval, p.CycleInterval)
}

// Policy returns the active policy.
func (r *Runner) Policy() Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policy
}

// Snapshot returns a copy of the runner state.
func (r *Runner) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{State: r.state, ConsecutiveFailures: r.failures}
	if r.last != nil {
		last := *r.last
		s.LastCycle = &last
	}
	return s
}

// SetState replaces the scheduler state, used to seed tests and tools.
func (r *Runner) SetState(st State) {
	r.mu.Lock()
	r.state = st
	r.mu.Unlock()
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func (r *Runner) jitter() float64 {
	if r.Rand != nil {
		return r.Rand()
	}
	return rand.Float64()
}

// Run executes a cycle immediately, then one every CycleInterval. A failed
// cycle is retried as a whole after an exponential backoff. Run returns nil
// when ctx is cancelled and ErrRetriesExhausted when the failure cap is hit.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info(config.MsgRunnerStart,
		config.LogKeyComponent, config.CompRunner,
		config.LogKeyInterval, r.Policy().CycleInterval)
	defer slog.Info(config.MsgRunnerStop, config.LogKeyComponent, config.CompRunner)

	var delay time.Duration
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.Clock.After(delay):
		}

		_, err := r.RunCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		p := r.Policy()
		if err == nil {
			r.mu.Lock()
			r.failures = 0
			r.mu.Unlock()
			delay = p.CycleInterval
			continue
		}

		r.mu.Lock()
		r.failures++
		failures := r.failures
		r.mu.Unlock()

		if p.MaxConsecutiveFailures > 0 && failures >= p.MaxConsecutiveFailures {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, failures, err)
		}
		delay = p.Backoff.Delay(failures, r.jitter())
		slog.Warn(config.MsgCycleFailed,
			config.LogKeyComponent, config.CompRunner,
			config.LogKeyAttempt, failures,
			config.LogKeyDelay, delay,
			config.LogKeyError, err)
	}
}

// RunCycle performs exactly one scheduled action. The returned error means
// the whole cycle must be retried; image URL failures are not errors.
func (r *Runner) RunCycle(ctx context.Context) (CycleReport, error) {
	if r.Guard != nil {
		r.Guard.Reset()
	}

	r.mu.Lock()
	p := r.policy
	now := r.Clock.Now()
	action := NextAction(now, &r.state, p)
	if action == ActionPostNoImage {
		r.state.ImageRetryCount = 0
	}
	r.mu.Unlock()

	report := CycleReport{CycleID: r.newID(), Action: action, Started: now}
	log := slog.With(
		config.LogKeyComponent, config.CompRunner,
		config.LogKeyCycle, report.CycleID,
		config.LogKeyAction, action)
	log.Info(config.MsgCycleStart)
	if action == ActionPostNoImage {
		log.Info(config.MsgNoImageFallback)
	}

	req := StepRequest{CycleID: report.CycleID, Action: action}
	switch action {
	case ActionRecommend:
		g := r.genres().NextRecommendation()
		req.Genre = &g
	case ActionNewReleases:
		g := r.genres().NextNewRelease()
		req.Genre = &g
	}

	text, err := r.step(ctx, &report, req)

	if action == ActionPost {
		text, err = r.handleImageFailures(ctx, log, &report, req, text, err)
	}

	report.Result = text
	report.Finished = r.Clock.Now()
	if report.Outcome == "" {
		report.Outcome = OutcomeSuccess
		if err != nil {
			report.Outcome = OutcomeFailed
			report.Error = err.Error()
		}
	}

	r.mu.Lock()
	if report.Outcome == OutcomeSuccess {
		switch {
		case action.IsPost():
			r.state.LastPost = now
		case action == ActionRecommend:
			r.state.LastRecommendation = now
		case action == ActionNewReleases:
			r.state.LastNewRelease = now
		}
	}
	last := report
	r.last = &last
	r.mu.Unlock()

	if err != nil {
		return report, fmt.Errorf("%s: %w", config.ErrStepFailed, err)
	}

	log.Info(config.MsgCycleDone,
		config.LogKeyOutcome, report.Outcome,
		config.LogKeyDuration, report.Finished.Sub(report.Started).Milliseconds())
	return report, nil
}

// handleImageFailures applies the image retry policy to the result of a
// post step. At most one regeneration step is made per cycle.
func (r *Runner) handleImageFailures(ctx context.Context, log *slog.Logger, report *CycleReport, req StepRequest, text string, err error) (string, error) {
	if !IsImageFailure(text, err) {
		if err == nil {
			r.setRetryCount(0)
		}
		return text, err
	}

	p := r.Policy()
	count := r.bumpRetryCount()
	if count >= p.MaxImageRetries {
		log.Warn(config.MsgImageExhausted,
			config.LogKeyAttempt, count,
			config.LogKeyMaxAttempt, p.MaxImageRetries)
		report.Outcome = OutcomeImageExhausted
		return text, nil
	}

	log.Warn(config.MsgImageRetry,
		config.LogKeyAttempt, count,
		config.LogKeyMaxAttempt, p.MaxImageRetries)

	req.Regenerate = true
	req.Attempt = count + 1
	req.MaxAttempts = p.MaxImageRetries
	text, err = r.step(ctx, report, req)

	if IsImageFailure(text, err) {
		count = r.bumpRetryCount()
		report.Outcome = OutcomeImageFailed
		if count >= p.MaxImageRetries {
			log.Warn(config.MsgImageExhausted,
				config.LogKeyAttempt, count,
				config.LogKeyMaxAttempt, p.MaxImageRetries)
			report.Outcome = OutcomeImageExhausted
		}
		return text, nil
	}
	if err == nil {
		r.setRetryCount(0)
	}
	return text, err
}

func (r *Runner) step(ctx context.Context, report *CycleReport, req StepRequest) (string, error) {
	if r.Instructor != nil {
		req.Instructions = r.Instructor.Instructions(req)
	}
	report.Steps++
	return r.Stepper.Step(ctx, req)
}

func (r *Runner) genres() *GenreRotation {
	if r.Genres == nil {
		r.Genres = &GenreRotation{}
	}
	return r.Genres
}

func (r *Runner) bumpRetryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.ImageRetryCount++
	return r.state.ImageRetryCount
}

func (r *Runner) setRetryCount(n int) {
	r.mu.Lock()
	r.state.ImageRetryCount = n
	r.mu.Unlock()
}

// IsImageFailure reports whether a post step failed because of its image
// URL, looking at both the textual result and the error.
func IsImageFailure(text string, err error) bool {
	if containsMarker(text) {
		return true
	}
	return err != nil && containsMarker(err.Error())
}

func containsMarker(s string) bool {
	for _, m := range config.ImageFailureMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/engine"
	"github.com/tartampluch/go-musicbot/internal/scheduler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedStepper answers each step with the next scripted reply and
// records the requests it saw.
type scriptedStepper struct {
	mu      sync.Mutex
	replies []reply
	calls   []scheduler.StepRequest
}

type reply struct {
	text string
	err  error
}

func (s *scriptedStepper) Step(_ context.Context, req scheduler.StepRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if len(s.replies) == 0 {
		return "done", nil
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r.text, r.err
}

func (s *scriptedStepper) Calls() []scheduler.StepRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduler.StepRequest(nil), s.calls...)
}

// mockStepper is used where exact call expectations matter.
type mockStepper struct {
	mock.Mock
}

func (m *mockStepper) Step(ctx context.Context, req scheduler.StepRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type fixedInstructor struct{}

func (fixedInstructor) Instructions(req scheduler.StepRequest) string {
	return fmt.Sprintf("only %s regenerate=%v", req.Action, req.Regenerate)
}

// postDueState makes a post the next action.
func postDueState() scheduler.State {
	return scheduler.State{LastRecommendation: t0, LastNewRelease: t0, LastPost: t0.Add(-4 * time.Hour)}
}

func newTestRunner(stepper scheduler.Stepper) (*scheduler.Runner, *engine.FakeClock) {
	clock := engine.NewFakeClock(t0)
	r := scheduler.NewRunner(clock, stepper, testPolicy())
	r.Rand = func() float64 { return 0.5 }
	ids := 0
	r.NewID = func() string {
		ids++
		return fmt.Sprintf("cycle-%d", ids)
	}
	return r, clock
}

func TestRunCycle_PostSuccessUpdatesLastPost(t *testing.T) {
	stepper := &scriptedStepper{replies: []reply{{text: "tweet posted"}}}
	r, _ := newTestRunner(stepper)
	st := postDueState()
	st.ImageRetryCount = 2
	r.SetState(st)

	report, err := r.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, scheduler.ActionPost, report.Action)
	assert.Equal(t, scheduler.OutcomeSuccess, report.Outcome)
	assert.Equal(t, 1, report.Steps)
	assert.Equal(t, "cycle-1", report.CycleID)

	snap := r.Snapshot()
	assert.Equal(t, t0, snap.State.LastPost)
	assert.Zero(t, snap.State.ImageRetryCount, "success resets the retry count")
	require.NotNil(t, snap.LastCycle)
	assert.Equal(t, "tweet posted", snap.LastCycle.Result)
}

func TestRunCycle_ImageFailureRetriesOnceWithRegenerate(t *testing.T) {
	stepper := new(mockStepper)
	stepper.On("Step", mock.Anything, mock.MatchedBy(func(req scheduler.StepRequest) bool {
		return req.Action == scheduler.ActionPost && !req.Regenerate
	})).Return("upload failed: invalid image URL", nil).Once()
	stepper.On("Step", mock.Anything, mock.MatchedBy(func(req scheduler.StepRequest) bool {
		return req.Regenerate && req.Attempt == 2 && req.MaxAttempts == 3 &&
			strings.Contains(req.Instructions, "regenerate=true")
	})).Return("tweet posted with new image", nil).Once()

	r, _ := newTestRunner(stepper)
	r.Instructor = fixedInstructor{}
	r.SetState(postDueState())

	report, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	stepper.AssertExpectations(t)

	assert.Equal(t, scheduler.OutcomeSuccess, report.Outcome)
	assert.Equal(t, 2, report.Steps)
	snap := r.Snapshot()
	assert.Zero(t, snap.State.ImageRetryCount)
	assert.Equal(t, t0, snap.State.LastPost)
}

func TestRunCycle_ImageFailureInErrorIsRecognised(t *testing.T) {
	stepper := &scriptedStepper{replies: []reply{
		{err: errors.New("image download refused: 403 Forbidden")},
		{text: "posted"},
	}}
	r, _ := newTestRunner(stepper)
	r.SetState(postDueState())

	report, err := r.RunCycle(context.Background())
	require.NoError(t, err, "image URL failures are not cycle errors")
	assert.Equal(t, scheduler.OutcomeSuccess, report.Outcome)
	assert.Len(t, stepper.Calls(), 2)
}

func TestRunCycle_ImageRetriesExhaustThenPostWithoutImage(t *testing.T) {
	stepper := &scriptedStepper{replies: []reply{{text: "Image URL rejected"}}}
	r, clock := newTestRunner(stepper)
	r.SetState(postDueState())

	// Cycle 1: failure, retry, failure again.
	report, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeImageFailed, report.Outcome)
	assert.Equal(t, 2, report.Steps)
	assert.Equal(t, 2, r.Snapshot().State.ImageRetryCount)
	assert.Equal(t, t0.Add(-4*time.Hour), r.Snapshot().State.LastPost, "no success, no timestamp")

	// Cycle 2: the third failure reaches the cap, no further retry.
	clock.Advance(15 * time.Minute)
	report, err = r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.ActionPost, report.Action)
	assert.Equal(t, scheduler.OutcomeImageExhausted, report.Outcome)
	assert.Equal(t, 1, report.Steps)
	assert.Equal(t, 3, r.Snapshot().State.ImageRetryCount)

	// Cycle 3: text-only post, counter reset.
	stepper.mu.Lock()
	stepper.replies = []reply{{text: "posted text only"}}
	stepper.mu.Unlock()
	clock.Advance(15 * time.Minute)
	report, err = r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.ActionPostNoImage, report.Action)
	assert.Equal(t, scheduler.OutcomeSuccess, report.Outcome)

	snap := r.Snapshot()
	assert.Zero(t, snap.State.ImageRetryCount)
	assert.Equal(t, clock.Now(), snap.State.LastPost)

	// Cycle 4: nothing due, back to the rotation.
	clock.Advance(15 * time.Minute)
	report, err = r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.ActionReply, report.Action)

	calls := stepper.Calls()
	require.Len(t, calls, 5)
	assert.False(t, calls[0].Regenerate)
	assert.True(t, calls[1].Regenerate)
	assert.False(t, calls[2].Regenerate)
	assert.Equal(t, scheduler.ActionPostNoImage, calls[3].Action)
}

func TestRunCycle_ErrorLeavesTimestamps(t *testing.T) {
	stepper := &scriptedStepper{replies: []reply{{err: errors.New("agent unavailable")}}}
	r, _ := newTestRunner(stepper)

	report, err := r.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrStepFailed)
	assert.Equal(t, scheduler.ActionRecommend, report.Action)
	assert.Equal(t, scheduler.OutcomeFailed, report.Outcome)
	assert.Equal(t, "agent unavailable", report.Error)
	assert.True(t, r.Snapshot().State.LastRecommendation.IsZero())
	assert.Len(t, stepper.Calls(), 1, "non-image errors are never retried in place")
}

func TestRunCycle_GenreAttached(t *testing.T) {
	stepper := &scriptedStepper{}
	r, clock := newTestRunner(stepper)
	r.Genres = &scheduler.GenreRotation{IntN: func(int) int { return 0 }}

	_, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = r.RunCycle(context.Background())
	require.NoError(t, err)

	calls := stepper.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, scheduler.ActionRecommend, calls[0].Action)
	require.NotNil(t, calls[0].Genre)
	assert.Equal(t, "Classical", calls[0].Genre.Genre)
	assert.Equal(t, scheduler.ActionNewReleases, calls[1].Action)
	require.NotNil(t, calls[1].Genre)
}

func TestRunCycle_ResetsGuard(t *testing.T) {
	r, _ := newTestRunner(nil)
	r.Stepper = stepperFunc(func(ctx context.Context, req scheduler.StepRequest) (string, error) {
		require.NoError(t, r.Guard.Claim(config.ToolPostTweet))
		return "ok", nil
	})

	_, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = r.RunCycle(context.Background())
	require.NoError(t, err, "each cycle gets a fresh claim")
}

type stepperFunc func(ctx context.Context, req scheduler.StepRequest) (string, error)

func (f stepperFunc) Step(ctx context.Context, req scheduler.StepRequest) (string, error) {
	return f(ctx, req)
}

func TestRunCycle_OneStepPerCycle(t *testing.T) {
	stepper := &scriptedStepper{}
	r, clock := newTestRunner(stepper)

	const cycles = 40
	posts := 0
	for i := 0; i < cycles; i++ {
		before := r.Snapshot().State.LastPost
		report, err := r.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Steps)
		if report.Action.IsPost() {
			posts++
		} else {
			assert.Equal(t, before, r.Snapshot().State.LastPost)
		}
		clock.Advance(15 * time.Minute)
	}
	assert.Len(t, stepper.Calls(), cycles)
	// 10 hours of cycles with a 3 hour post interval.
	assert.Equal(t, 4, posts)
}

func TestRun_BackoffThenGiveUp(t *testing.T) {
	stepper := &scriptedStepper{replies: []reply{{err: errors.New("boom")}}}
	r, clock := newTestRunner(stepper)
	p := testPolicy()
	p.MaxConsecutiveFailures = 3
	r.UpdatePolicy(p)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	clock.WaitForTimers(1)
	next, ok := clock.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute+15*time.Second), next)
	clock.Advance(time.Minute + 15*time.Second)

	clock.WaitForTimers(1)
	next, _ = clock.NextDeadline()
	assert.Equal(t, clock.Now().Add(2*time.Minute+15*time.Second), next)
	clock.Advance(2*time.Minute + 15*time.Second)

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, scheduler.ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, stepper.Calls(), 3)
	assert.Equal(t, 3, r.Snapshot().ConsecutiveFailures)
}

func TestRun_SuccessResetsFailuresAndStopsOnCancel(t *testing.T) {
	stepper := &scriptedStepper{replies: []reply{{err: errors.New("flaky")}, {text: "ok"}}}
	r, clock := newTestRunner(stepper)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// First cycle fails and backs off.
	clock.WaitForTimers(1)
	assert.Equal(t, 1, r.Snapshot().ConsecutiveFailures)
	clock.Advance(time.Minute + 15*time.Second)

	// Second cycle succeeds and the regular interval applies.
	clock.WaitForTimers(1)
	assert.Zero(t, r.Snapshot().ConsecutiveFailures)
	next, _ := clock.NextDeadline()
	assert.Equal(t, clock.Now().Add(15*time.Minute), next)

	cancel()
	require.NoError(t, <-done)
	assert.Len(t, stepper.Calls(), 2)
}

func TestRun_PolicyUpdateAppliesToNextInterval(t *testing.T) {
	stepper := &scriptedStepper{}
	r, clock := newTestRunner(stepper)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	clock.WaitForTimers(1)
	p := testPolicy()
	p.CycleInterval = 5 * time.Minute
	r.UpdatePolicy(p)
	clock.Advance(15 * time.Minute)

	clock.WaitForTimers(1)
	next, _ := clock.NextDeadline()
	assert.Equal(t, clock.Now().Add(5*time.Minute), next)

	cancel()
	require.NoError(t, <-done)
}

func TestIsImageFailure(t *testing.T) {
	for _, marker := range config.ImageFailureMarkers {
		assert.True(t, scheduler.IsImageFailure("prefix "+marker+" suffix", nil), marker)
		assert.True(t, scheduler.IsImageFailure("", errors.New(marker)), marker)
	}
	assert.False(t, scheduler.IsImageFailure("tweet posted", nil))
	assert.False(t, scheduler.IsImageFailure("", errors.New("rate limited")))
}

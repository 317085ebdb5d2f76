package scheduler

import (
	"time"

	"github.com/tartampluch/go-musicbot/internal/config"
)

// Policy holds the tunables of the scheduler and the runner. It is a value
// type so a reload can swap it atomically between cycles.
type Policy struct {
	CycleInterval time.Duration
	PostInterval  time.Duration

	RecommendationEnabled  bool
	RecommendationInterval time.Duration
	NewReleasesEnabled     bool
	NewReleasesInterval    time.Duration

	// MaxImageRetries is the number of detected image failures after which
	// the next post goes out without an image.
	MaxImageRetries int

	Backoff Backoff

	// MaxConsecutiveFailures stops Run after that many failed cycles in a
	// row. Zero retries forever.
	MaxConsecutiveFailures int
}

// PolicyFromSettings maps the YAML settings onto a Policy.
func PolicyFromSettings(s config.Settings) Policy {
	return Policy{
		CycleInterval:          s.Schedule.CycleInterval,
		PostInterval:           s.Schedule.PostInterval,
		RecommendationEnabled:  s.Schedule.Recommendation.Enabled,
		RecommendationInterval: s.Schedule.Recommendation.Interval,
		NewReleasesEnabled:     s.Schedule.NewReleases.Enabled,
		NewReleasesInterval:    s.Schedule.NewReleases.Interval,
		MaxImageRetries:        s.Schedule.MaxImageRetries,
		Backoff: Backoff{
			Base:   s.Backoff.Base,
			Max:    s.Backoff.Max,
			Jitter: s.Backoff.Jitter,
		},
		MaxConsecutiveFailures: s.Backoff.MaxConsecutiveFailures,
	}
}

// DefaultPolicy is PolicyFromSettings(config.Default()).
func DefaultPolicy() Policy {
	return PolicyFromSettings(config.Default())
}

// State is the scheduler bookkeeping. Zero timestamps mean the action was
// never performed and is therefore due.
type State struct {
	LastPost           time.Time `json:"lastPost"`
	LastRecommendation time.Time `json:"lastRecommendation"`
	LastNewRelease     time.Time `json:"lastNewRelease"`
	RotationIndex      int       `json:"rotationIndex"`
	ImageRetryCount    int       `json:"imageRetryCount"`
}

func due(now, last time.Time, interval time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= interval
}

// NextAction picks exactly one action for the cycle starting at now.
// Priority: recommend, new releases, post (or post without image once image
// retries are exhausted), then the filler rotation. Advancing the rotation
// index is the only change it makes to st; resetting ImageRetryCount after a
// PostNoImage pick is up to the caller.
func NextAction(now time.Time, st *State, p Policy) ActionKind {
	switch {
	case p.RecommendationEnabled && due(now, st.LastRecommendation, p.RecommendationInterval):
		return ActionRecommend
	case p.NewReleasesEnabled && due(now, st.LastNewRelease, p.NewReleasesInterval):
		return ActionNewReleases
	case due(now, st.LastPost, p.PostInterval):
		if st.ImageRetryCount >= p.MaxImageRetries {
			return ActionPostNoImage
		}
		return ActionPost
	}

	idx := st.RotationIndex % len(Rotation)
	if idx < 0 {
		idx += len(Rotation)
	}
	st.RotationIndex = (idx + 1) % len(Rotation)
	return Rotation[idx]
}

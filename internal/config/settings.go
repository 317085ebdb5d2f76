package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings models the YAML settings file. Zero values are replaced by the
// package defaults in Default, so a partial file only overrides what it names.
type Settings struct {
	Timezone string          `yaml:"timezone"`
	Schedule ScheduleSection `yaml:"schedule"`
	Backoff  BackoffSection  `yaml:"backoff"`
	Ledger   LedgerSection   `yaml:"ledger"`
	Catalog  CatalogSection  `yaml:"catalog"`
	Agent    AgentSection    `yaml:"agent"`
	Videos   VideoSection    `yaml:"videos"`
	Server   ServerSection   `yaml:"server"`
}

// ScheduleSection holds the action scheduler intervals.
type ScheduleSection struct {
	CycleInterval   time.Duration  `yaml:"cycle_interval"`
	PostInterval    time.Duration  `yaml:"post_interval"`
	MaxImageRetries int            `yaml:"max_image_retries"`
	Recommendation  FeatureSection `yaml:"recommendation"`
	NewReleases     FeatureSection `yaml:"new_releases"`
}

// FeatureSection toggles an optional interval-driven action.
type FeatureSection struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// BackoffSection configures the cycle-level retry policy.
type BackoffSection struct {
	Base                   time.Duration `yaml:"base"`
	Max                    time.Duration `yaml:"max"`
	Jitter                 time.Duration `yaml:"jitter"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
}

// LedgerSection configures the approval ledger sweep.
type LedgerSection struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// CatalogSection locates the optional reference dataset of known dates.
type CatalogSection struct {
	Mode          string `yaml:"mode"` // SourceModeLocal, SourceModeWeb or empty
	AlbumsPath    string `yaml:"albums_path"`
	MusiciansPath string `yaml:"musicians_path"`
	AlbumsURL     string `yaml:"albums_url"`
	MusiciansURL  string `yaml:"musicians_url"`
	WebUser       string `yaml:"web_user"`
}

// AgentSection configures the language-model agent.
type AgentSection struct {
	Model string `yaml:"model"`
	// ImageModel generates post images. Empty disables image generation.
	ImageModel string `yaml:"image_model"`
	MaxTurns   int    `yaml:"max_turns"`
	Language   string `yaml:"language"`
}

// VideoSection configures the music video catalog used for recommendations.
type VideoSection struct {
	Region     string `yaml:"region"`
	MaxResults int    `yaml:"max_results"`
}

// ServerSection configures the calendar/status HTTP feed.
type ServerSection struct {
	Enabled      bool   `yaml:"enabled"`
	Port         string `yaml:"port"`
	CalendarDays int    `yaml:"calendar_days"`
}

// Default returns the settings used when no file is provided.
func Default() Settings {
	return Settings{
		Timezone: DefaultTimezone,
		Schedule: ScheduleSection{
			CycleInterval:   DefaultCycleInterval,
			PostInterval:    DefaultPostInterval,
			MaxImageRetries: DefaultMaxImageRetries,
			Recommendation:  FeatureSection{Enabled: true, Interval: DefaultRecommendationInterval},
			NewReleases:     FeatureSection{Enabled: true, Interval: DefaultNewReleaseInterval},
		},
		Backoff: BackoffSection{
			Base:                   DefaultBackoffBase,
			Max:                    DefaultBackoffMax,
			Jitter:                 DefaultBackoffJitter,
			MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		},
		Ledger: LedgerSection{SweepInterval: DefaultLedgerSweepInterval},
		Agent: AgentSection{
			Model:      DefaultAgentModel,
			ImageModel: DefaultImageModel,
			MaxTurns:   DefaultAgentMaxTurns,
			Language:   DefaultLanguage,
		},
		Videos: VideoSection{
			Region:     DefaultVideoRegion,
			MaxResults: DefaultVideoResults,
		},
		Server: ServerSection{
			Enabled:      true,
			Port:         DefaultPort,
			CalendarDays: DefaultCalendarDays,
		},
	}
}

// Load reads the settings file at path on top of Default. An empty path
// returns the defaults.
func Load(path string) (Settings, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", ErrSettingsRead, err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes YAML settings from r on top of Default and validates them.
func Parse(r io.Reader) (Settings, error) {
	s := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("%s: %w", ErrSettingsDecode, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the scheduler cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if s.Schedule.CycleInterval <= 0 {
		errs = append(errs, errors.New("schedule.cycle_interval must be positive"))
	}
	if s.Schedule.PostInterval <= 0 {
		errs = append(errs, errors.New("schedule.post_interval must be positive"))
	}
	if s.Schedule.MaxImageRetries < 1 {
		errs = append(errs, errors.New("schedule.max_image_retries must be at least 1"))
	}
	if s.Schedule.Recommendation.Enabled && s.Schedule.Recommendation.Interval <= 0 {
		errs = append(errs, errors.New("schedule.recommendation.interval must be positive"))
	}
	if s.Schedule.NewReleases.Enabled && s.Schedule.NewReleases.Interval <= 0 {
		errs = append(errs, errors.New("schedule.new_releases.interval must be positive"))
	}
	if s.Backoff.Base <= 0 || s.Backoff.Max < s.Backoff.Base {
		errs = append(errs, errors.New("backoff.base must be positive and not exceed backoff.max"))
	}
	if s.Backoff.Jitter < 0 || s.Backoff.MaxConsecutiveFailures < 0 {
		errs = append(errs, errors.New("backoff.jitter and backoff.max_consecutive_failures must not be negative"))
	}
	if s.Ledger.SweepInterval <= 0 {
		errs = append(errs, errors.New("ledger.sweep_interval must be positive"))
	}
	switch s.Catalog.Mode {
	case SourceModeNone:
	case SourceModeLocal:
		if s.Catalog.AlbumsPath == "" && s.Catalog.MusiciansPath == "" {
			errs = append(errs, errors.New(ErrLocalPathEmpty))
		}
	case SourceModeWeb:
		if s.Catalog.AlbumsURL == "" && s.Catalog.MusiciansURL == "" {
			errs = append(errs, errors.New(ErrWebURLEmpty))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: %q", ErrModeUnsupport, s.Catalog.Mode))
	}
	if s.Videos.MaxResults < 1 || s.Videos.MaxResults > MaxVideoResults {
		errs = append(errs, fmt.Errorf("videos.max_results must be between 1 and %d", MaxVideoResults))
	}
	if s.Agent.MaxTurns < 1 {
		errs = append(errs, errors.New("agent.max_turns must be at least 1"))
	}
	if !slices.Contains(SupportedLanguages, s.Agent.Language) {
		errs = append(errs, fmt.Errorf("agent.language %q is not supported", s.Agent.Language))
	}
	if s.Server.Enabled && s.Server.Port == "" {
		errs = append(errs, errors.New(ErrPortRequired))
	}
	if _, err := s.Location(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", ErrSettingsInvalid, errors.Join(errs...))
	}
	return nil
}

// Location resolves the timezone used to decide what "today" is.
func (s Settings) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == DefaultTimezone {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", ErrTimezone, s.Timezone, err)
	}
	return loc, nil
}

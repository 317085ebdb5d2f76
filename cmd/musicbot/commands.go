package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/tartampluch/go-musicbot/internal/agent"
	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/engine"
	"github.com/tartampluch/go-musicbot/internal/prompt"
	"github.com/tartampluch/go-musicbot/internal/scheduler"
	"github.com/tartampluch/go-musicbot/internal/server"
	"golang.org/x/sync/errgroup"
)

// app carries what the commands share.
type app struct {
	configPath string
	debug      bool

	clock       engine.Clock
	stdout      io.Writer
	initLogging func(debug bool) io.Closer
	logCloser   io.Closer
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close() // Best effort close
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           config.BinaryName,
		Short:         config.CmdRootShort,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if a.initLogging != nil {
				a.logCloser = a.initLogging(a.debug)
			}
		},
	}
	root.SetVersionTemplate(versionLine())
	root.SetOut(a.stdout)
	root.PersistentFlags().StringVar(&a.configPath, config.FlagConfig, "", config.FlagDescConfig)
	root.PersistentFlags().BoolVar(&a.debug, config.FlagDebug, false, config.FlagDescDebug)

	root.AddCommand(newRunCmd(a), newCheckCmd(a), newCalendarCmd(a))
	return root
}

// -----------------------------------------------------------------------------
// Shared wiring
// -----------------------------------------------------------------------------

// environment is what every command builds from the settings file.
type environment struct {
	settings config.Settings
	catalog  *engine.Catalog
	ledger   *engine.Ledger
	verifier *engine.Verifier
}

func (a *app) load(ctx context.Context) (*environment, error) {
	settings, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	loc, err := settings.Location()
	if err != nil {
		return nil, err
	}

	src := engine.CatalogSource{
		Mode:          settings.Catalog.Mode,
		AlbumsPath:    settings.Catalog.AlbumsPath,
		MusiciansPath: settings.Catalog.MusiciansPath,
		AlbumsURL:     settings.Catalog.AlbumsURL,
		MusiciansURL:  settings.Catalog.MusiciansURL,
		WebUser:       settings.Catalog.WebUser,
	}
	if src.Mode == config.SourceModeWeb && src.WebUser != "" {
		// A missing password is allowed: the catalog may be public.
		src.WebPass, _ = config.Credential(config.KeyringUserCatalog, config.EnvCatalogPassword)
	}
	loader := &engine.CatalogLoader{Fetcher: engine.NewHTTPFetcher()}
	catalog, err := loader.Load(ctx, src)
	if err != nil {
		return nil, err
	}

	ledger := engine.NewLedger(a.clock)
	ledger.SweepInterval = settings.Ledger.SweepInterval

	verifier := engine.NewVerifier(a.clock, ledger)
	verifier.Catalog = catalog
	verifier.SetLocation(loc)

	return &environment{
		settings: settings,
		catalog:  catalog,
		ledger:   ledger,
		verifier: verifier,
	}, nil
}

func (e *environment) calendar(now time.Time, days int) ([]byte, error) {
	return engine.BuildCalendar(now, e.catalog.Upcoming(now.In(e.verifier.TimeZone()), days))
}

// apply pushes reloaded settings into the running components. An invalid
// timezone keeps the current one.
func (e *environment) apply(s config.Settings, runner *scheduler.Runner) {
	if runner != nil {
		runner.UpdatePolicy(scheduler.PolicyFromSettings(s))
	}

	log := slog.With(config.LogKeyComponent, config.CompMain)
	if loc, err := s.Location(); err != nil {
		log.Warn(config.MsgSettingsBad, config.LogKeyError, err)
	} else if loc.String() != e.verifier.TimeZone().String() {
		e.verifier.SetLocation(loc)
		log.Info(config.MsgTimezoneUpdated, config.LogKeyTimezone, loc.String())
	}

	if s.Ledger.SweepInterval != e.ledger.Interval() {
		e.ledger.SetSweepInterval(s.Ledger.SweepInterval)
		log.Info(config.MsgSweepUpdated, config.LogKeyInterval, e.ledger.Interval())
	}
}

// registerMedia adds the optional image and video tools. Each one is left
// out when its model or API key is not configured.
func (e *environment) registerMedia(tools *agent.Registry, models agent.ImageModel, gallery *agent.Gallery, clock engine.Clock) {
	log := slog.With(config.LogKeyComponent, config.CompMain)

	if e.settings.Agent.ImageModel != "" {
		agent.RegisterImages(tools, &agent.ImageTools{
			Generator: &agent.GeminiImager{Model: models, ModelName: e.settings.Agent.ImageModel},
			Gallery:   gallery,
		})
	} else {
		log.Info(config.MsgImagesDisabled)
	}

	key, err := config.Credential(config.KeyringUserYouTube, config.EnvYouTubeAPIKey)
	if err != nil {
		log.Info(config.MsgVideosDisabled)
		return
	}
	agent.RegisterVideos(tools, &agent.VideoTools{
		Catalog:    agent.NewYouTubeCatalog(key, clock),
		Region:     e.settings.Videos.Region,
		MaxResults: e.settings.Videos.MaxResults,
	})
}

// -----------------------------------------------------------------------------
// run
// -----------------------------------------------------------------------------

// statusReport is served on the status route.
type statusReport struct {
	scheduler.Status
	Approvals int `json:"approvals"`
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   config.CmdRunUse,
		Short: config.CmdRunShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logStartupInfo()
			if err := a.run(cmd.Context()); err != nil {
				return err
			}
			slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
			return nil
		},
	}
}

// run wires the bot and blocks until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context) error {
	env, err := a.load(ctx)
	if err != nil {
		return err
	}
	albums, musicians := env.catalog.Len()
	slog.Info(config.MsgCatalogLoaded,
		config.LogKeyComponent, config.CompMain,
		config.LogKeyMode, env.settings.Catalog.Mode,
		config.LogKeyAlbums, albums,
		config.LogKeyMusicians, musicians,
	)

	apiKey, err := config.Credential(config.KeyringUserGemini, config.EnvGeminiAPIKey)
	if err != nil {
		return err
	}
	client, err := agent.NewGeminiClient(ctx, apiKey)
	if err != nil {
		return err
	}

	runner := scheduler.NewRunner(a.clock, nil, scheduler.PolicyFromSettings(env.settings))
	runner.Instructor = prompt.NewBuilder(env.settings.Agent.Language)

	gallery := &agent.Gallery{}
	tools := agent.NewRegistry()
	agent.RegisterVerification(tools, env.verifier)
	agent.RegisterSocial(tools, &agent.Social{
		Publisher: agent.NewLogPublisher(),
		Verifier:  env.verifier,
		Guard:     runner.Guard,
		Images:    agent.NewImageDownloader(),
		Gallery:   gallery,
	})
	env.registerMedia(tools, client.Models, gallery, a.clock)
	runner.Stepper = agent.NewGeminiAgent(client.Models, env.settings.Agent.Model, tools, runner.Guard, env.settings.Agent.MaxTurns)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return env.ledger.RunSweeper(gctx) })

	if env.settings.Server.Enabled {
		srv := server.NewFeedServer(env.settings.Server.Port, func() any {
			return statusReport{Status: runner.Snapshot(), Approvals: env.ledger.Len()}
		})
		days := env.settings.Server.CalendarDays
		g.Go(func() error { return srv.Start(gctx) })
		g.Go(func() error {
			return srv.RunRefresher(gctx, a.clock, config.DefaultICalRefresh, func() ([]byte, error) {
				return env.calendar(a.clock.Now(), days)
			})
		})
	}

	if a.configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, a.configPath, func(s config.Settings) {
				env.apply(s, runner)
			})
		})
	}

	return g.Wait()
}

// -----------------------------------------------------------------------------
// check
// -----------------------------------------------------------------------------

func newCheckCmd(a *app) *cobra.Command {
	var (
		subject, artist, kind string
		asJSON                bool
	)
	cmd := &cobra.Command{
		Use:   config.CmdCheckUse,
		Short: config.CmdCheckShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			out := env.verifier.Verify(engine.VerificationRequest{
				Kind:         engine.SubjectKind(kind),
				DateText:     args[0],
				Subject:      subject,
				Counterparty: artist,
			}, false)
			return printCheck(cmd.OutOrStdout(), args[0], subject, out, asJSON)
		},
	}
	cmd.Flags().StringVar(&subject, config.FlagSubject, "", config.FlagDescSubject)
	cmd.Flags().StringVar(&artist, config.FlagArtist, "", config.FlagDescArtist)
	cmd.Flags().StringVar(&kind, config.FlagKind, config.SubjectAlbum, config.FlagDescKind)
	cmd.Flags().BoolVar(&asJSON, config.FlagJSON, false, config.FlagDescJSON)
	return cmd
}

func printCheck(w io.Writer, date, subject string, out engine.VerificationOutcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	if subject == "" {
		subject = date
	}
	var err error
	if out.Approved {
		_, err = fmt.Fprintf(w, config.FormatCheckMatch, date, out.Ordinal, subject, out.TodayDate)
	} else {
		_, err = fmt.Fprintf(w, config.FormatCheckMiss, date, out.Reason, out.TodayDate)
	}
	return err
}

// -----------------------------------------------------------------------------
// calendar
// -----------------------------------------------------------------------------

func newCalendarCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   config.CmdCalendarUse,
		Short: config.CmdCalendarShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed(config.FlagDays) {
				days = env.settings.Server.CalendarDays
			}
			data, err := env.calendar(a.clock.Now(), days)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().IntVar(&days, config.FlagDays, config.DefaultCalendarDays, config.FlagDescDays)
	return cmd
}

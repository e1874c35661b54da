package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tricejer41/FirstLight/internal/config"
	"github.com/Tricejer41/FirstLight/internal/service"
	"github.com/Tricejer41/FirstLight/internal/storage"
	"github.com/Tricejer41/FirstLight/internal/stream"
	"github.com/Tricejer41/FirstLight/internal/tns"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// RunOptions carry per-invocation overrides for the daemon.
type RunOptions struct {
	Topics      []string
	DBPath      string
	DryRun      bool
	PollTimeout time.Duration
	FromDir     string
}

func (a *App) openStore(path string) (*storage.Store, error) {
	if path == "" {
		path = a.Config.Database.Path
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newConsumer picks the alert source. The live broker consumer is an
// external collaborator behind stream.Consumer; the built-in option is
// directory replay.
func (a *App) newConsumer(opts RunOptions) (stream.Consumer, error) {
	if opts.FromDir != "" {
		topic := "replay"
		if len(opts.Topics) > 0 {
			topic = opts.Topics[0]
		}
		return stream.NewDirConsumer(opts.FromDir, topic, a.Logger)
	}
	return nil, errors.New("no alert source: pass --from-dir, or embed the pipeline with your broker consumer")
}

// Run executes the long-running pipeline daemon.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.PollTimeout > 0 {
		a.Config.Stream.PollTimeout = opts.PollTimeout
	}
	if len(opts.Topics) > 0 {
		a.Config.Stream.Topics = opts.Topics
	}
	if opts.DBPath != "" {
		a.Config.Database.Path = opts.DBPath
	}

	consumer, err := a.newConsumer(opts)
	if err != nil {
		return err
	}
	defer consumer.Close()

	store, err := a.openStore(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := tns.NewClient(a.Config.TNS, a.Logger)
	if !registry.Enabled() {
		a.Logger.Warn().Msg("registry credentials missing; candidates will be audited but never submitted")
	}
	resolver := tns.NewResolver(a.Config.Resolver, a.Logger)

	svc := service.New(a.Config, consumer, store, registry, resolver, opts.DryRun, a.Logger)

	a.Logger.Info().
		Strs("topics", a.Config.Stream.Topics).
		Bool("dry_run", opts.DryRun).
		Str("db", a.Config.Database.Path).
		Msg("starting pipeline")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("pipeline terminated with error")
		return fmt.Errorf("pipeline: %w", err)
	}

	a.Logger.Info().Msg("pipeline stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting decision history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

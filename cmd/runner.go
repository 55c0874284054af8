package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/portalsync/internal/repositories"
	"github.com/desertthunder/portalsync/internal/services"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/desertthunder/portalsync/internal/syncer"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Portal, session, journal and engine are built on first use so commands like
// "setup config" work without a session or database.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	progress   io.Writer
	now        func() time.Time

	sessions  *services.SessionStore
	portal    *services.PortalClient
	directory *services.PortalDirectory
	db        *sql.DB
	runs      *repositories.RunRepository
	engine    *syncer.Engine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Progress   io.Writer
	Clock      func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Progress == nil {
		opts.Progress = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		progress:   opts.Progress,
		now:        opts.Clock,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, sessionCommand, homeworkCommand, documentsCommand, watchCommand, serveCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the config file and applies logging flags.
//
// A missing file leaves the defaults in place so "setup config" can create it.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if _, err := os.Stat(path); path != "" && err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
		r.configPath = path
	} else if cmd.IsSet("config") {
		r.logger.Warn("config file not found, using defaults", "path", path)
	}

	level := r.config.Log.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	if level != "" {
		ll, err := shared.ParseLogLevel(level)
		if err != nil {
			return ctx, err
		}
		shared.SetLogLevel(r.logger, ll)
	}
	return ctx, nil
}

// SetLogger replaces the logger, e.g. with a file logger while a terminal UI owns the screen.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the journal database.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db, r.runs = nil, nil
	return err
}

// Sessions returns the session store, loading the session file on first use.
func (r *Runner) Sessions() *services.SessionStore {
	if r.sessions != nil {
		return r.sessions
	}
	r.sessions = services.NewSessionStore(r.config.Portal.SessionPath, r.logger)
	if _, err := r.sessions.Load(); err != nil {
		r.logger.Debug("no usable session", "path", r.config.Portal.SessionPath, "err", err)
	}
	return r.sessions
}

// Portal returns the authenticated portal client.
func (r *Runner) Portal() *services.PortalClient {
	if r.portal == nil {
		r.portal = services.NewPortalClient(r.config.Portal, r.Sessions(), r.httpClient, r.logger)
	}
	return r.portal
}

// Journal opens the run journal. Failures are logged and leave recording off.
func (r *Runner) Journal() *repositories.RunRepository {
	if r.runs != nil {
		return r.runs
	}
	db, err := shared.OpenJournal(r.config.Database)
	if err != nil {
		r.logger.Warn("run journal unavailable", "path", r.config.Database.Path, "err", err)
		return nil
	}
	r.db = db
	r.runs = repositories.NewRunRepository(db)
	return r.runs
}

// Engine builds the sync engine on first use.
func (r *Runner) Engine() *syncer.Engine {
	if r.engine != nil {
		return r.engine
	}

	portal := r.Portal()
	r.directory = services.NewPortalDirectory(portal, r.config.Sync.DirectoryMaxAge.Duration, r.logger)

	var recorder syncer.Recorder
	if runs := r.Journal(); runs != nil {
		recorder = runs
	}

	r.engine = syncer.NewEngine(syncer.EngineOpts{
		Auth:      r.Sessions(),
		Directory: r.directory,
		Fetcher:   portal,
		Config:    r.config.Sync,
		Logger:    r.logger,
		Recorder:  recorder,
		Clock:     r.now,
	})
	r.engine.OnSessionExpired(r.directory.Invalidate)
	return r.engine
}

// requireSession fails fast with a hint when no session has been imported.
func (r *Runner) requireSession() error {
	if r.Sessions().Current() == nil {
		return fmt.Errorf("%w: run 'psync session import' first", shared.ErrMissingSession)
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// note writes to the progress stream, keeping stdout clean for piped output.
func (r *Runner) note(format string, args ...any) {
	fmt.Fprintf(r.progress, format+"\n", args...)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, shared.ErrNotImplemented):
		return 0
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrSessionExpired), errors.Is(err, shared.ErrMissingSession):
		return 3
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidConfig), errors.Is(err, shared.ErrMissingConfig):
		return 2
	default:
		return 1
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ernyzasxash/clientt/internal/config"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/internal/launcher"
	"github.com/ernyzasxash/clientt/internal/license"
	"github.com/ernyzasxash/clientt/internal/security"
)

// LicenseSession is the part of license.Session the launcher drives
type LicenseSession interface {
	VerifyAsync(ctx context.Context, key string) <-chan license.Outcome
	Apply(ctx context.Context, out license.Outcome) (license.State, error)
	StartHeartbeat(key string) error
	Verified() bool
	Key() string
	Close() error
}

// GameProcess is a running engine
type GameProcess interface {
	Done() <-chan struct{}
	Stop() error
}

// LaunchFunc starts the engine with the verified key
type LaunchFunc func(ctx context.Context, key string, verified bool) (GameProcess, error)

// LauncherOptions are the command line overrides of the launcher
type LauncherOptions struct {
	ConfigPath string
	// Key is verified instead of the stored key, without prompting first.
	Key       string
	ServerURL string
	// Forget clears the stored key before authorizing.
	Forget bool
	In     io.Reader
	Out    io.Writer
}

// LauncherDeps wires a LauncherApplication. Tests construct it directly.
type LauncherDeps struct {
	Config  config.LauncherConfig
	Session LicenseSession
	Store   license.KeyStore
	Launch  LaunchFunc
	Prompt  Prompter
	Notices <-chan license.Notice
	Out     io.Writer
	Logger  *slog.Logger
	// Key is tried before the stored key
	Key string
	// Forget clears the stored key so the player is asked for a new one
	Forget bool
	// Shutdown runs after the session is closed
	Shutdown func(ctx context.Context) error
}

// noticeGrace bounds the wait for a disconnect notice after the state change
const noticeGrace = time.Second

// LauncherApplication is the foreground control flow of the launcher. It
// owns the session: every state change happens on the goroutine running
// Run, and the session is closed on every exit path.
type LauncherApplication struct {
	deps   LauncherDeps
	logger *slog.Logger
}

// NewLauncherApplication loads configuration and builds the launcher from it
func NewLauncherApplication(opts LauncherOptions) (*LauncherApplication, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.ServerURL != "" {
		cfg.Launcher.ServerURL = opts.ServerURL
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := license.NewMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create license metrics: %w", err)
	}

	probe := security.NewDeviceProbe()
	store := license.NewFileKeyStore(cfg.Paths.PrefsFile,
		security.NewSealer(probe.Fingerprint(), security.DefaultEncryptionConfig()), logger)

	pinner := security.NewCertificatePinner(cfg.Launcher.CertPins)
	httpClient := &http.Client{
		Timeout:   cfg.Launcher.RequestTimeout,
		Transport: pinner.WrapTransport(http.DefaultTransport.(*http.Transport).Clone()),
	}
	server := license.NewHTTPClient(cfg.Launcher.ServerURL, httpClient, cfg.Launcher.RequestTimeout, logger)

	notices := make(chan license.Notice, 1)
	session, err := license.NewSession(license.Options{
		Server:            server,
		Store:             store,
		Device:            probe,
		CodeHash:          security.ExecutableCodeHash(),
		HeartbeatInterval: cfg.Launcher.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Launcher.HeartbeatTimeout,
		Notifier:          ForwardNotices(notices),
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create license session: %w", err)
	}

	game := launcher.NewFromConfig(cfg.Launcher, logger)

	logger.Info("launcher starting",
		slog.String("server_url", cfg.Launcher.ServerURL),
		slog.String("prefs_file", store.Path()),
		slog.Bool("cert_pinning", pinner.Enabled()),
		slog.Bool("stop_game_on_disconnect", cfg.Launcher.StopGameOnDisconnect))

	return NewLauncherWithDeps(LauncherDeps{
		Config:  cfg.Launcher,
		Session: session,
		Store:   store,
		Launch:  ProcessLauncher(game),
		Prompt:  NewConsole(opts.In, opts.Out),
		Notices: notices,
		Out:     opts.Out,
		Logger:  logger,
		Key:     opts.Key,
		Forget:  opts.Forget,
		Shutdown: func(ctx context.Context) error {
			err := providers.Shutdown(ctx)
			if closeErr := infrastructure.CloseLogFile(); closeErr != nil && err == nil {
				err = closeErr
			}
			return err
		},
	}), nil
}

// NewLauncherWithDeps creates a LauncherApplication from explicit parts
func NewLauncherWithDeps(deps LauncherDeps) *LauncherApplication {
	if deps.Logger == nil {
		deps.Logger = infrastructure.GetLogger()
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	return &LauncherApplication{
		deps:   deps,
		logger: deps.Logger.With(slog.String("component", "launcher_app")),
	}
}

// ForwardNotices returns a Notifier that hands notices to ch without
// blocking the heartbeat worker. A full channel drops the notice; only one
// disconnect can happen per worker.
func ForwardNotices(ch chan<- license.Notice) license.Notifier {
	return license.NotifierFunc(func(n license.Notice) {
		select {
		case ch <- n:
		default:
		}
	})
}

// ProcessLauncher adapts a launcher.Launcher to LaunchFunc
func ProcessLauncher(l *launcher.Launcher) LaunchFunc {
	return func(ctx context.Context, key string, verified bool) (GameProcess, error) {
		p, err := l.Launch(ctx, key, verified)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Run authorizes, starts the heartbeat, launches the game and waits for it
// to exit. SIGINT and SIGTERM stop the game.
func (a *LauncherApplication) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.close()

	if a.deps.Forget && a.deps.Store != nil {
		if err := a.deps.Store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear stored key: %w", err)
		}
	}

	message := ""
	for {
		if err := a.authorize(ctx, message); err != nil {
			return err
		}
		if err := a.deps.Session.StartHeartbeat(""); err != nil {
			return fmt.Errorf("failed to start heartbeat: %w", err)
		}
		if a.deps.Session.Verified() {
			break
		}

		// the immediate first beat already failed
		a.logger.WarnContext(ctx, "heartbeat failed before launch")
		a.discardNotice(ctx)
		message = license.MsgNoServerConnection
	}

	proc, err := a.deps.Launch(ctx, a.deps.Session.Key(), a.deps.Session.Verified())
	if err != nil {
		a.say(license.UserMessage(err))
		return err
	}

	return a.supervise(ctx, proc)
}

// authorize verifies the command line or stored key, then prompts until a
// key is accepted. A non-empty message skips straight to the prompt. Only
// input errors and cancellation end the loop.
func (a *LauncherApplication) authorize(ctx context.Context, message string) error {
	key := ""
	if message == "" {
		key = a.deps.Key
	}
	if key == "" && message == "" && a.deps.Store != nil {
		stored, err := a.deps.Store.Load(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "failed to read stored key", slog.String("error", err.Error()))
		}
		key = stored
	}

	for {
		if key == "" {
			var err error
			key, err = a.deps.Prompt.PromptKey(ctx, message)
			if err != nil {
				return err
			}
		}

		state, err := a.verify(ctx, key)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if state == license.StateVerified {
			a.say(license.UserMessage(nil))
			return nil
		}

		message = license.UserMessage(err)
		key = ""
	}
}

// verify runs the check off this goroutine and applies the outcome here
func (a *LauncherApplication) verify(ctx context.Context, key string) (license.State, error) {
	select {
	case out := <-a.deps.Session.VerifyAsync(ctx, key):
		return a.deps.Session.Apply(ctx, out)
	case <-ctx.Done():
		return license.StateUnverified, ctx.Err()
	}
}

// discardNotice consumes the disconnect notice of a worker that failed
// before the game started, so supervise does not report it.
func (a *LauncherApplication) discardNotice(ctx context.Context) {
	timer := time.NewTimer(noticeGrace)
	defer timer.Stop()
	select {
	case <-a.deps.Notices:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// supervise waits for the game while reporting heartbeat loss
func (a *LauncherApplication) supervise(ctx context.Context, proc GameProcess) error {
	for {
		select {
		case <-proc.Done():
			a.logger.InfoContext(ctx, "game finished")
			return nil

		case n := <-a.deps.Notices:
			a.say(n.Message)
			a.logger.WarnContext(ctx, "license connection lost",
				slog.String("notice", string(n.Kind)),
				slog.Bool("stop_game", a.deps.Config.StopGameOnDisconnect))
			if a.deps.Config.StopGameOnDisconnect {
				if err := proc.Stop(); err != nil {
					a.logger.ErrorContext(ctx, "failed to stop game", slog.String("error", err.Error()))
				}
			}

		case <-ctx.Done():
			a.logger.InfoContext(ctx, "interrupted, stopping game")
			if err := proc.Stop(); err != nil {
				a.logger.ErrorContext(ctx, "failed to stop game", slog.String("error", err.Error()))
			}
			return nil
		}
	}
}

func (a *LauncherApplication) close() {
	if err := a.deps.Session.Close(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("failed to close license session", slog.String("error", err.Error()))
	}
	if a.deps.Shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.deps.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (a *LauncherApplication) say(msg string) {
	fmt.Fprintln(a.deps.Out, msg)
}

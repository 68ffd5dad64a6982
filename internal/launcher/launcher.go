package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ernyzasxash/clientt/internal/config"
	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/security"
)

// Environment variables read by the engine
const (
	EnvGameDir         = "XASH3D_GAMEDIR"
	EnvGameLibDir      = "XASH3D_GAMELIBDIR"
	EnvCallerPackage   = "XASH3D_CALLER_PACKAGE"
	EnvLicenseKey      = "CS16_LICENSE_KEY"
	EnvLicenseVerified = "CS16_LICENSE_VERIFIED"
	EnvLaunchID        = "CS16_LAUNCH_ID"
)

// stopGrace is how long Stop waits after an interrupt before killing
const stopGrace = 3 * time.Second

// Handoff is everything passed to the engine at launch
type Handoff struct {
	Target        string
	GameDir       string
	LibraryDir    string
	Args          []string
	CallerPackage string
	LicenseKey    string
	Verified      bool
	LaunchID      string
}

// CommandArgs returns the engine command line
func (h Handoff) CommandArgs() []string {
	args := []string{"-game", h.GameDir}
	return append(args, h.Args...)
}

// Environ returns the handoff environment variables
func (h Handoff) Environ() []string {
	verified := "0"
	if h.Verified {
		verified = "1"
	}
	env := []string{
		EnvGameDir + "=" + h.GameDir,
		EnvCallerPackage + "=" + h.CallerPackage,
		EnvLicenseKey + "=" + h.LicenseKey,
		EnvLicenseVerified + "=" + verified,
		EnvLaunchID + "=" + h.LaunchID,
	}
	if h.LibraryDir != "" {
		env = append(env, EnvGameLibDir+"="+h.LibraryDir)
	}
	return env
}

// Options configures a Launcher
type Options struct {
	Targets       []string
	ReleaseURL    string
	GameDir       string
	LibraryDir    string
	Args          []string
	CallerPackage string
	Opener        URLOpener
	Logger        *slog.Logger
	// LookPath resolves bare target names; defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// Launcher resolves and starts the game engine
type Launcher struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Launcher
func New(opts Options) *Launcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.Opener == nil {
		opts.Opener = NewBrowserOpener(opts.Logger)
	}
	if opts.GameDir == "" {
		opts.GameDir = config.DefaultGameDir
	}
	if opts.CallerPackage == "" {
		opts.CallerPackage = config.DefaultCallerPackage
	}
	if opts.ReleaseURL == "" {
		opts.ReleaseURL = config.DefaultReleaseURL
	}
	return &Launcher{
		opts:   opts,
		logger: opts.Logger.With(slog.String("component", "launcher")),
	}
}

// NewFromConfig creates a Launcher from the launcher config section
func NewFromConfig(cfg config.LauncherConfig, logger *slog.Logger) *Launcher {
	return New(Options{
		Targets:       cfg.Targets,
		ReleaseURL:    cfg.ReleaseURL,
		GameDir:       cfg.GameDir,
		LibraryDir:    cfg.LibraryDir,
		Args:          strings.Fields(cfg.LaunchArgs),
		CallerPackage: cfg.CallerPackage,
		Logger:        logger,
	})
}

// Resolve returns the path of the first installed target
func (l *Launcher) Resolve() (string, error) {
	for _, target := range l.opts.Targets {
		if path, ok := l.lookup(target); ok {
			return path, nil
		}
	}
	return "", apperrors.NewLaunchTargetMissingError(l.opts.Targets)
}

func (l *Launcher) lookup(target string) (string, bool) {
	if target == "" {
		return "", false
	}
	if filepath.IsAbs(target) {
		info, err := os.Stat(target)
		if err != nil || info.IsDir() {
			return "", false
		}
		return target, true
	}
	path, err := l.opts.LookPath(target)
	if err != nil {
		return "", false
	}
	return path, true
}

// Handoff builds the handoff for target
func (l *Launcher) Handoff(target, key string, verified bool) Handoff {
	return Handoff{
		Target:        target,
		GameDir:       l.opts.GameDir,
		LibraryDir:    l.opts.LibraryDir,
		Args:          append([]string(nil), l.opts.Args...),
		CallerPackage: l.opts.CallerPackage,
		LicenseKey:    key,
		Verified:      verified,
		LaunchID:      uuid.New().String(),
	}
}

// Launch starts the first installed target. When none is installed the
// release page is opened and a LAUNCH_TARGET_MISSING error returned.
func (l *Launcher) Launch(ctx context.Context, key string, verified bool) (*Process, error) {
	target, err := l.Resolve()
	if err != nil {
		l.logger.WarnContext(ctx, "no launch target installed",
			slog.Any("targets", l.opts.Targets),
			slog.String("release_url", l.opts.ReleaseURL))
		if openErr := l.opts.Opener.Open(ctx, l.opts.ReleaseURL); openErr != nil {
			l.logger.WarnContext(ctx, "failed to open release page",
				slog.String("error", openErr.Error()))
		}
		return nil, err
	}

	h := l.Handoff(target, key, verified)

	cmd := exec.Command(h.Target, h.CommandArgs()...)
	cmd.Env = append(os.Environ(), h.Environ()...)
	cmd.Dir = filepath.Dir(h.Target)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", h.Target, err)
	}

	l.logger.InfoContext(ctx, "game launched",
		slog.String("target", h.Target),
		slog.Int("pid", cmd.Process.Pid),
		slog.String("launch_id", h.LaunchID),
		slog.Bool("verified", h.Verified),
		slog.String("license_key_masked", security.MaskLicenseKey(h.LicenseKey)))

	p := &Process{
		ID:      h.LaunchID,
		Handoff: h,
		cmd:     cmd,
		done:    make(chan struct{}),
		logger:  l.logger,
	}
	go p.wait()
	return p, nil
}

// Process is a running engine
type Process struct {
	ID      string
	Handoff Handoff

	cmd    *exec.Cmd
	done   chan struct{}
	err    error
	logger *slog.Logger

	stopOnce sync.Once
}

func (p *Process) wait() {
	p.err = p.cmd.Wait()
	p.logger.Info("game exited",
		slog.String("launch_id", p.ID),
		slog.Int("exit_code", p.cmd.ProcessState.ExitCode()))
	close(p.done)
}

// Pid returns the OS process id
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed when the process exits
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits or ctx is done
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the process to exit, killing it if it has not exited after a
// short grace period.
func (p *Process) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if runtime.GOOS != "windows" {
			if sigErr := p.cmd.Process.Signal(os.Interrupt); sigErr == nil {
				select {
				case <-p.done:
					return
				case <-time.After(stopGrace):
				}
			}
		}

		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = fmt.Errorf("failed to kill game process: %w", killErr)
			return
		}
		<-p.done
	})
	return err
}

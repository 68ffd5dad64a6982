package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"time"
)

// URLOpener opens a URL in the user's browser
type URLOpener interface {
	Open(ctx context.Context, url string) error
}

// openMethod is one platform command able to open a URL
type openMethod struct {
	name string
	cmd  string
	args []string
}

// BrowserOpener opens URLs with the platform's opener commands, trying
// each in turn until one starts.
type BrowserOpener struct {
	logger  *slog.Logger
	timeout time.Duration
	start   func(ctx context.Context, name string, args ...string) error
}

// NewBrowserOpener creates a BrowserOpener
func NewBrowserOpener(logger *slog.Logger) *BrowserOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserOpener{
		logger:  logger.With(slog.String("component", "browser_opener")),
		timeout: 5 * time.Second,
		start:   startDetached,
	}
}

// Open implements URLOpener
func (o *BrowserOpener) Open(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var lastErr error
	for _, m := range openMethods(runtime.GOOS, url) {
		if err := o.start(ctx, m.cmd, m.args...); err != nil {
			lastErr = err
			o.logger.DebugContext(ctx, "open method failed",
				slog.String("method", m.name),
				slog.String("error", err.Error()))
			continue
		}
		o.logger.InfoContext(ctx, "opened url",
			slog.String("method", m.name),
			slog.String("url", url))
		return nil
	}
	return fmt.Errorf("failed to open %s: %w", url, lastErr)
}

func openMethods(goos, url string) []openMethod {
	switch goos {
	case "windows":
		return []openMethod{
			{name: "rundll32", cmd: "rundll32", args: []string{"url.dll,FileProtocolHandler", url}},
			{name: "start_command", cmd: "cmd", args: []string{"/c", "start", "", url}},
		}
	case "darwin":
		return []openMethod{
			{name: "open", cmd: "open", args: []string{url}},
		}
	default:
		return []openMethod{
			{name: "xdg-open", cmd: "xdg-open", args: []string{url}},
			{name: "sensible-browser", cmd: "sensible-browser", args: []string{url}},
		}
	}
}

// startDetached starts the command and reaps it in the background
func startDetached(_ context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ernyzasxash/clientt/internal/app"
	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/pkg/contracts"
)

// Exit codes
const (
	exitOK            = 0
	exitError         = 1
	exitUsage         = 2
	exitTargetMissing = 3
	exitNoKey         = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("launcher", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config.yaml (defaults to the usual search locations)")
	key := fs.String("key", "", "license key to verify instead of the stored one")
	serverURL := fs.String("server", "", "license server URL, overrides launcher.server_url")
	forget := fs.Bool("forget", false, "clear the stored license key and ask for a new one")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return exitOK
	}

	application, err := app.NewLauncherApplication(app.LauncherOptions{
		ConfigPath: *configPath,
		Key:        *key,
		ServerURL:  *serverURL,
		Forget:     *forget,
	})
	if err != nil {
		slog.Error("Failed to initialize launcher", slog.String("error", err.Error()))
		return exitError
	}

	return exitCode(application.Run(context.Background()))
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	case errors.Is(err, io.EOF):
		return exitNoKey
	case apperrors.IsType(err, apperrors.ErrTypeLaunchTargetMissing):
		return exitTargetMissing
	default:
		slog.Error("Launcher error", slog.String("error", err.Error()))
		return exitError
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ernyzasxash/clientt/internal/config"
	"github.com/ernyzasxash/clientt/internal/geoip"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/internal/services"
	"github.com/ernyzasxash/clientt/internal/storage"
	transport "github.com/ernyzasxash/clientt/internal/transport/http"
	"github.com/ernyzasxash/clientt/internal/websocket"
	"github.com/ernyzasxash/clientt/pkg/contracts"
)

// ServerApplication is the license server container
type ServerApplication struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Store         *storage.FileStore
	Keys          storage.KeyStore
	Hub           *websocket.Hub
	Router        chi.Router
	Server        *http.Server
}

// NewServerApplication builds the license server from cfg. GeoIP lookups
// go through resolver when it is non-nil.
func NewServerApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, resolver geoip.Resolver) (*ServerApplication, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	store, err := storage.NewFileStore(cfg.Storage.DataDir, storage.FileStoreOptions{
		MaxEntries: cfg.Storage.MaxAttempts,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory: %w", err)
	}

	var keys storage.KeyStore = store
	if cfg.Storage.KeyBackend == config.KeyBackendSheets {
		sheetsStore, err := storage.NewSheetsKeyStore(ctx, cfg.Storage.Sheets, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sheets key backend: %w", err)
		}
		keys = sheetsStore
	}

	if resolver == nil {
		resolver = geoip.Nop{}
		if cfg.GeoIP.Enabled {
			resolver = geoip.NewClient(cfg.GeoIP, logger)
		}
	}

	hub := websocket.NewHub(logger)
	hub.Start()

	metrics, err := services.NewServerMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create server metrics: %w", err)
	}

	licenseService, err := services.NewLicenseService(services.LicenseOptions{
		Keys:     keys,
		Bans:     store,
		Activity: store,
		GeoIP:    resolver,
		Feed:     hub,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	adminService, err := services.NewAdminService(services.AdminOptions{
		Keys:         keys,
		Bans:         store,
		Activity:     store,
		Feed:         hub,
		Metrics:      metrics,
		Logger:       logger,
		ActiveWindow: cfg.Server.ActiveWindow,
	})
	if err != nil {
		return nil, err
	}

	healthService := services.NewHealthService(map[string]services.Probe{
		"data_dir": func(context.Context) error {
			_, err := os.Stat(store.Dir())
			return err
		},
		"keys": func(ctx context.Context) error {
			_, err := keys.ListKeys(ctx)
			return err
		},
	}, hub.Stats, logger)

	router, err := transport.NewRouter(transport.RouterDeps{
		Config:    cfg,
		License:   licenseService,
		Admin:     adminService,
		Health:    healthService,
		Feed:      websocket.NewHandler(hub, cfg.WebSocket, logger),
		Providers: providers,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	return &ServerApplication{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Store:         store,
		Keys:          keys,
		Hub:           hub,
		Router:        router,
		Server: &http.Server{
			Addr:           cfg.ListenAddr(),
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    cfg.Server.IdleTimeout,
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		},
	}, nil
}

// Serve accepts connections on ln until ctx is done, then shuts down
func (a *ServerApplication) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "license server listening",
			slog.String("address", ln.Addr().String()),
			slog.String("version", contracts.Version),
			slog.String("key_backend", a.Config.Storage.KeyBackend),
			slog.String("data_dir", a.Store.Dir()))
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Run listens on the configured address until SIGINT or SIGTERM
func (a *ServerApplication) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Stop gracefully stops the server, the event feed and telemetry
func (a *ServerApplication) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down license server")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	a.Hub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "license server stopped")
	return errors.Join(errs...)
}

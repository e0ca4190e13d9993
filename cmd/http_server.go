package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/auth"
	authPostgres "github.com/digicoders/feeledger/internal/auth/postgres"
	"github.com/digicoders/feeledger/internal/core/common/serial"
	"github.com/digicoders/feeledger/internal/core/common/txretry"
	"github.com/digicoders/feeledger/internal/core/database"
	"github.com/digicoders/feeledger/internal/core/events"
	"github.com/digicoders/feeledger/internal/fee"
	feePostgres "github.com/digicoders/feeledger/internal/fee/postgres"
	"github.com/digicoders/feeledger/internal/filestore"
	"github.com/digicoders/feeledger/internal/notification"
	"github.com/digicoders/feeledger/internal/registration"
	registrationPostgres "github.com/digicoders/feeledger/internal/registration/postgres"
	"github.com/digicoders/feeledger/internal/technology"
	technologyPostgres "github.com/digicoders/feeledger/internal/technology/postgres"
	"github.com/digicoders/feeledger/internal/transport"
	"github.com/digicoders/feeledger/internal/transport/rest"
	"github.com/digicoders/feeledger/pkg/logger"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Router   *chi.Mux
	Logger   *slog.Logger
	EventBus *events.EventBus
	Notifier *notification.Client

	AuthService         *auth.Service
	RegistrationService *registration.Service
	FeeService          *fee.Service
	TechnologyService   *technology.Service
	Files               filestore.Store
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		deps.close()
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config

	authHandler := auth.NewHandler(deps.AuthService)
	rbac := auth.NewRBACAuthorization(auth.NewPermissionChecker(), deps.Logger)

	routerCfg := rest.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIPath:    "./api/openapi.yml",
	}
	// Only local attachments are served by this process; OSS objects have their own public URL.
	if local, ok := deps.Files.(*filestore.LocalStore); ok {
		routerCfg.UploadDir = local.Dir()
		routerCfg.UploadURLPath = cfg.Storage.PublicBaseURL
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, routerCfg, rest.Handlers{
		Auth:         authHandler,
		Registration: registration.NewHandler(deps.RegistrationService),
		Fee:          fee.NewHandler(deps.FeeService, cfg.Storage.MaxUploadBytes),
		Technology:   technology.NewHandler(transport.NewBaseHandler(deps.Logger), deps.TechnologyService),
		RBAC:         rbac,
	}, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.L()

	db, err := database.Connect(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := database.OpenGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	files, err := filestore.New(config.Storage, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize %s file store: %w", config.Storage.Driver, err)
	}

	eventBus := events.NewEventBus(log)
	notifier := initNotifications(config.Notification, eventBus, log)

	serials := serial.NewGenerator(config.Ledger.ReceiptPrefix)
	policy := txretry.Policy{
		MaxRetries: config.Ledger.MaxWriteRetries,
		Backoff:    config.Ledger.RetryBackoff,
	}

	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(authPostgres.NewRepository(gdb), tokenGen, config.Security.BCryptCost, log)

	registrationService := registration.NewService(
		registrationPostgres.NewRegistrationRepository(gdb), serials, eventBus, policy, log)

	technologyService := technology.NewService(technologyPostgres.NewTechnologyRepository(gdb), log)

	feeService := fee.NewService(
		feePostgres.NewFeeRepository(gdb),
		feePostgres.NewQueryRepository(db),
		files,
		serials,
		eventBus,
		fee.Options{
			RecomputeStatusOnReversal: config.Ledger.RecomputeStatusOnReversal,
			Retry:                     policy,
		},
		log,
	)

	return &Dependencies{
		Config:              config,
		DB:                  db,
		Gorm:                gdb,
		Router:              chi.NewRouter(),
		Logger:              log,
		EventBus:            eventBus,
		Notifier:            notifier,
		AuthService:         authService,
		RegistrationService: registrationService,
		FeeService:          feeService,
		TechnologyService:   technologyService,
		Files:               files,
	}, nil
}

// initNotifications subscribes the email/SMS dispatcher to ledger events. It
// returns nil when notifications are disabled.
func initNotifications(cfg internal.NotificationConfig, eventBus *events.EventBus, log *slog.Logger) *notification.Client {
	if !cfg.Enabled {
		log.Info("notifications disabled")
		return nil
	}

	client := notification.NewClient(notification.Config{
		EmailAPIURL:  cfg.EmailAPIURL,
		SMSAPIURL:    cfg.SMSAPIURL,
		APIKey:       cfg.APIKey,
		FromAddress:  cfg.FromAddress,
		Timeout:      cfg.Timeout,
		MaxWorkers:   cfg.MaxWorkers,
		JobQueueSize: cfg.JobQueueSize,
		MaxRetries:   3,
	}, log)

	notification.NewEventHandler(client, log).RegisterEventHandlers(eventBus)
	return client
}

// close drains in-flight event handlers before the notifier and pool go away.
func (d *Dependencies) close() {
	d.EventBus.Wait()
	if d.Notifier != nil {
		drainNotifier(d.Notifier, d.Logger)
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

func drainNotifier(client *notification.Client, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.Drain(ctx); err != nil {
		log.Warn("notification queue not drained before shutdown", "error", err)
	}
	client.Shutdown()
}

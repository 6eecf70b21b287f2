package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mkrogh/pulseboard/internal/adapters/database"
	"github.com/mkrogh/pulseboard/internal/adapters/kpiprovider"
	"github.com/mkrogh/pulseboard/internal/adapters/layoutrepository"
	"github.com/mkrogh/pulseboard/internal/aggcache"
	"github.com/mkrogh/pulseboard/internal/app"
	"github.com/mkrogh/pulseboard/internal/config"
	"github.com/mkrogh/pulseboard/internal/ports"
	"github.com/mkrogh/pulseboard/internal/reporting"
	"github.com/mkrogh/pulseboard/internal/telemetry"

	// Embed an up to date CA bundle in case the deploy image lacks one
	_ "golang.org/x/crypto/x509roots/fallback"
)

// TODO: Put in config
const PROD_DOMAIN_SUFFIX = "pulseboard.app"
const DEV_DOMAIN_SUFFIX = "localhost"

func main() {
	ctx := context.Background()

	instanceID := uuid.New().String()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	otelShutdown, err := telemetry.SetupOTelSDK(ctx, "pulseboard")
	if err != nil {
		fail("Failed to set up OpenTelemetry SDK", "error", err.Error())
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			logger.Error("Failed to shut down OpenTelemetry SDK", "error", err.Error())
		}
	}()

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	erpAPI, err := kpiprovider.NewERPAPIOrMock(config, httpClient)
	if err != nil {
		fail("Failed to initialize ERP API", "error", err.Error())
	}
	logger.Info("Initialized ERP API")

	aggregateCache := aggcache.New[json.RawMessage](
		aggcache.FetcherFunc[json.RawMessage](erpAPI.FetchAggregate),
	)

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	var layoutRepo layoutrepository.LayoutRepository
	if config.IsDevelopment() && config.DatabaseURL() == "" {
		layoutRepo = layoutrepository.NewInMemory()
		logger.Info("Initialized in-memory LayoutRepository")
	} else {
		logger.Info("Initializing database connection")
		db, err := database.NewConfiguredPostgresDatabase(config)
		if err != nil {
			fail("Failed to initialize database connection", "error", err.Error())
		}
		logger.Info("Initialized database connection")

		schemaName := database.GetSchemaName(!config.IsProduction())

		err = database.NewDatabaseMigrator(db, logger.With("component", "migrator")).Migrate(ctx, schemaName)
		if err != nil {
			fail("Failed to migrate database", "error", err.Error())
		}

		layoutRepo = layoutrepository.NewPostgres(db, schemaName)
		logger.Info("Initialized LayoutRepository")
	}

	allowedOrigins, err := ports.NewDomainSuffixes(PROD_DOMAIN_SUFFIX, DEV_DOMAIN_SUFFIX)
	if err != nil {
		fail("Failed to initialize allowed origins", "error", err.Error())
	}

	getAggregate := app.BuildGetAggregate(aggregateCache)
	getLastFetched := app.BuildGetLastFetched(aggregateCache)
	refreshDashboard := app.BuildRefreshDashboard(aggregateCache)
	getLayout := app.BuildGetLayout(layoutRepo)
	saveLayout := app.BuildSaveLayout(layoutRepo)

	http.HandleFunc(
		"OPTIONS /v1/aggregate/{endpoint}",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"GET /v1/aggregate/{endpoint}",
		ports.MakeGetAggregateHandler(
			getAggregate,
			getLastFetched,
			allowedOrigins,
			logger.With("port", "aggregate"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"OPTIONS /v1/refresh",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"POST /v1/refresh",
		ports.MakeRefreshHandler(
			refreshDashboard,
			allowedOrigins,
			logger.With("port", "refresh"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"OPTIONS /v1/layout/{userID}",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"GET /v1/layout/{userID}",
		ports.MakeGetLayoutHandler(
			getLayout,
			allowedOrigins,
			logger.With("port", "getlayout"),
			sentryMiddleware,
		),
	)
	http.HandleFunc(
		"PUT /v1/layout/{userID}",
		ports.MakeSaveLayoutHandler(
			saveLayout,
			allowedOrigins,
			logger.With("port", "savelayout"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"GET /v1/events",
		ports.MakeEventsHandler(
			aggregateCache,
			allowedOrigins,
			logger.With("port", "events"),
			sentryMiddleware,
		),
	)

	logger.Info("Init complete")
	err = http.ListenAndServe(fmt.Sprintf(":%s", config.Port()), nil)
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("Server shutdown")
	} else {
		fail("Server error", "error", err.Error())
	}
}

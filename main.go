package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/lead"
	"github.com/Ramsey-B/clover/internal/repositories/leadevent"
	"github.com/Ramsey-B/clover/internal/repositories/ledger"
	"github.com/Ramsey-B/clover/internal/repositories/mergeaudit"
	"github.com/Ramsey-B/clover/internal/repositories/mergecandidate"
	"github.com/Ramsey-B/clover/internal/repositories/scoringrule"
	"github.com/Ramsey-B/clover/internal/repositories/scoringstate"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/deletion"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/ingestion"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/processor"
	healthroutes "github.com/Ramsey-B/clover/pkg/routes/health"
	leadroutes "github.com/Ramsey-B/clover/pkg/routes/lead"
	ledgerroutes "github.com/Ramsey-B/clover/pkg/routes/ledger"
	mergecandidateroutes "github.com/Ramsey-B/clover/pkg/routes/mergecandidate"
	scoringroutes "github.com/Ramsey-B/clover/pkg/routes/scoring"
	scoringruleroutes "github.com/Ramsey-B/clover/pkg/routes/scoringrule"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

var version = "dev"

// app holds the wired service graph shared by the startup dependencies
type app struct {
	cfg      config.Config
	logger   ectologger.Logger
	sqlDB    *sqlx.DB
	db       database.DB
	consumer *kafka.Consumer
	producer *kafka.Producer
	echo     *echo.Echo
	checker  *healthroutes.Checker
}

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing := initTracing(ctx, cfg, logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shut down tracing")
		}
	}()

	a := &app{cfg: cfg, logger: logger}

	st := startup.NewStartup[any](logger, cfg.StartupMaxAttempts)
	st.AddDependency(&dependency{name: "database", start: a.startDatabase, stop: a.stopDatabase})
	st.AddDependency(&dependency{name: "kafka", deps: []string{"database"}, start: a.startKafka, stop: a.stopKafka})
	st.AddDependency(&dependency{name: "http", deps: []string{"database", "kafka"}, start: a.startHTTP, stop: a.stopHTTP})

	if err := st.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	a.checker.SetReady(true)
	logger.WithField("port", cfg.Port).Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	<-ctx.Done()
	logger.Info("Shutting down")

	a.checker.SetReady(false)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := st.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
}

// dependency adapts plain start/stop funcs to the startup graph
type dependency struct {
	name  string
	deps  []string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (d *dependency) GetName() string { return d.name }

func (d *dependency) DependsOn() []string { return d.deps }

func (d *dependency) Start(ctx context.Context) error {
	return d.start(ctx)
}
func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func (a *app) startDatabase(ctx context.Context) error {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		a.cfg.DatabaseHost, a.cfg.DatabasePort, a.cfg.DatabaseUserName,
		a.cfg.DatabasePassword, a.cfg.DatabaseName, a.cfg.DatabaseSSLMode)

	sqlDB, err := sqlx.ConnectContext(ctx, a.cfg.DatabaseDriver, dsn)
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(a.cfg.DatabaseMaxOpenConns)
	sqlDB.SetMaxIdleConns(a.cfg.DatabaseMaxIdleConns)
	sqlDB.SetConnMaxLifetime(a.cfg.DatabaseConnMaxLifetime)

	driver, err := migratepg.WithInstance(sqlDB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(a.cfg.DatabaseName, driver); err != nil {
		return err
	}

	a.sqlDB = sqlDB
	a.db = database.NewDatabaseInstance(sqlDB, a.logger)

	stateRepo := scoringstate.NewRepository(a.db, a.logger)
	return stateRepo.Seed(ctx, a.cfg.ScoreWarmThreshold, a.cfg.ScoreHotThreshold)
}

func (a *app) stopDatabase(ctx context.Context) error {
	if a.sqlDB == nil {
		return nil
	}
	return a.sqlDB.Close()
}

func (a *app) startKafka(ctx context.Context) error {
	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaOutputTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)

	proc, err := a.wire()
	if err != nil {
		return err
	}

	if !a.cfg.KafkaConsumerEnabled {
		a.logger.Info("Kafka consumer disabled")
		return nil
	}

	a.consumer = kafka.NewConsumer(a.cfg, a.logger, proc.HandleMessage)
	return a.consumer.Start(ctx)
}

func (a *app) stopKafka(ctx context.Context) error {
	if a.consumer != nil {
		if err := a.consumer.Stop(); err != nil {
			return err
		}
	}
	if a.producer != nil {
		return a.producer.Close()
	}
	return nil
}

// wire builds the repositories and engines and registers everything in
// the DI container the route handlers resolve from.
func (a *app) wire() (*processor.Processor, error) {
	leadRepo := lead.NewRepository(a.db, a.logger)
	eventRepo := leadevent.NewRepository(a.db, a.logger)
	ruleRepo := scoringrule.NewRepository(a.db, a.logger)
	stateRepo := scoringstate.NewRepository(a.db, a.logger)
	ledgerRepo := ledger.NewRepository(a.db, a.logger)
	candidateRepo := mergecandidate.NewRepository(a.db, a.logger)
	auditRepo := mergeaudit.NewRepository(a.db, a.logger)

	scoringEngine := scoring.NewEngine(a.logger, leadRepo, eventRepo, ruleRepo, stateRepo)
	matchingEngine := matching.NewEngine(a.logger, leadRepo, candidateRepo, matching.Config{
		PhoneWeight:        a.cfg.PhoneMatchWeight,
		EmailWeight:        a.cfg.EmailMatchWeight,
		AutoMergeThreshold: a.cfg.AutoMergeThreshold,
		ReviewThreshold:    a.cfg.ReviewThreshold,
	})
	mergingEngine := merging.NewEngine(a.logger, leadRepo, eventRepo, ledgerRepo, candidateRepo, auditRepo, ruleRepo, stateRepo)
	erasureEngine := deletion.NewEngine(a.logger, leadRepo, eventRepo, ledgerRepo, candidateRepo, auditRepo)

	ingestSvc := ingestion.NewService(a.logger, ledgerRepo)
	emitter := events.NewEmitter(a.producer, a.logger)
	proc := processor.NewProcessor(a.logger, ingestSvc, leadRepo, scoringEngine, emitter)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return nil, err
	}

	registrations := []func() error{
		func() error { return ectoinject.RegisterInstance[config.Config](container, a.cfg) },
		func() error { return ectoinject.RegisterInstance[ectologger.Logger](container, a.logger) },
		func() error { return ectoinject.RegisterInstance[*lead.Repository](container, leadRepo) },
		func() error { return ectoinject.RegisterInstance[*leadevent.Repository](container, eventRepo) },
		func() error { return ectoinject.RegisterInstance[*scoringrule.Repository](container, ruleRepo) },
		func() error { return ectoinject.RegisterInstance[*scoringstate.Repository](container, stateRepo) },
		func() error { return ectoinject.RegisterInstance[*ledger.Repository](container, ledgerRepo) },
		func() error { return ectoinject.RegisterInstance[*mergecandidate.Repository](container, candidateRepo) },
		func() error { return ectoinject.RegisterInstance[*mergeaudit.Repository](container, auditRepo) },
		func() error { return ectoinject.RegisterInstance[*scoring.Engine](container, scoringEngine) },
		func() error { return ectoinject.RegisterInstance[*matching.Engine](container, matchingEngine) },
		func() error { return ectoinject.RegisterInstance[*merging.Engine](container, mergingEngine) },
		func() error { return ectoinject.RegisterInstance[*deletion.Engine](container, erasureEngine) },
		func() error { return ectoinject.RegisterInstance[*ingestion.Service](container, ingestSvc) },
		func() error { return ectoinject.RegisterInstance[*events.Emitter](container, emitter) },
		func() error { return ectoinject.RegisterInstance[*processor.Processor](container, proc) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return nil, err
		}
	}

	return proc, nil
}

func (a *app) startHTTP(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Server.ReadTimeout = time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = a.cfg.MaxHeaderBytes

	var consumerCheck interface{ Health() bool }
	if a.consumer != nil {
		consumerCheck = a.consumer
	}
	a.checker = healthroutes.NewChecker(a.sqlDB, consumerCheck, version)
	a.checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	leadroutes.Register(api.Group("/leads"))
	mergecandidateroutes.Register(api.Group("/merge-candidates"))
	scoringruleroutes.Register(api.Group("/scoring-rules"))
	scoringroutes.Register(api.Group("/scoring"))
	ledgerroutes.Register(api.Group("/ledger"))

	a.echo = e

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", a.cfg.Port)); err != nil && !strings.Contains(err.Error(), "Server closed") {
			a.logger.WithError(err).Error("HTTP server stopped")
		}
	}()

	return nil
}

func (a *app) stopHTTP(ctx context.Context) error {
	if a.echo == nil {
		return nil
	}
	return a.echo.Shutdown(ctx)
}

func newLogger(cfg config.Config) ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		var data []byte
		if cfg.PrettyLogs {
			data, _ = json.MarshalIndent(msg, "", "  ")
		} else {
			data, _ = json.Marshal(msg)
		}
		fmt.Fprintln(os.Stdout, string(data))
	})
}

// initTracing configures the global tracer. Disabled tracing leaves the
// no-op global provider in place so spans cost nothing.
func initTracing(ctx context.Context, cfg config.Config, logger ectologger.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }

	if !cfg.TracingEnabled {
		tracing.SetTracer(otel.Tracer(cfg.AppName))
		return noop
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.OTLPProtocol {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		exporter, err = exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: true,
			Timeout:  10 * time.Second,
		})
	}
	if err != nil {
		logger.WithError(err).Error("Failed to create trace exporter, tracing disabled")
		tracing.SetTracer(otel.Tracer(cfg.AppName))
		return noop
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	return tp.Shutdown
}

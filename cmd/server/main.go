package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/gateway"
	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/middleware"
	"github.com/fekuna/omnipos-stock-service/internal/response"
	"github.com/fekuna/omnipos-stock-service/pkg/broker"
	"github.com/fekuna/omnipos-stock-service/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/pkg/database/postgres"
	"github.com/fekuna/omnipos-stock-service/pkg/i18n"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/pkg/metrics"

	"github.com/fekuna/omnipos-stock-service/internal/catalog"
	catH "github.com/fekuna/omnipos-stock-service/internal/catalog/handler"
	catRepoPkg "github.com/fekuna/omnipos-stock-service/internal/catalog/repository"
	catUCPkg "github.com/fekuna/omnipos-stock-service/internal/catalog/usecase"

	ledgerH "github.com/fekuna/omnipos-stock-service/internal/ledger/handler"
	ledgerListenerPkg "github.com/fekuna/omnipos-stock-service/internal/ledger/listener"
	ledgerPubPkg "github.com/fekuna/omnipos-stock-service/internal/ledger/publisher"
	ledgerRepoPkg "github.com/fekuna/omnipos-stock-service/internal/ledger/repository"
	ledgerUCPkg "github.com/fekuna/omnipos-stock-service/internal/ledger/usecase"

	"github.com/fekuna/omnipos-stock-service/internal/report"
	reportH "github.com/fekuna/omnipos-stock-service/internal/report/handler"
	reportUCPkg "github.com/fekuna/omnipos-stock-service/internal/report/usecase"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
		ServiceName:       "stock-service",
	}
	if cfg.IsDevelopment() {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		appLogger.Fatal("Invalid timezone", zap.Error(err))
	}

	// 2.5 Initialize i18n
	translator, err := i18n.New(cfg.I18n.DefaultLanguage)
	if err != nil {
		appLogger.Fatal("Could not load locales", zap.Error(err))
	}

	// 2.8 Initialize Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry, cfg.Metrics.Prefix)

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	if cfg.Ledger.MigrateOnStart {
		if err := postgres.Migrate(context.Background(), db); err != nil {
			appLogger.Fatal("Could not apply schema", zap.Error(err))
		}
		appLogger.Info("Schema applied")
	}

	// 4. Initialize Repositories
	catRepo := catRepoPkg.NewPGRepository(db, appMetrics)
	ledgerRepo := ledgerRepoPkg.NewPGRepository(db, appMetrics)

	// 5. Initialize Locks
	var locker ledger.Locker = cache.NewMemoryLocker()
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		locker = cache.NewRedisLocker(redisClient, cfg.Ledger.LockTTL, appLogger)
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// 5.5 Initialize Kafka
	var publisher ledger.EventPublisher = ledger.NoopPublisher{}
	var kafkaConsumer *broker.KafkaConsumer
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.MovementsTopic,
		})
		defer producer.Close()
		publisher = ledgerPubPkg.NewKafkaPublisher(producer)

		kafkaConsumer = broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.SalesTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer kafkaConsumer.Close()
		appLogger.Info("Connected to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("sales_topic", cfg.Kafka.SalesTopic),
			zap.String("movements_topic", cfg.Kafka.MovementsTopic),
		)
	}

	// 6. Load the replica
	store := catalog.NewStore()
	gw := gateway.New(catRepo, gateway.NewLocalReplica(cfg.Replica.SnapshotPath), store, appLogger)
	outcome, err := gw.Reconcile(context.Background())
	if err != nil {
		appLogger.Error("Startup reconciliation incomplete", zap.String("outcome", string(outcome)), zap.Error(err))
	} else {
		appLogger.Info("Replica ready", zap.String("outcome", string(outcome)), zap.Int("items", store.Len()))
	}
	for _, it := range store.Items() {
		appMetrics.SetItemQuantity(it.ID, it.Quantity)
	}

	// 7. Initialize UseCases
	catUC := catUCPkg.NewCatalogUseCase(catRepo, store, locker, appMetrics, appLogger)
	ledgerUC := ledgerUCPkg.NewLedgerUseCase(ledgerRepo, store, locker, publisher, appMetrics, appLogger,
		ledgerUCPkg.Config{AllowNegative: cfg.Ledger.AllowNegative})
	reportUC := reportUCPkg.NewReportUseCase(store, reportUCPkg.Config{
		Location:         loc,
		Weights:          report.Weights{Velocity: cfg.Report.VelocityWeight, Volume: cfg.Report.VolumeWeight},
		TurnoverLimit:    cfg.Report.TurnoverLimit,
		TopProductsLimit: cfg.Report.TopProductsLimit,
		NoSalesLimit:     cfg.Report.NoSalesLimit,
		RecentLimit:      cfg.Report.RecentLimit,
		CriticalStock:    cfg.Report.LowStockThreshold,
	})

	// 7.5 Start Listener
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if kafkaConsumer != nil {
		saleListener := ledgerListenerPkg.NewSaleListener(kafkaConsumer, ledgerUC, appLogger)
		go saleListener.Start(ctx)
	}

	// 8. Initialize HTTP Server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler(translator, appLogger)

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID(appLogger))
	e.Use(appMetrics.Middleware())
	e.Use(echomw.ContextTimeout(cfg.Server.RequestTimeout))

	e.GET("/metrics", echo.WrapHandler(appMetrics.Handler()))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "items": store.Len()})
	})

	api := e.Group("/api/v1")
	catH.NewCatalogHandler(catUC, appLogger).Register(api)
	ledgerH.NewLedgerHandler(ledgerUC, loc, appLogger).Register(api)
	reportH.NewReportHandler(reportUC).Register(api)

	go func() {
		addr := config.Addr(cfg.Server.HTTPPort)
		appLogger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("failed to serve http", zap.Error(err))
		}
	}()

	// 9. Start gRPC Server (health and reflection)
	lis, err := net.Listen("tcp", config.Addr(cfg.Server.GRPCPort))
	if err != nil {
		appLogger.Fatal("failed to listen", zap.Error(err))
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	go func() {
		appLogger.Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve grpc", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	if err := gw.Flush(shutdownCtx); err != nil {
		appLogger.Error("Failed to write local snapshot", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

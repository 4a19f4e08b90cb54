package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/paiml/universal-bot/common"
	"github.com/paiml/universal-bot/common/config"
	"github.com/paiml/universal-bot/common/graceful"
	"github.com/paiml/universal-bot/common/logger"
	"github.com/paiml/universal-bot/middleware"
	"github.com/paiml/universal-bot/monitor"
	"github.com/paiml/universal-bot/relay/adaptor/mock"
	bedrock "github.com/paiml/universal-bot/relay/controller"
	"github.com/paiml/universal-bot/router"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	common.Init()
	logger.SetupLogger()
	logger.Logger.Info("universal-bot started", zap.String("version", common.Version))

	if config.GinMode != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := monitor.NewMetrics()
	opts := []bedrock.Option{
		bedrock.WithMetrics(metrics),
		bedrock.WithPoolMonitor(config.PoolHealthCheckInterval),
		bedrock.WithLogger(logger.Logger.Named("bedrock").Zap()),
	}
	if config.Upstream == "mock" {
		logger.Logger.Warn("BEDROCK_UPSTREAM=mock, requests are answered by the in-memory echo upstream")
		opts = append(opts, bedrock.WithFactory(mock.New().Factory()))
	}

	client, err := bedrock.New(ctx, config.FromEnv(), opts...)
	if err != nil {
		logger.Logger.Fatal("failed to create bedrock client", zap.Error(err))
	}

	if err := common.InitRedisClient(ctx); err != nil {
		logger.Logger.Fatal("failed to initialize Redis", zap.Error(err))
	}
	publishCtx, stopPublish := context.WithCancel(context.Background())
	defer stopPublish()
	if common.IsRedisEnabled() {
		startPublisher(publishCtx, metrics)
	}

	var routerOpts router.Options
	if config.EnablePrometheusMetrics {
		prometheus.MustRegister(monitor.NewCollector(monitor.CollectorParams{
			Metrics:       metrics,
			PoolStats:     client.PoolStats,
			BreakerStates: client.BreakerStates,
		}))
		routerOpts.Gatherer = prometheus.DefaultGatherer
		logger.Logger.Info("Prometheus metrics endpoint available at /metrics")
	}

	logLevel := glog.LevelInfo
	if config.DebugEnabled {
		logLevel = glog.LevelDebug
	}

	server := gin.New()
	server.RedirectTrailingSlash = false
	server.Use(
		middleware.PanicRecover(),
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(logLevel.String()),
			gmw.WithLogger(logger.Logger.Named("gin")),
		),
		middleware.RequestId(),
		middleware.CORS(),
	)
	router.SetRouter(server, client, routerOpts)

	port := config.ServerPort
	if port == "" {
		port = strconv.Itoa(*common.Port)
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Logger.Info("server started", zap.String("address", "http://localhost:"+port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Logger.Info("shutdown signal received, draining")
	graceful.SetDraining()

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(config.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("http server shutdown", zap.Error(err))
	}
	if err := graceful.Drain(shutdownCtx); err != nil {
		logger.Logger.Error("drain in-flight requests", zap.Error(err))
	}
	if err := client.Close(shutdownCtx); err != nil {
		logger.Logger.Error("close bedrock client", zap.Error(err))
	}
	stopPublish()
	if err := common.CloseRedisClient(); err != nil {
		logger.Logger.Error("close redis", zap.Error(err))
	}
	logger.Logger.Info("shutdown complete")
}

func startPublisher(ctx context.Context, metrics *monitor.Metrics) {
	instance, _ := os.Hostname()
	publisher, err := monitor.NewPublisher(monitor.PublisherParams{
		Client:   common.RDB,
		Key:      config.MetricsPublishKey,
		Interval: config.MetricsPublishInterval,
		Instance: instance,
		Metrics:  metrics,
		Logger:   logger.Logger.Named("publisher").Zap(),
	})
	if err != nil {
		logger.Logger.Fatal("failed to create metrics publisher", zap.Error(err))
	}
	logger.Logger.Info("publishing metrics to redis", zap.String("key", publisher.Key()))
	go publisher.Run(ctx)
}

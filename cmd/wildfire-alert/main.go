package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-wildfire-alerts/internal/api"
	"github.com/mr1hm/go-wildfire-alerts/internal/channel/telegram"
	"github.com/mr1hm/go-wildfire-alerts/internal/channel/whatsapp"
	"github.com/mr1hm/go-wildfire-alerts/internal/config"
	"github.com/mr1hm/go-wildfire-alerts/internal/incident"
	"github.com/mr1hm/go-wildfire-alerts/internal/logging"
	"github.com/mr1hm/go-wildfire-alerts/internal/metrics"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
	"github.com/mr1hm/go-wildfire-alerts/internal/notify"
	"github.com/mr1hm/go-wildfire-alerts/internal/publish"
	"github.com/mr1hm/go-wildfire-alerts/internal/repository"
	"github.com/mr1hm/go-wildfire-alerts/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "db_driver", cfg.DB.Driver)

	dsn := cfg.DB.Path
	if cfg.DB.Driver == repository.DriverPostgres {
		dsn = cfg.DB.DSN
	}
	db, err := repository.Open(cfg.DB.Driver, dsn)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Fan-out for committed incident changes
	broadcaster := stream.NewBroadcaster(m)
	store := incident.NewStore(db, nil, broadcaster)

	var publisher *publish.Publisher
	publisherDone := make(chan struct{})
	if cfg.Kafka.Enabled() {
		publisher = publish.NewPublisher(publish.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), m)
		_, events := broadcaster.Subscribe()
		go func() {
			defer close(publisherDone)
			publisher.Run(ctx, events)
		}()
		slog.Info("publishing incident events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	} else {
		close(publisherDone)
	}

	tg := telegram.NewClient(telegram.Config{
		BotToken:  cfg.Telegram.BotToken,
		ChatID:    cfg.Telegram.ChatID,
		APIURL:    cfg.Telegram.APIURL,
		ParseMode: cfg.Telegram.ParseMode,
		Timeout:   cfg.Telegram.Timeout,
	}, slog.Default())

	var transport whatsapp.Transport
	if cfg.WhatsApp.Enabled {
		transport = whatsapp.NewBridge(cfg.WhatsApp.BridgeURL, cfg.WhatsApp.Timeout)
	}
	wa := whatsapp.NewManager(transport, db, whatsapp.Options{
		Defaults: models.Destination{
			Contact:     cfg.WhatsApp.Contact,
			ChannelID:   cfg.WhatsApp.ChannelID,
			ChannelName: cfg.WhatsApp.ChannelName,
		},
		GroupID: cfg.WhatsApp.GroupID,
		Metrics: m,
	})
	if cfg.WhatsApp.Enabled && cfg.WhatsApp.AutoInit {
		if st, err := wa.Init(ctx); err != nil {
			// Not fatal: operators can retry through the init endpoint.
			slog.Error("whatsapp session failed to start", "error", err)
		} else {
			slog.Info("whatsapp session initializing", "state", st)
		}
	}

	dispatcher := notify.NewDispatcher(m, tg, wa)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	router.Use(api.MetricsMiddleware(m))
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.Use(api.RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))

	handler := api.NewHandler(store, dispatcher, wa, broadcaster)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Closing the broadcaster ends live streams and drains the publisher.
	broadcaster.Close()
	<-publisherDone
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			slog.Error("kafka writer close error", "error", err)
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if err := wa.Shutdown(shutdownCtx); err != nil {
		slog.Error("whatsapp shutdown error", "error", err)
	}
	cancel()

	slog.Info("shutdown complete")
}

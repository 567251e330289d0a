package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transitpay/internal/cache"
	intconfig "transitpay/internal/config"
	intdb "transitpay/internal/db"
	"transitpay/internal/events"
	"transitpay/internal/gateway"
	router "transitpay/internal/http"
	"transitpay/internal/http/handlers"
	"transitpay/internal/realtime"
	"transitpay/internal/repositories"
	"transitpay/internal/services"
	"transitpay/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	env := intconfig.LoadEnv()
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}

	logger, err := utils.NewLogger(env.LogMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	db, err := intconfig.ConnectDB(env.DB)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if env.DB.BootstrapSchema {
		schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 15*time.Second)
		err = intdb.EnsureSchema(schemaCtx, db)
		cancelSchema()
		if err != nil {
			logger.Fatal("schema bootstrap failed", zap.Error(err))
		}
	}

	if err := env.Mpesa.Validate(); err != nil {
		// Service still starts; initiation reports the missing settings per request.
		logger.Warn("mpesa settings incomplete", zap.Error(err))
	}

	payments := repositories.PaymentRepository{DB: db}
	vehicles := repositories.VehicleRepository{DB: db}
	occupancy := repositories.OccupancyRepository{DB: db}
	trips := repositories.TripRepository{DB: db}

	hub := realtime.NewHub()
	publishers := events.Fanout{hub}
	if len(env.Kafka.Brokers) > 0 {
		kafka := events.NewKafkaPublisher(env.Kafka.Brokers, env.Kafka.Topic, logger)
		defer func() { _ = kafka.Close() }()
		publishers = append(publishers, kafka)
	}

	var sender services.NotificationSender = services.LogSender{}
	if env.Notify.GatewayURL != "" {
		sender = services.HTTPSender{
			URL:    env.Notify.GatewayURL,
			APIKey: env.Notify.APIKey,
			Client: &http.Client{Timeout: env.Notify.Timeout},
		}
	}

	cooldown := cache.NewMemoryCooldown()
	tickets := services.TicketService{Vehicles: vehicles}
	allocator := services.OccupancyService{
		Occupancy: occupancy,
		Vehicles:  vehicles,
		Trips:     trips,
		Payments:  payments,
		Events:    publishers,
	}
	engine := services.ReconciliationService{
		Payments:  payments,
		Vehicles:  vehicles,
		Gateway:   gateway.NewDarajaClient(env.Mpesa),
		Allocator: allocator,
		Notifier: services.NotificationService{
			Sender:   sender,
			Vehicles: vehicles,
			Tickets:  tickets,
			Timeout:  env.Notify.Timeout,
		},
		Tickets:          tickets,
		Cooldown:         cooldown,
		Events:           publishers,
		Settings:         env.Mpesa,
		PollInterval:     env.Reconcile.PollInterval,
		RateLimitBackoff: env.Reconcile.RateLimitBackoff,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := services.Sweeper{
		Engine:   engine,
		Cooldown: cooldown,
		Interval: env.Reconcile.SweepInterval,
		MinAge:   env.Reconcile.SweepMinAge,
		Batch:    env.Reconcile.SweepBatch,
	}
	go sweeper.Run(ctx)

	r := router.NewRouter(env, router.Deps{
		Payments:  handlers.PaymentHandler{Engine: engine, Tickets: tickets},
		Occupancy: handlers.OccupancyHandler{Service: allocator},
		System:    &handlers.SystemHandler{DB: db, Watchers: hub},
		Hub:       hub,
	})

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", env.AppAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/config"
	"github.com/iliyamo/vehicle-rental/internal/database"
	"github.com/iliyamo/vehicle-rental/internal/handler"
	"github.com/iliyamo/vehicle-rental/internal/logger"
	"github.com/iliyamo/vehicle-rental/internal/middleware"
	"github.com/iliyamo/vehicle-rental/internal/queue"
	"github.com/iliyamo/vehicle-rental/internal/redirect"
	"github.com/iliyamo/vehicle-rental/internal/repository"
	"github.com/iliyamo/vehicle-rental/internal/router"
	"github.com/iliyamo/vehicle-rental/internal/service"
	"github.com/iliyamo/vehicle-rental/internal/validation"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema migrated")
	}

	rdb := config.NewRedisClient(cfg.Redis)
	var redisPing handler.Pinger
	if rdb == nil {
		log.Warn("redis unavailable; cache disabled, rate limiting per instance", zap.String("addr", cfg.Redis.Addr))
	} else {
		defer rdb.Close()
		redisPing = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	// repositories
	txm := repository.NewTxManager(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	otps := repository.NewOTPRepo(db)
	vehicles := repository.NewVehicleRepo(db)
	bookings := repository.NewBookingRepo(db)
	payments := repository.NewPaymentRepo(db)
	ledger := repository.NewTransactionRepo(db)

	// messaging
	mailer := queue.NewMailer(queue.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, log)
	var (
		notifier service.Notifier = mailer
		events   service.EventPublisher
	)
	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(cfg.AMQPURL, log)
		notifier, events = pub, pub
		emails := func(ctx context.Context, id uint64) (string, error) {
			u, err := users.GetByID(ctx, id)
			return u.Email, err
		}
		consumer := queue.NewConsumer(cfg.AMQPURL, mailer, emails, cfg.BookingLogPath, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("consumer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Warn("RABBITMQ_URL not set; OTPs are mailed inline and booking events are not published")
	}

	// services
	invalidator := middleware.NewCacheInvalidator(cfg.Cache, rdb, log)
	otpSvc := service.NewOTPService(txm, users, otps, notifier, log)
	catalog := service.NewCatalogService(vehicles, bookings, log, service.WithCacheInvalidator(invalidator))
	bookingSvc := service.NewBookingService(txm, bookings, payments, ledger, vehicles, events, log)
	receipts := service.NewReceiptService(bookingSvc, vehicles, cfg.AppName)
	signer := redirect.NewSigner(cfg.JWTSecret, rdb)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Validator = validation.New()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID(log))
	e.Use(middleware.RequestLogger())

	limit := middleware.NewTokenBucket(cfg.RateLimit, rdb)
	cache := middleware.NewRedisCache(cfg.Cache, rdb)

	router.RegisterRoutes(e, handler.NewHealthHandler(db, redisPing))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, otpSvc, log), cfg.JWTSecret, limit)
	router.RegisterPublic(e, handler.NewVehicleHandler(catalog), cache, limit)
	router.RegisterOTP(e, handler.NewOTPHandler(otpSvc, signer, cfg.Development(), log), cfg.JWTSecret, limit)
	router.RegisterClient(e,
		handler.NewBookingHandler(catalog, bookingSvc, receipts, log),
		handler.NewProfileHandler(users),
		cfg.JWTSecret,
		middleware.RequireProfileComplete(users),
		middleware.RequireVerified(users, signer, log),
	)
	router.RegisterOperator(e, handler.NewVehicleHandler(catalog), cfg.JWTSecret)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

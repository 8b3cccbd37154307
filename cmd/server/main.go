package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tdnguyen/movie-ticket-booking/internal/broadcast"
	"github.com/tdnguyen/movie-ticket-booking/internal/config"
	"github.com/tdnguyen/movie-ticket-booking/internal/database"
	"github.com/tdnguyen/movie-ticket-booking/internal/handler"
	"github.com/tdnguyen/movie-ticket-booking/internal/payment"
	"github.com/tdnguyen/movie-ticket-booking/internal/queue"
	"github.com/tdnguyen/movie-ticket-booking/internal/repository"
	"github.com/tdnguyen/movie-ticket-booking/internal/router"
	"github.com/tdnguyen/movie-ticket-booking/internal/service"
	"github.com/tdnguyen/movie-ticket-booking/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	rlCfg := config.LoadRateLimitConfig()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "booking").Logger()
	if cfg.Env == "dev" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	db, err := database.Open(database.Settings{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		PingTimeout:     cfg.DBPingTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()
	if err := database.InitSchema(db); err != nil {
		logger.Fatal().Err(err).Msg("schema init failed")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn().Msg("redis unavailable, rate limiting and broadcast disabled")
	}

	userRepo := repository.NewUserRepo(db)
	productRepo := repository.NewProductRepo(db)
	showTimeRepo := repository.NewShowTimeRepo(db)
	ticketRepo := repository.NewTicketRepo(db)
	reservationRepo := repository.NewReservationRepo(db, ticketRepo)
	promotionRepo := repository.NewPromotionRepo(db)
	refundRepo := repository.NewRefundOutboxRepo(db)

	gateway := payment.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayKey, cfg.ChargeTimeout, logger)
	broadcaster := broadcast.NewRedisBroadcaster(rdb)
	publisher := queue.NewPublisher(cfg.RabbitURL, logger)

	svc := service.NewReservationService(
		userRepo,
		productRepo,
		showTimeRepo,
		ticketRepo,
		reservationRepo,
		promotionRepo,
		refundRepo,
		gateway,
		broadcaster,
		publisher,
		service.Config{
			Currency:       cfg.Currency,
			ChargeTimeout:  cfg.ChargeTimeout,
			PersistTimeout: cfg.PersistTimeout,
			FanoutTimeout:  cfg.FanoutTimeout,
		},
		logger,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.RegisterRoutes(e, handler.NewShowTimeHandler(showTimeRepo, ticketRepo))
	router.RegisterReservations(e, handler.NewReservationHandler(svc, reservationRepo), cfg.JWTSecret, rlCfg, rdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("http server starting")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return queue.StartReservationConsumer(ctx, cfg.RabbitURL, logger)
	})

	refundWorker := worker.NewRefundWorker(refundRepo, gateway, cfg.RefundPollInterval, logger)
	g.Go(func() error {
		return refundWorker.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("shutdown complete")
}

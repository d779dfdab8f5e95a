package main // Entry point package

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
	"go.uber.org/zap"

	"github.com/iliyamo/parking-space-reservation/internal/config"
	"github.com/iliyamo/parking-space-reservation/internal/database"
	"github.com/iliyamo/parking-space-reservation/internal/handler"
	"github.com/iliyamo/parking-space-reservation/internal/middleware"
	"github.com/iliyamo/parking-space-reservation/internal/notify"
	"github.com/iliyamo/parking-space-reservation/internal/payment"
	"github.com/iliyamo/parking-space-reservation/internal/queue"
	"github.com/iliyamo/parking-space-reservation/internal/receipt"
	"github.com/iliyamo/parking-space-reservation/internal/repository"
	"github.com/iliyamo/parking-space-reservation/internal/repository/memory"
	"github.com/iliyamo/parking-space-reservation/internal/router"
	"github.com/iliyamo/parking-space-reservation/internal/service"
	"github.com/iliyamo/parking-space-reservation/internal/storage"
)

// stores is the persistence selected by STORE_DRIVER.
type stores struct {
	spaces       service.SpaceStore
	reservations service.ReservationStore
	reviews      service.ReviewStore
	users        handler.UserStore
	tokens       handler.TokenStore
	ping         handler.Pinger // nil for the memory driver
	close        func() error
}

func openStores(cfg config.Config, log *zap.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store; data is lost on restart")
		m := memory.New()
		return stores{
			spaces: m.Spaces, reservations: m.Reservations, reviews: m.Reviews,
			users: m.Users, tokens: m.Tokens, close: func() error { return nil },
		}, nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return stores{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return stores{}, err
	}
	return stores{
		spaces:       repository.NewSpaceRepo(db),
		reservations: repository.NewReservationRepo(db),
		reviews:      repository.NewReviewRepo(db),
		users:        repository.NewUserRepo(db),
		tokens:       repository.NewTokenRepo(db),
		ping:         db,
		close:        db.Close,
	}, nil
}

func newLogger(env string) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if env == "dev" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func main() {
	_ = godotenv.Load() // .env is optional; real env wins

	cfg, err := config.Load()
	log := newLogger(os.Getenv("APP_ENV"))
	defer func() { _ = log.Sync() }()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	st, err := openStores(cfg, log)
	if err != nil {
		log.Fatal("open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer func() { _ = st.close() }()

	rdb := config.NewRedisClient(log)
	cacheCfg := config.LoadCacheConfig()
	rlCfg := config.LoadRateLimitConfig()

	resDeps := service.ReservationDeps{
		Spaces:       st.spaces,
		Reservations: st.reservations,
		Logger:       log,
		Timeout:      cfg.PersistenceTimeout,
	}
	spaceDeps := service.SpaceDeps{
		Spaces:  st.spaces,
		Reviews: st.reviews,
		Logger:  log,
		Timeout: cfg.PersistenceTimeout,
	}
	if inv := middleware.NewRedisInvalidator(rdb, cacheCfg.Prefix); inv != nil {
		resDeps.Cache, spaceDeps.Cache = inv, inv
	}
	var gateway *payment.StripeGateway
	if cfg.Payment.Enabled() {
		gateway = payment.NewStripeGateway(cfg.Payment.SecretKey, cfg.Payment.WebhookSecret, cfg.Payment.Currency)
		resDeps.Payments = gateway
	} else {
		log.Info("stripe not configured; prepaid reservations disabled")
	}
	if cfg.Queue.URL != "" {
		resDeps.Events = service.NewQueuePublisher(cfg.Queue.URL, log)
	}

	reservations := service.NewReservationService(resDeps)
	spaces := service.NewSpaceService(spaceDeps)
	reviews := service.NewReviewService(st.spaces, st.reviews, cfg.PersistenceTimeout)

	sweeper := service.NewSweeper(reservations, cfg.Sweeper.Schedule, cfg.Sweeper.PendingTTL, log)
	if err := sweeper.Start(); err != nil {
		log.Fatal("start sweeper", zap.Error(err))
	}

	bg, stopBG := context.WithCancel(context.Background())
	defer stopBG()
	if cfg.Queue.URL != "" {
		mailer, texter := notify.Channels(
			notify.NewSendGridMailer(cfg.Notify.SendGridAPIKey, cfg.Notify.FromEmail, cfg.Notify.FromName),
			notify.NewTwilioTexter(cfg.Notify.TwilioSID, cfg.Notify.TwilioToken, cfg.Notify.TwilioFrom),
		)
		consumer := queue.NewConsumer(cfg.Queue.URL, cfg.Queue.LogDir, notify.NewDispatcher(mailer, texter, log), log)
		go func() {
			if err := consumer.Run(bg); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("reservation consumer stopped", zap.Error(err))
			}
		}()
	}

	images, err := storage.NewImageStore(cfg.Storage.MediaDir, cfg.Storage.BaseURL, cfg.Storage.MaxEdge)
	if err != nil {
		log.Warn("image uploads disabled", zap.String("dir", cfg.Storage.MediaDir), zap.Error(err))
		images = nil
	}
	passes := receipt.NewSigner(cfg.JWTSecret)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.NewTokenBucket(rlCfg, rdb))
	if images != nil {
		e.Static("/media", cfg.Storage.MediaDir)
	}

	authH := handler.NewAuthHandler(cfg, st.users, st.tokens, log)
	spaceH := handler.NewSpaceHandler(spaces, images, log)
	resH := handler.NewReservationHandler(reservations, passes, log)
	reviewH := handler.NewReviewHandler(reviews, log)
	var payH *handler.PaymentHandler
	if gateway != nil {
		payH = handler.NewPaymentHandler(gateway, reservations, log)
	}

	router.RegisterRoutes(e, st.ping, payH)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, spaceH, reviewH, cfg.JWTSecret, middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterDriver(e, resH, reviewH, cfg.JWTSecret)
	router.RegisterOwner(e, spaceH, resH, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	sweeper.Stop(ctx)
	stopBG()
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info("stopped")
}

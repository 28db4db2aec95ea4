package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	gocache "github.com/patrickmn/go-cache"

	"github.com/careteam/mdt-api/config"
	"github.com/careteam/mdt-api/internal/email"
	"github.com/careteam/mdt-api/internal/handler"
	authHandler "github.com/careteam/mdt-api/internal/handler/auth"
	invitationHandler "github.com/careteam/mdt-api/internal/handler/invitation"
	mdtHandler "github.com/careteam/mdt-api/internal/handler/mdt"
	messageHandler "github.com/careteam/mdt-api/internal/handler/message"
	specialtyHandler "github.com/careteam/mdt-api/internal/handler/specialty"
	userHandler "github.com/careteam/mdt-api/internal/handler/user"
	"github.com/careteam/mdt-api/internal/middleware"
	"github.com/careteam/mdt-api/internal/repository/postgres"
	"github.com/careteam/mdt-api/internal/router"
	authService "github.com/careteam/mdt-api/internal/service/auth"
	invitationService "github.com/careteam/mdt-api/internal/service/invitation"
	mdtService "github.com/careteam/mdt-api/internal/service/mdt"
	messageService "github.com/careteam/mdt-api/internal/service/message"
	specialtyService "github.com/careteam/mdt-api/internal/service/specialty"
	userService "github.com/careteam/mdt-api/internal/service/user"
	"github.com/careteam/mdt-api/pkg/auth"
	"github.com/careteam/mdt-api/pkg/metrics"
	"github.com/careteam/mdt-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	baseRepo := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(baseRepo)
	specialtyRepo := postgres.NewSpecialtyRepository(baseRepo)
	mdtRepo := postgres.NewMDTRepository(baseRepo)
	invitationRepo := postgres.NewInvitationRepository(baseRepo)
	messageRepo := postgres.NewMessageRepository(baseRepo)

	// Shared infrastructure
	appMetrics := metrics.NewMetrics("mdt_api")
	jwtSvc := auth.NewJWTService(auth.Config{
		Secret:             cfg.JWT.Secret,
		RefreshSecret:      cfg.JWT.RefreshSecret,
		ExpiryHours:        cfg.JWT.ExpiryHours,
		RefreshExpiryHours: cfg.JWT.RefreshExpiryHours,
	})
	hasher := security.NewBcryptHasher(bcrypt.DefaultCost)
	emailSvc := email.NewSMTPService(cfg.SMTP)
	catalogCache := gocache.New(12*time.Hour, 1*time.Hour)

	// Services
	specialtySvc := specialtyService.NewService(specialtyRepo, catalogCache)
	authSvc := authService.NewService(userRepo, specialtyRepo, jwtSvc, hasher, emailSvc, log.Logger)
	userSvc := userService.NewService(userRepo)
	invitationSvc := invitationService.NewService(invitationRepo, mdtRepo, userRepo, emailSvc, appMetrics, log.Logger)
	mdtSvc := mdtService.NewService(mdtRepo, userRepo, specialtySvc, invitationSvc, emailSvc, appMetrics, log.Logger)
	messageSvc := messageService.NewService(messageRepo, mdtRepo, userRepo, appMetrics)

	// The catalog is fixed reference data, upserted on every start.
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := specialtySvc.Seed(seedCtx); err != nil {
		seedCancel()
		log.Fatal().Err(err).Msg("failed to seed specialty catalog")
	}
	seedCancel()

	// Handlers
	h := handler.NewHandler()
	authH := authHandler.NewHandler(authSvc)
	specialtyH := specialtyHandler.NewHandler(specialtySvc)
	userH := userHandler.NewHandler(userSvc)
	mdtH := mdtHandler.NewHandler(mdtSvc, invitationSvc)
	invitationH := invitationHandler.NewHandler(invitationSvc)
	messageH := messageHandler.NewHandler(messageSvc)

	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	rateLimit := rate.Inf
	if cfg.RateLimit.Enabled {
		rateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
	}

	r := router.NewRouter(
		authMiddleware,
		authH,
		specialtyH,
		userH,
		mdtH,
		invitationH,
		messageH,
		h,
		router.Config{
			RateLimit:     rateLimit,
			RateBurst:     cfg.RateLimit.Burst,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "mdt_api_http",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

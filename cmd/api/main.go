package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"stepup-auth/internal/config"
	"stepup-auth/internal/db"
	"stepup-auth/internal/email"
	apihttp "stepup-auth/internal/http"
	"stepup-auth/internal/repository"
	"stepup-auth/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
			if cfg.ChallengeStore == config.StoreRedis {
				cancel()
				logger.Fatal("redis required for challenge store", zap.Error(err))
			}
			redisClient = nil
		}
		cancel()
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	userRepo := repository.NewPgUserRepository(pool)
	auditRepo := repository.NewPgAuditRepository(pool)

	var (
		challengeStore repository.ChallengeRepository
		limiter        service.LoginRateLimiter
		revoked        service.RevocationStore
	)
	switch cfg.ChallengeStore {
	case config.StoreRedis:
		challengeStore = service.NewRedisChallengeStore(redisClient, cfg.ChallengeRetention)
	case config.StorePostgres:
		challengeStore = repository.NewPgChallengeRepository(pool)
	default:
		challengeStore = service.NewMemoryChallengeStore()
	}
	if redisClient != nil {
		limiter = service.NewRedisLoginRateLimiter(redisClient, cfg.LoginRateWindow, cfg.LoginRateMax)
		revoked = service.NewRedisRevocationStore(redisClient)
	} else {
		limiter = service.NewLoginRateLimiter(cfg.LoginRateWindow, cfg.LoginRateMax)
		revoked = service.NewMemoryRevocationStore()
	}

	sender := email.NewDisabledSender("email sender not configured")
	switch {
	case cfg.SendGridAPIKey != "":
		sg, err := email.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFrom, cfg.SMTPFromName, cfg.SendGridSandbox)
		if err != nil {
			logger.Warn("sendgrid sender init failed", zap.Error(err))
		} else {
			sender = sg
		}
	case cfg.SMTPHost != "":
		smtpSender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			sender = smtpSender
		}
	default:
		logger.Warn("no email provider configured, login codes cannot be delivered")
	}
	dispatcher := email.NewDispatcher(logger, sender, cfg.DeliveryWorkers, cfg.DeliveryQueue, cfg.DeliveryTimeout)
	defer dispatcher.Close()

	passwords, err := service.NewPasswordVerifier(cfg.PasswordWorkers, bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("password verifier init", zap.Error(err))
	}

	challenges := service.NewChallengeManager(logger, challengeStore, dispatcher, service.ChallengeOptions{
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
		MaxResends:  cfg.OTPMaxResends,
	})
	sessions := service.NewSessionIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL, cfg.SessionRememberTTL, revoked)
	audit := service.NewMultiAuditSink(
		service.NewZapAuditSink(logger),
		service.NewRepositoryAuditSink(logger, auditRepo),
	)
	loginSvc := service.NewLoginService(logger, userRepo, passwords, challenges, sessions, limiter, audit)

	janitor := service.NewChallengeJanitor(logger, challengeStore, cfg.SweepInterval, cfg.ChallengeRetention)
	go janitor.Run(ctx)

	authHandler := apihttp.NewAuthHandler(logger, loginSvc, sessions)
	router := apihttp.NewRouter(logger, authHandler, sessions)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("challenge_store", cfg.ChallengeStore),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

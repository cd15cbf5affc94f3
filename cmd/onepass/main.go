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
	"github.com/redis/go-redis/v9"

	"github.com/onepass-id/onepass/internal/app"
	"github.com/onepass-id/onepass/internal/cache"
	"github.com/onepass-id/onepass/internal/config"
	"github.com/onepass-id/onepass/internal/email"
	httpx "github.com/onepass-id/onepass/internal/http"
	"github.com/onepass-id/onepass/internal/http/router"
	jwtx "github.com/onepass-id/onepass/internal/jwt"
	"github.com/onepass-id/onepass/internal/oauth"
	"github.com/onepass-id/onepass/internal/observability/logger"
	"github.com/onepass-id/onepass/internal/otp"
	"github.com/onepass-id/onepass/internal/rate"
	"github.com/onepass-id/onepass/internal/session"
	"github.com/onepass-id/onepass/internal/store/core"
	"github.com/onepass-id/onepass/internal/store/memory"
	"github.com/onepass-id/onepass/internal/store/pg"
)

const codeSweepInterval = 5 * time.Minute

func main() {
	// .env es best-effort: en prod las vars vienen del entorno.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			cfgPath = "config.yaml"
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.L().Fatal("config load failed", logger.Err(err))
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: os.Getenv("LOG_LEVEL"), ServiceName: "onepass"})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	// Sin secreto de firma no se arranca: un default silencioso acá es un
	// agujero de seguridad, no una comodidad.
	issuer, err := jwtx.NewIssuer(cfg.JWT.Issuer, []byte(cfg.JWT.Secret), config.Dur(cfg.JWT.AccessTTL))
	if err != nil {
		log.Fatal("jwt issuer init failed (JWT_SECRET vacío?)", logger.Err(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var repo core.Repository
	switch cfg.Storage.Driver {
	case "postgres":
		pgStore, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{
			MaxConns:        int32(cfg.Storage.Postgres.MaxOpenConns),
			MinConns:        int32(cfg.Storage.Postgres.MaxIdleConns),
			ConnMaxLifetime: config.Dur(cfg.Storage.Postgres.ConnMaxLifetime),
		})
		if err != nil {
			log.Fatal("postgres init failed", logger.Err(err))
		}
		defer pgStore.Close()
		if cfg.Storage.Migrate {
			if err := pgStore.Migrate(ctx); err != nil {
				log.Fatal("migrations failed", logger.Err(err))
			}
		}
		repo = pgStore
	default:
		log.Warn("storage driver memory: sólo para desarrollo")
		repo = memory.New()
	}

	// Cache + rate limiter
	var (
		ca      cache.Cache
		limiter rate.Limiter
	)
	if cfg.Cache.Kind == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.Redis.Addr,
			DB:   cfg.Cache.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis unreachable", logger.Err(err))
		}
		ca = cache.NewRedis(rdb, config.Dur(cfg.Cache.Memory.DefaultTTL))
		limiter = rate.NewRedisLimiter(rdb)
	} else {
		ca = cache.NewMemory(config.Dur(cfg.Cache.Memory.DefaultTTL))
		limiter = rate.NewMemoryLimiter()
	}

	// Email
	sender := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	sender.TLSMode = cfg.SMTP.TLS
	sender.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
	mailq := email.NewQueue(sender, cfg.Email.QueueDepth)
	mailq.Start(ctx)

	// Sesiones
	sessions := session.NewManager(ca, cfg.Auth.Session.CookieName, config.Dur(cfg.Auth.Session.TTL))
	sessions.Domain = cfg.Auth.Session.Domain
	sessions.Secure = cfg.Auth.Session.Secure

	oauthSvc := oauth.NewService(repo, issuer)

	c := &app.Container{
		Cfg:      cfg,
		Store:    repo,
		Cache:    ca,
		Issuer:   issuer,
		Sessions: sessions,
		Limiter:  limiter,
		Mail:     mailq,
		OTP:      otp.NewEngine(repo, mailq),
		OAuth:    oauthSvc,
	}

	// GC de authorization codes vencidos.
	go func() {
		t := time.NewTicker(codeSweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				oauthSvc.SweepExpired(ctx)
			}
		}
	}()

	srv := httpx.NewServer(cfg.Server.Addr, router.New(c))
	go func() {
		log.Info("listening", logger.Component(cfg.Server.Addr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", logger.Err(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Warn("shutdown incomplete", logger.Err(err))
	}
	mailq.Wait()
}

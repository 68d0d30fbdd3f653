package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"photocloud.io/internal/auth"
	"photocloud.io/internal/config"
	"photocloud.io/internal/guard"
	"photocloud.io/internal/httpapi"
	"photocloud.io/internal/obs"
	"photocloud.io/internal/permcache"
	"photocloud.io/internal/ratelimit"
	"photocloud.io/internal/share"
	"photocloud.io/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.SetBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("photocloud-api: %v", err)
	}
	obs.LogEvent("info", "stopped", nil)
}

func run(ctx context.Context, cfg *config.Config) error {
	ready := httpapi.ReadyCheck{}

	// Postgres when a DSN is set, otherwise in-memory shares and no elevated users.
	var (
		shareStore share.Store     = share.NewInMemory()
		roles      auth.RoleLookup = auth.StaticRoles{}
	)
	if cfg.Database.DSN != "" {
		store, err := pg.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		shareStore = store
		roles = store.Roles()
		ready.DB = store.DB()
	} else {
		obs.LogEvent("warn", "no database configured, shares are kept in memory", nil)
	}

	var rdb *redis.Client
	if cfg.Database.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Database.RedisAddr})
		defer rdb.Close()
		ready.Redis = rdb
	}

	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		limiter = ratelimit.NewRedis(rdb, "photocloud:ratelimit:", cfg.RateLimit.Burst, cfg.RateLimit.Window)
	default:
		limiter = ratelimit.NewLocal(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.TokenSecret, auth.WithIssuer(cfg.Auth.TokenIssuer))
	if err != nil {
		return err
	}

	cache := permcache.New(
		permcache.WithTTL(cfg.Permissions.CacheTTL),
		permcache.WithCapacity(cfg.Permissions.CacheCapacity),
	)

	api := httpapi.New(httpapi.Deps{
		Guard:        guard.New(auth.ContextSessions{}, roles, cache),
		Validator:    share.NewValidator(shareStore),
		Shares:       share.NewService(shareStore, cfg.Shares.BaseURL),
		Tokens:       tokens,
		ShareLimiter: ratelimit.NewGuarded(limiter, cfg.RateLimit.Policy),
		Ready:        ready,
		Version:      version,
		TokenTTL:     cfg.Auth.TokenTTL,
		DevTokens:    cfg.Auth.DevTokens,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	health := httpapi.NewGRPCHealth(ready)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		obs.LogEvent("info", "http listening", map[string]any{"addr": srv.Addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		g.Go(func() error {
			obs.LogEvent("info", "grpc listening", map[string]any{"addr": cfg.Server.GRPCAddr})
			return grpcSrv.Serve(lis)
		})
	}

	g.Go(func() error {
		health.Run(gctx, 0)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		obs.LogEvent("info", "shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buildplan/buildplan/internal/api"
	"github.com/buildplan/buildplan/internal/audit"
	"github.com/buildplan/buildplan/internal/config"
	"github.com/buildplan/buildplan/internal/logging"
	"github.com/buildplan/buildplan/internal/metrics"
	"github.com/buildplan/buildplan/internal/service"
	"github.com/buildplan/buildplan/internal/store"
	"github.com/buildplan/buildplan/internal/web/auth"
	"github.com/buildplan/buildplan/internal/web/profiling"
	"github.com/buildplan/buildplan/internal/web/ratelimit"
	"github.com/buildplan/buildplan/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Long: `Run the HTTP API server until SIGINT or SIGTERM.

Requires database.url and an auth.jwt_secret of at least 32 characters.
Run "buildplan migrate up" first on a new database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireServe(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return serve(cmd.Context(), cfg, logger)
		},
	}
}

// limiter is an attempt limiter plus the resources it holds
type limiter struct {
	ratelimit.AttemptLimiter
	close func() error
}

// newLimiter builds the configured attempt limiter backend
func newLimiter(cfg config.RateLimitConfig, auditLog audit.Logger, m *metrics.Metrics) (*limiter, error) {
	lockout := ratelimit.LockoutConfig{
		MaxAttempts:     cfg.MaxAttempts,
		Window:          cfg.Window,
		LockoutDuration: cfg.LockoutDuration,
		BucketSize:      cfg.BucketSize,
		CleanupInterval: cfg.CleanupInterval,
		ProtectedPaths:  cfg.ProtectedPaths,
		Shards:          cfg.Shards,
		Audit:           auditLog,
		OnSweep:         m.SetTrackedKeys,
	}

	if cfg.Backend != config.BackendRedis {
		l, err := ratelimit.NewLockoutWithConfig(lockout)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		return &limiter{AttemptLimiter: l, close: l.Close}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	l, err := ratelimit.NewRedisLockout(ratelimit.RedisLockoutConfig{
		Client:  client,
		Prefix:  cfg.Redis.Prefix,
		Lockout: lockout,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return &limiter{AttemptLimiter: l, close: client.Close}, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	auditLog := audit.NewZapLogger(logger, m)

	tokens, err := auth.NewTokenServiceWithConfig(auth.TokenConfig{
		Secret: cfg.Auth.JWTSecret,
		TTL:    cfg.Auth.TokenTTL,
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		return err
	}

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	st := store.New(db)

	lim, err := newLimiter(cfg.RateLimit, auditLog, m)
	if err != nil {
		st.Close()
		return err
	}

	var psrv *server.Server
	if cfg.Profiling.Enabled {
		if psrv, err = startProfiling(cfg.Profiling, logger); err != nil {
			lim.close()
			st.Close()
			return err
		}
	}

	router := api.NewRouter(api.Config{
		Auth:        service.NewAuthService(st.Users, tokens, auditLog, logger),
		Contacts:    service.NewContactService(st.Contacts),
		Projects:    service.NewProjectService(st.Projects, st.Users),
		Estimates:   service.NewEstimateService(st.Estimates, st.Projects),
		Tokens:      tokens,
		Limiter:     lim,
		FailOpen:    cfg.RateLimit.FailOpen,
		Health:      st,
		Logger:      logger,
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
	})

	srv, err := server.New(&server.Config{
		Address:           cfg.Server.Address(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		Logger:            logger,
	})
	if err == nil {
		err = srv.Listen()
	}
	if err != nil {
		if psrv != nil {
			psrv.Shutdown(context.Background())
		}
		lim.close()
		st.Close()
		return err
	}

	logger.Info("rate limiter ready",
		zap.String("backend", cfg.RateLimit.Backend),
		zap.Int("max_attempts", cfg.RateLimit.MaxAttempts),
		zap.Duration("window", cfg.RateLimit.Window),
		zap.Duration("lockout", cfg.RateLimit.LockoutDuration),
	)

	gs := server.NewGracefulShutdown(srv, &server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Logger:  logger,
	})
	if psrv != nil {
		gs.RegisterHook("profiling", psrv.Shutdown)
	}
	gs.RegisterHook("rate limiter", func(context.Context) error { return lim.close() })
	gs.RegisterHook("database", func(context.Context) error { return st.Close() })

	return gs.Run(ctx)
}

// startProfiling serves pprof on its own listener until shut down
func startProfiling(cfg config.ProfilingConfig, logger *zap.Logger) (*server.Server, error) {
	srv, err := server.New(&server.Config{
		Address: cfg.Addr,
		Handler: profiling.Handler(profiling.Config{
			Path:          cfg.Path,
			BlockRate:     cfg.BlockRate,
			MutexFraction: cfg.MutexFraction,
		}),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	if err := srv.Listen(); err != nil {
		return nil, fmt.Errorf("profiling: %w", err)
	}

	go func() {
		if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("profiling server failed", zap.Error(err))
		}
	}()
	logger.Info("profiling enabled", zap.String("addr", srv.Addr()), zap.String("path", cfg.Path))
	return srv, nil
}

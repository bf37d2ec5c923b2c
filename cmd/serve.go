package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/invitation-core/internal/auth"
	"github.com/Shivanand-hulikatti/invitation-core/internal/botgate"
	"github.com/Shivanand-hulikatti/invitation-core/internal/config"
	"github.com/Shivanand-hulikatti/invitation-core/internal/database"
	"github.com/Shivanand-hulikatti/invitation-core/internal/events"
	"github.com/Shivanand-hulikatti/invitation-core/internal/handler"
	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
	"github.com/Shivanand-hulikatti/invitation-core/internal/ratelimit"
	"github.com/Shivanand-hulikatti/invitation-core/internal/repository"
	"github.com/Shivanand-hulikatti/invitation-core/internal/service"
)

func serveCommand(dev *bool) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger, err := newLogger(*dev)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			cfg, err := config.Load()
			if err != nil {
				logger.Error("load config", zap.Error(err))
				return err
			}
			if err := serve(cmd.Context(), cfg, migrate, logger); err != nil {
				logger.Error("server stopped with error", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, migrate bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.DB, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("schema applied")
	}

	// ── 2. Optional collaborators ─────────────────────────────────────────
	var store ratelimit.Store
	if cfg.RedisURL != "" {
		client, err := ratelimit.Connect(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, rate limits fail open until it recovers",
				zap.Bool("degraded", true), zap.Error(err))
		}
		cancel()
		store = ratelimit.NewRedisStore(client)
	} else {
		logger.Warn("RATE_LIMIT_REDIS_URL not set, rate limiting disabled", zap.Bool("degraded", true))
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nats, err := events.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("nats unavailable, domain events disabled", zap.Bool("degraded", true), zap.Error(err))
		} else {
			defer nats.Close()
			publisher = nats
		}
	}

	authn, err := auth.New(cfg.JWTSecret, logger)
	if err != nil {
		return fmt.Errorf("AUTH_JWT_SECRET: %w", err)
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	entitlementRepo := repository.NewEntitlementRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	invitationRepo := repository.NewInvitationRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)

	ledger := service.NewQuotaLedger(entitlementRepo, cfg.BaseTier, logger)
	saga := service.NewProvisioner(ledger, catalogRepo, invitationRepo, publisher, cfg.SagaCompletionTimeout, logger)
	gateway := service.NewGateway(
		invitationRepo,
		submissionRepo,
		ratelimit.New(store, logger),
		botgate.New(cfg.TurnstileSecret, cfg.TurnstileTimeout, logger, botgate.WithVerifyURL(cfg.TurnstileVerifyURL)),
		map[model.SubmissionKind]service.RateRule{
			model.KindRSVP:    {Limit: cfg.RSVPRateLimit, Window: cfg.RSVPRateWindow},
			model.KindComment: {Limit: cfg.CommentRateLimit, Window: cfg.CommentRateWindow},
		},
		publisher,
		logger,
	)
	h := handler.New(saga, ledger, gateway, cfg.AdminToken, cfg.TrustedProxies, logger)

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h.Routes(authn.Middleware),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}

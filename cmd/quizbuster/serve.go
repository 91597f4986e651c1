package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/quizbuster/quizbuster-api/internal/api"
	"github.com/quizbuster/quizbuster-api/internal/api/handler"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
	"github.com/quizbuster/quizbuster-api/internal/core/service"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/config"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/db/memory"
	mongostore "github.com/quizbuster/quizbuster-api/internal/infrastructure/db/mongo"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/db/postgres"
	redisstore "github.com/quizbuster/quizbuster-api/internal/infrastructure/db/redis"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/queue"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/security"
	"github.com/quizbuster/quizbuster-api/internal/pkg/clock"
	"github.com/quizbuster/quizbuster-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  `Run the HTTP API until SIGINT or SIGTERM, then drain in-flight requests and audit events.`,
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

// store is the persistence selected by STORE_DRIVER.
type store struct {
	name   string
	users  ports.UserRepository
	events ports.ScoreEventRecorder
	close  func(ctx context.Context)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "quizbuster",
	})
	log := logger.Component("server")

	st, err := openStore(ctx, cfg, logger.Component("store"))
	if err != nil {
		return err
	}
	defer st.close(context.Background())

	ready := map[string]handler.Pinger{st.name: st.users}

	var replay ports.ReplayStore
	if cfg.Redis.Addr != "" {
		client, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			return oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		defer func() { _ = client.Close() }()

		rs := redisstore.NewReplayStore(client, cfg.Redis.IdempotencyTTL)
		replay = rs
		ready["redis"] = rs
		log.Info().Str("addr", cfg.Redis.Addr).Msg("idempotent score updates enabled")
	}

	hasher := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	codec, err := security.NewJWTCodec(security.TokenConfig{
		Secret:    cfg.Auth.JWTSecret,
		Algorithm: cfg.Auth.JWTAlgorithm,
		TTL:       cfg.TokenTTL(),
	})
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	dispatcher := queue.NewDispatcher(cfg.Audit.Workers, st.events, logger.Component("audit"))
	dispatcher.Start(context.WithoutCancel(ctx))

	clk := clock.New()
	e := api.NewRouter(api.Deps{
		Auth:            service.NewAuthService(st.users, hasher, codec, clk, logger.Component("auth")),
		Score:           service.NewScoreService(st.users, replay, dispatcher, clk, logger.Component("score")),
		Users:           service.NewUserService(st.users, logger.Component("users")),
		Ready:           ready,
		CORSOrigins:     cfg.CORSOrigins,
		LeaderboardSize: cfg.Leaderboard,
		Log:             logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", st.name).Msg("listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return oops.Code("SERVER_FAILED").Wrap(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("audit queue not drained")
	}
	log.Info().Msg("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		if cfg.Postgres.AutoMigrate {
			if err := migrateUp(cfg.Postgres.URL); err != nil {
				return nil, err
			}
			log.Info().Msg("postgres schema up to date")
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns, log)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
		}
		return &store{
			name:   config.StorePostgres,
			users:  postgres.NewUserRepository(pool),
			events: postgres.NewScoreEventRecorder(pool),
			close:  func(context.Context) { pool.Close() },
		}, nil

	case config.StoreMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database}, log)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
		}
		users := mongostore.NewUserRepository(db)
		events := mongostore.NewScoreEventRepository(db)
		if err := errors.Join(users.EnsureIndexes(ctx), events.EnsureIndexes(ctx)); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, oops.Code("DB_INDEX_FAILED").Wrap(err)
		}
		return &store{
			name:   config.StoreMongo,
			users:  users,
			events: events,
			close: func(ctx context.Context) {
				if err := client.Disconnect(ctx); err != nil {
					log.Error().Err(err).Msg("mongo disconnect")
				}
			},
		}, nil

	default:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return &store{
			name:   config.StoreMemory,
			users:  memory.NewUserRepository(),
			events: memory.NewScoreEventRecorder(),
			close:  func(context.Context) {},
		}, nil
	}
}

func migrateUp(databaseURL string) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() { _ = m.Close() }()

	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("direction", "up").Wrap(err)
	}
	return nil
}

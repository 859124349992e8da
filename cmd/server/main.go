package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	rediscache "github.com/wattsup/nummus/internal/adapter/cache/redis"
	grpcadapter "github.com/wattsup/nummus/internal/adapter/grpc"
	"github.com/wattsup/nummus/internal/adapter/repository/memory"
	"github.com/wattsup/nummus/internal/adapter/repository/postgres"
	"github.com/wattsup/nummus/internal/config"
	"github.com/wattsup/nummus/internal/domain"
	"github.com/wattsup/nummus/internal/logger"
	"github.com/wattsup/nummus/internal/scheduler"
	"github.com/wattsup/nummus/internal/usecase/adjuster"
	"github.com/wattsup/nummus/internal/usecase/batch"
	"github.com/wattsup/nummus/internal/usecase/ledger"
	"github.com/wattsup/nummus/internal/usecase/seeder"
	"github.com/wattsup/nummus/internal/usecase/valuation"
)

// stores bundles the repositories of one backend
type stores struct {
	transactor      domain.Transactor
	accounts        domain.AccountRepository
	assets          domain.AssetRepository
	transactions    domain.TransactionRepository
	valuations      domain.ValuationRepository
	corporateSplits domain.CorporateSplitRepository
	close           func() error
}

func main() {
	cfg := config.MustLoad()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	ctx := log.WithContext(context.Background())

	// 1. Setup Store
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("Failed to open store")
	}
	defer st.close()

	// 2. Optional series cache
	var cache domain.SeriesCache
	if cfg.Redis.Enabled {
		rdb, err := rediscache.NewClient(ctx, rediscache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rdb.Close()
		cache = rediscache.NewSeriesCache(rdb, cfg.Redis.CacheTTL, log)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Series cache enabled")
	}

	// 3. Initialize Services (Use Cases)
	adjusterService := adjuster.NewService(st.transactor, st.assets, st.transactions, st.corporateSplits, cache, log)
	valuationService := valuation.NewService(st.transactor, st.transactions, st.valuations, log)
	planner := batch.NewPlanner(st.transactor, st.accounts, st.assets, st.transactions, st.valuations, cache, log)
	ledgerService := ledger.NewService(st.transactor, st.accounts, st.assets, st.transactions, st.valuations, adjusterService, cache, log)

	if cfg.SeedDemo {
		demo := seeder.NewDemoSeeder(st.accounts, ledgerService, adjusterService, log)
		if err := demo.Seed(ctx, domain.OrdinalFromTime(time.Now())); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed demo ledger")
		}
	}

	// 4. Reconciliation job
	if cfg.Jobs.ReconcileInterval > 0 {
		sched, err := scheduler.New(log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create scheduler")
		}
		if err := sched.NewIntervalJob("recompute_adjusted_quantities", adjusterService.RecomputeAll, cfg.Jobs.ReconcileInterval, false); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule reconciliation")
		}
		sched.Start()
		defer sched.Stop()
	}

	// 5. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.RequestIDInterceptor(log),
			grpcadapter.AuthInterceptor(cfg.GRPC.APIToken),
		),
	)

	grpcadapter.RegisterValuationServiceServer(grpcServer, grpcadapter.NewServer(
		valuationService, planner, adjusterService, ledgerService, cfg.GRPC.MaxRangeDays,
	))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcadapter.ServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPC.Addr).Msg("Failed to listen")
	}

	go func() {
		log.Info().Str("addr", cfg.GRPC.Addr).Str("store", cfg.Store).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to serve gRPC server")
		}
	}()

	// Graceful shutdown
	waitForShutdown(grpcServer, healthServer, log)
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("Using in-memory store, data is lost on exit")
		store := memory.New()
		return &stores{
			transactor:      store,
			accounts:        memory.NewAccountRepository(store),
			assets:          memory.NewAssetRepository(store),
			transactions:    memory.NewTransactionRepository(store),
			valuations:      memory.NewValuationRepository(store),
			corporateSplits: memory.NewCorporateSplitRepository(store),
			close:           func() error { return nil },
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := postgres.NewDB(connectCtx, cfg.Postgres.DSN(), postgres.Options{
		Driver:          cfg.Postgres.Driver,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("driver", cfg.Postgres.Driver).Msg("Postgres connected and migrated")

	return &stores{
		transactor:      db,
		accounts:        postgres.NewAccountRepository(db),
		assets:          postgres.NewAssetRepository(db),
		transactions:    postgres.NewTransactionRepository(db),
		valuations:      postgres.NewValuationRepository(db),
		corporateSplits: postgres.NewCorporateSplitRepository(db),
		close:           db.Close,
	}, nil
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(grpcServer *grpclib.Server, healthServer *health.Server, log zerolog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")

	healthServer.Shutdown()
	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")
}

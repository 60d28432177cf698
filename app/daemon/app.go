package daemon

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/meridianlabs/lendx/app/indexer"
	"github.com/meridianlabs/lendx/app/monitor"
	"github.com/meridianlabs/lendx/app/reconciler"
	"github.com/meridianlabs/lendx/app/risk"
	"github.com/meridianlabs/lendx/pkg/config"
	"github.com/meridianlabs/lendx/pkg/db"
	"github.com/meridianlabs/lendx/pkg/logging"
	"github.com/meridianlabs/lendx/pkg/oracle"
	"github.com/meridianlabs/lendx/pkg/registry"
	"github.com/meridianlabs/lendx/pkg/rpc"
	"github.com/meridianlabs/lendx/pkg/schedule"
	"github.com/meridianlabs/lendx/pkg/utils"
	"go.uber.org/zap"
)

// App wires the indexer, monitor, reconcilers and risk engine onto one
// scheduler against one shared store.
type App struct {
	Logger    *zap.Logger
	Store     *db.Store
	Scheduler *schedule.Scheduler
	Server    *http.Server

	ready atomic.Bool
}

// Initialize builds the full daemon: config, store, RPC clients, and every
// scheduled task.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	cfg, err := config.Load(utils.Env("LENDX_CONFIG", "lendx.yaml"))
	if err != nil {
		logger.Fatal("Unable to load config", zap.Error(err))
	}

	reg, err := registry.New(cfg)
	if err != nil {
		logger.Fatal("Unable to build asset registry", zap.Error(err))
	}

	store, err := db.NewStore(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to initialize store", zap.Error(err))
	}
	if err := store.SyncAssets(ctx, cfg.Assets); err != nil {
		logger.Fatal("Unable to persist asset registry", zap.Error(err))
	}

	rpcEndpoints := strings.Split(utils.Env("RPC_ENDPOINTS", "http://localhost:8000"), ",")
	rpcHTTP := rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints:       rpcEndpoints,
		RPS:             utils.EnvInt("RPC_RPS", 20),
		Burst:           utils.EnvInt("RPC_BURST", 40),
		BreakerFailures: 5,
		BreakerCooldown: utils.EnvDuration("RPC_BREAKER_COOLDOWN", 10*time.Second),
	})

	oracleEndpoints := strings.Split(utils.Env("ORACLE_ENDPOINTS", ""), ",")
	oracleHTTP := rpcHTTP
	if oracleEndpoints[0] != "" {
		oracleHTTP = rpc.NewHTTPWithOpts(rpc.Opts{Endpoints: oracleEndpoints})
	}

	ledger := rpc.NewClient(rpcHTTP)
	invoker := rpc.NewInvoker(rpcHTTP)
	prices := oracle.NewClient(oracleHTTP)

	ix := indexer.New(logger, store, ledger, reg, cfg)
	mon := monitor.New(logger, store, prices, invoker, reg)
	posRec := reconciler.NewPositionReconciler(logger, store, invoker, reg)
	stakeRec := reconciler.NewStakeReconciler(logger, store)
	engine := risk.NewEngine(logger, store, reg, cfg)

	sched := schedule.New(logger)
	for _, j := range []struct {
		name  string
		every time.Duration
		fn    func(context.Context) error
	}{
		{"indexer", cfg.Indexer.PollInterval, ix.Run},
		{"monitor", cfg.Monitor.PollInterval, mon.Run},
		{"reconcile_positions", cfg.Reconciler.PollInterval, posRec.Run},
		{"reconcile_stakes", cfg.Reconciler.PollInterval, stakeRec.Run},
		{"risk_metrics", cfg.Risk.MetricsInterval, engine.RunMetrics},
		{"risk_profiles", cfg.Risk.ProfilesInterval, engine.RunProfiles},
	} {
		if err := sched.Add(j.name, j.every, j.fn); err != nil {
			logger.Fatal("Unable to register job", zap.String("job", j.name), zap.Error(err))
		}
	}

	app := &App{
		Logger:    logger,
		Store:     store,
		Scheduler: sched,
	}
	app.setupServer()
	return app
}

func (a *App) setupServer() {
	addr := utils.Env("ADDR", ":3000")

	r := mux.NewRouter()
	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if a.ready.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})).Methods("GET")

	a.Server = &http.Server{Addr: addr, Handler: r}
}

// Start runs the daemon until the context is canceled. Readiness flips on
// once every job has completed its bootstrap pass.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()

	a.Scheduler.Start(ctx)
	a.ready.Store(true)

	<-ctx.Done()
	a.Stop()
}

// Stop drains in-flight job passes, then shuts everything down.
func (a *App) Stop() {
	a.ready.Store(false)
	a.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	a.Store.Close()
	a.Logger.Info("Daemon stopped")
}

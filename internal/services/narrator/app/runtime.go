// Package app wires the narrator runtime: storage, generation queue,
// approval coordinator, HTTP API and gRPC health endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/gmloop/internal/platform/grpc"
	"github.com/louisbranch/gmloop/internal/platform/id"
	"github.com/louisbranch/gmloop/internal/platform/timeouts"
	"github.com/louisbranch/gmloop/internal/services/narrator/approval"
	"github.com/louisbranch/gmloop/internal/services/narrator/audit"
	"github.com/louisbranch/gmloop/internal/services/narrator/catalog"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/generation"
	"github.com/louisbranch/gmloop/internal/services/narrator/notify"
	"github.com/louisbranch/gmloop/internal/services/narrator/orchestrator"
	"github.com/louisbranch/gmloop/internal/services/narrator/queue"
	"github.com/louisbranch/gmloop/internal/services/narrator/settings"
	narratorsqlite "github.com/louisbranch/gmloop/internal/services/narrator/storage/sqlite"
	"github.com/louisbranch/gmloop/internal/services/narrator/transport/httpapi"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// RuntimeConfig controls narrator startup and dependencies.
type RuntimeConfig struct {
	HTTPAddr string
	GRPCAddr string
	DBPath   string
	// CatalogPath is an optional YAML catalog imported at startup.
	CatalogPath string
	// AuditDir enables the compressed state-change log when set.
	AuditDir string

	JWTSecret string
	JWTIssuer string

	OpenAIURL     string
	OpenAIKey     string
	OpenAIModel   string
	RetryAttempts uint

	BatchSize        int
	MaxConns         int
	RecoveryInterval time.Duration
}

const (
	defaultHTTPAddr      = ":8095"
	defaultGRPCAddr      = ":8096"
	defaultDBPath        = "data/narrator.db"
	defaultJWTIssuer     = "gmloop"
	defaultRetryAttempts = 3
	healthService        = "narrator.runtime"
)

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(cfg.GRPCAddr) == "" {
		cfg.GRPCAddr = defaultGRPCAddr
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if strings.TrimSpace(cfg.JWTIssuer) == "" {
		cfg.JWTIssuer = defaultJWTIssuer
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = timeouts.QueueRecovery
	}
	return cfg
}

// runtime holds the wired components of one narrator process.
type runtime struct {
	store   *narratorsqlite.Store
	audit   *audit.Log
	hub     *notify.Hub
	queue   *queue.Queue
	coord   *approval.Coordinator
	handler http.Handler
}

func (r *runtime) close() {
	if r.audit != nil {
		if err := r.audit.Close(); err != nil {
			log.Printf("close audit log: %v", err)
		}
	}
	if err := r.store.Close(); err != nil {
		log.Printf("close narrator sqlite store: %v", err)
	}
}

// build opens storage and wires every component. It does not listen.
func build(ctx context.Context, cfg RuntimeConfig) (*runtime, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create narrator storage dir: %w", err)
		}
	}
	tokens, err := httpapi.NewTokens([]byte(cfg.JWTSecret), cfg.JWTIssuer, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure tokens: %w", err)
	}

	store, err := narratorsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open narrator sqlite store: %w", err)
	}
	rt := &runtime{store: store, hub: notify.NewHub(timeouts.WebsocketWrite)}

	if strings.TrimSpace(cfg.CatalogPath) != "" {
		c, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		summary, err := catalog.Import(ctx, store, c)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("import catalog: %w", err)
		}
		log.Printf("catalog %s imported: %d events, %d chains, %d challenges", c.WorldID, summary.Events, summary.Chains, summary.Challenges)
	}

	var (
		changeLog approval.ChangeLog
		changes   httpapi.Changes
	)
	if strings.TrimSpace(cfg.AuditDir) != "" {
		rt.audit, err = audit.Open(cfg.AuditDir, time.Now)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		changeLog = rt.audit
		changes = rt.audit
	}

	provider := settings.NewStoreProvider(store, time.Now)
	backend := generation.WithRetry(generation.NewOpenAIBackend(generation.OpenAIConfig{
		ResponsesURL: cfg.OpenAIURL,
		APIKey:       cfg.OpenAIKey,
		Model:        cfg.OpenAIModel,
		Timeout:      timeouts.GenerationCall,
	}), generation.RetryConfig{MaxAttempts: cfg.RetryAttempts})

	rt.queue = queue.New(queue.Config{
		Backend:   backend,
		Names:     queue.StoreNames{Challenges: store, Events: store},
		Emitter:   rt.hub,
		Settings:  provider,
		BatchSize: cfg.BatchSize,
	})
	rt.coord = approval.New(approval.Config{
		Journal:   store,
		Executor:  outcome.NewExecutor(store, time.Now),
		Requester: rt.queue,
		Settings:  provider,
		Emitter:   rt.hub,
		ChangeLog: changeLog,
		Progress:  store,
	})
	rt.queue.UseSink(rt.coord)
	if _, err := rt.coord.Recover(ctx); err != nil {
		rt.close()
		return nil, fmt.Errorf("recover pending approvals: %w", err)
	}

	deps := httpapi.Deps{
		Approvals:  rt.coord,
		Generation: rt.queue,
		Events: orchestrator.New(orchestrator.Stores{
			Worlds:     store,
			Characters: store,
			NPCs:       store,
			Events:     store,
			Progress:   store,
		}, time.Now),
		Challenges: store,
		Settings:   provider,
		Stream:     rt.hub,
		Changes:    changes,
		Tokens:     tokens,
		NewID:      id.NewResolution,
	}
	rt.handler, err = httpapi.NewRouter(deps)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("build router: %w", err)
	}
	return rt, nil
}

// Run starts the narrator and blocks until ctx ends or a server fails.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()

	rt, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on narrator http %s: %w", cfg.HTTPAddr, err)
	}
	if cfg.MaxConns > 0 {
		httpListener = netutil.LimitListener(httpListener, cfg.MaxConns)
	}
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("listen on narrator grpc %s: %w", cfg.GRPCAddr, err)
	}

	httpServer := &http.Server{
		Handler:           rt.handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	grpcServer, healthServer := platformgrpc.NewHealthServer(healthService)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := rt.queue.RunWorker(gctx, cfg.RecoveryInterval); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("generation worker: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		log.Printf("narrator http listening at %v", httpListener.Addr())
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		log.Printf("narrator grpc health listening at %v", grpcListener.Addr())
		return grpcServer.Serve(grpcListener)
	})
	group.Go(func() error {
		<-gctx.Done()
		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown http: %v", err)
		}
		if err := rt.queue.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown generation queue: %v", err)
		}
		grpcServer.GracefulStop()
		return nil
	})
	return group.Wait()
}

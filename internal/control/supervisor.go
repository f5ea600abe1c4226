package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/faultkeeper/internal/api"
	"github.com/vietddude/faultkeeper/internal/core/config"
	"github.com/vietddude/faultkeeper/internal/core/domain"
	redisclient "github.com/vietddude/faultkeeper/internal/infra/redis"
	"github.com/vietddude/faultkeeper/internal/resilience/monitor"
	"github.com/vietddude/faultkeeper/internal/resilience/recovery"
	"github.com/vietddude/faultkeeper/internal/resilience/report"
	"github.com/vietddude/faultkeeper/internal/resilience/retry"
	"github.com/vietddude/faultkeeper/internal/resilience/tracker"
)

// ErrAlreadyStarted is returned by Start on a running supervisor.
var ErrAlreadyStarted = errors.New("supervisor already started")

const shutdownTimeout = 5 * time.Second

// Supervisor wires the resilience subsystem together and owns its background work.
type Supervisor struct {
	cfg         *config.AppConfig
	tracker     *tracker.Tracker
	orch        *recovery.Orchestrator
	executor    *retry.Executor
	reporter    *report.Reporter
	monitor     *monitor.Monitor
	events      *recovery.Broadcaster
	server      *api.Server
	grpcHealth  *api.GRPCHealth
	redisClient *redisclient.Client
	publisher   *redisclient.Publisher
	log         *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan error
	httpAddr string
}

// New builds every component from cfg. Redis is optional: a failed
// connection is logged and publishing is disabled.
func New(cfg *config.AppConfig) (*Supervisor, error) {
	log := slog.Default().With("component", "supervisor")

	table, err := cfg.Resilience.PolicyTable()
	if err != nil {
		return nil, fmt.Errorf("failed to build policy table: %w", err)
	}
	tr := tracker.New(table, tracker.WithWindow(cfg.Resilience.TrackingWindow))

	rc := cfg.Resilience.RecoveryConfig()
	names := make([]string, 0, len(rc.Components))
	for _, c := range rc.Components {
		names = append(names, c.Name)
	}

	events := recovery.NewBroadcaster()
	opts := []recovery.Option{recovery.WithSink(events)}

	var grpcHealth *api.GRPCHealth
	if cfg.Server.GRPCPort != 0 {
		grpcHealth = api.NewGRPCHealth(cfg.Server.GRPCPort, names)
		opts = append(opts, recovery.WithSink(grpcHealth))
	}

	var (
		redisClient *redisclient.Client
		publisher   *redisclient.Publisher
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, event publishing disabled", "error", err)
		} else {
			publisher = redisclient.NewPublisher(redisClient, cfg.Redis)
			opts = append(opts, recovery.WithSink(publisher))
			log.Info("Publishing health events to Redis", "channel", cfg.Redis.Channel)
		}
	}

	orch, err := recovery.New(rc, tr, opts...)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, fmt.Errorf("failed to init orchestrator: %w", err)
	}

	s := &Supervisor{
		cfg:         cfg,
		tracker:     tr,
		orch:        orch,
		executor:    retry.NewExecutor(table, tr),
		reporter:    report.New(orch, tr),
		monitor:     monitor.New(orch, cfg.Resilience.MonitorSettings()),
		events:      events,
		grpcHealth:  grpcHealth,
		redisClient: redisClient,
		publisher:   publisher,
		log:         log,
	}
	s.server = api.NewServer(s, api.Config{
		Port:      cfg.Server.Port,
		RateLimit: cfg.Admin.RateLimit,
		Burst:     cfg.Admin.Burst,
	})

	// Built-in strategies clear the tracking of the category the component feeds.
	builtin := map[string]domain.Category{
		domain.ComponentImagePipeline: domain.CategoryImageLoading,
		domain.ComponentCarousel:      domain.CategoryFolderAccess,
	}
	for name, category := range builtin {
		err := s.RegisterStrategy(name, recovery.CategoryReset{Tracker: tr, Category: category})
		if err != nil && !errors.Is(err, recovery.ErrUnknownComponent) {
			return nil, err
		}
	}

	log.Info("Supervisor initialized",
		"components", len(names),
		"critical", cfg.CriticalComponents(),
		"grpc", grpcHealth != nil,
		"redis", publisher != nil,
	)
	return s, nil
}

// RegisterStrategy installs the recovery action of a component, bounded by
// the configured strategy timeout.
func (s *Supervisor) RegisterStrategy(name string, r recovery.Recoverable) error {
	if r != nil && s.cfg.Resilience.StrategyTimeout > 0 {
		r = recovery.WithTimeout(r, s.cfg.Resilience.StrategyTimeout)
	}
	return s.orch.RegisterStrategy(name, r)
}

// Start binds the listeners and launches the monitor, the publisher and the servers.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	httpLn, err := s.server.Listen()
	if err != nil {
		return err
	}
	var grpcLn net.Listener
	if s.grpcHealth != nil {
		grpcLn, err = s.grpcHealth.Listen()
		if err != nil {
			_ = httpLn.Close()
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.monitor.Run(gctx) })
	if s.publisher != nil {
		g.Go(func() error { return s.publisher.Run(gctx) })
	}
	g.Go(func() error { return s.server.Serve(httpLn) })
	if grpcLn != nil {
		g.Go(func() error { return s.grpcHealth.Serve(grpcLn) })
	}
	// Any member failing, or the caller cancelling, takes the servers down.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, release := context.WithTimeout(context.Background(), shutdownTimeout)
		defer release()
		if s.grpcHealth != nil {
			s.grpcHealth.Stop()
		}
		return s.server.Stop(shutdownCtx)
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	s.cancel = cancel
	s.done = done
	s.httpAddr = httpLn.Addr().String()

	s.log.Info("Supervisor started", "http", s.httpAddr)
	return nil
}

// Stop cancels the background work and waits for it, bounded by ctx.
// Stopping a stopped supervisor only releases the Redis connection.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.log.Info("Stopping supervisor...")

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = fmt.Errorf("supervisor shutdown: %w", ctx.Err())
		}
	}

	s.events.Close()
	if s.redisClient != nil {
		if cerr := s.redisClient.Close(); cerr != nil {
			s.log.Warn("Failed to close Redis", "error", cerr)
		}
	}
	return err
}

// HTTPAddr returns the bound HTTP address once started.
func (s *Supervisor) HTTPAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

// Events subscribes to orchestrator events. Call cancel to unsubscribe.
func (s *Supervisor) Events(buffer int) (<-chan recovery.Event, func()) {
	return s.events.Subscribe(buffer)
}

// SystemStatus implements api.Controller.
func (s *Supervisor) SystemStatus() recovery.Snapshot {
	return s.orch.SystemStatus()
}

// ForceRecovery implements api.Controller.
func (s *Supervisor) ForceRecovery(component string) bool {
	return s.orch.ForceRecovery(component)
}

// ResetComponent implements api.Controller.
func (s *Supervisor) ResetComponent(component string) error {
	return s.orch.ResetComponent(component)
}

// ResetErrors implements api.Controller. An empty category clears everything.
func (s *Supervisor) ResetErrors(category string) error {
	if category == "" {
		s.tracker.ResetAll()
		return nil
	}
	c, err := domain.ParseCategory(category)
	if err != nil {
		return fmt.Errorf("%w: %s", api.ErrUnknownCategory, category)
	}
	s.tracker.Reset(c)
	return nil
}

// Tracker returns the failure tracker.
func (s *Supervisor) Tracker() *tracker.Tracker { return s.tracker }

// Orchestrator returns the recovery orchestrator.
func (s *Supervisor) Orchestrator() *recovery.Orchestrator { return s.orch }

// Executor returns the retry executor bound to the tracker.
func (s *Supervisor) Executor() *retry.Executor { return s.executor }

// Reporter returns the convenience reporter.
func (s *Supervisor) Reporter() *report.Reporter { return s.reporter }

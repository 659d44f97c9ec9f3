package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/topolane/topolane/internal/config"
	"github.com/topolane/topolane/internal/engine"
	"github.com/topolane/topolane/internal/governor"
	"github.com/topolane/topolane/internal/lifecycle"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/metrics"
	"github.com/topolane/topolane/internal/monitor"
	"github.com/topolane/topolane/internal/monitor/rules"
	"github.com/topolane/topolane/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync/monitoring loop and metrics endpoint",
	Long: `Starts the monitoring loop (scheduled engine sync plus alert
evaluation and dispatch), a periodic governor confirmation-expiry sweep,
the Prometheus metrics endpoint, and OTel tracing, wired together through
a dependency-ordered lifecycle manager.`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		HandleError(err, "configuration error")
	}

	if err := setupLog(); err != nil {
		HandleError(err, "failed to set up logging")
	}
	logger := logging.GetLogger("serve")
	logger.Info("starting topolane v%s", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		HandleError(err, "failed to open store")
	}

	mx := metrics.NewMetrics(prometheus.DefaultRegisterer)

	eng := engine.New(st)
	gov := governor.New(st, governor.WithConfirmationTTL(cfg.Governor.ConfirmationTTL), governor.WithMetrics(mx))

	mon := monitor.New(eng, st,
		monitor.WithSyncInterval(cfg.Monitor.SyncInterval),
		monitor.WithAlertCooldown(cfg.Monitor.AlertCooldown),
		monitor.WithDestination(monitor.NewConsoleDestination()),
		monitor.WithRules([]rules.Rule{
			rules.NewOrphanRule(),
			rules.NewSPOFRule(),
			rules.NewCostAnomalyRuleWithThreshold(cfg.Monitor.CostAnomalyPct),
			rules.NewUnauthorizedChangeRule(),
			rules.NewDisappearedRule(),
		}),
		monitor.WithMetrics(mx),
	)

	tracingProvider, err := tracing.NewTracingProvider(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		TLSCAPath:   cfg.Tracing.TLSCAPath,
		TLSInsecure: cfg.Tracing.TLSInsecure,
	})
	if err != nil {
		logger.Warn("tracing disabled: %v", err)
		tracingProvider, _ = tracing.NewTracingProvider(tracing.Config{})
	}

	metricsServer := newMetricsServer(cfg.MetricsAddr)

	manager := lifecycle.NewManager()
	if err := manager.Register(tracingProvider); err != nil {
		HandleError(err, "failed to register tracing provider")
	}
	if err := manager.Register(newMonitorComponent(mon)); err != nil {
		HandleError(err, "failed to register monitor")
	}
	if err := manager.Register(newExpiryComponent(gov, cfg.Governor.ConfirmationTTL)); err != nil {
		HandleError(err, "failed to register governor expiry sweep")
	}
	if err := manager.Register(metricsServer); err != nil {
		HandleError(err, "failed to register metrics server")
	}

	if err := manager.Start(ctx); err != nil {
		HandleError(err, "startup error")
	}

	logger.Info("topolane started, metrics on %s", cfg.MetricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("error during shutdown: %v", err)
	}
	logger.Info("shutdown complete")
}

// monitorComponent adapts monitor.Monitor to lifecycle.Component; Monitor's
// own Start/Stop predate this CLI and don't return errors or carry a name.
type monitorComponent struct {
	mon *monitor.Monitor
}

func newMonitorComponent(mon *monitor.Monitor) *monitorComponent {
	return &monitorComponent{mon: mon}
}

func (c *monitorComponent) Start(ctx context.Context) error {
	c.mon.Start(ctx)
	return nil
}

func (c *monitorComponent) Stop(ctx context.Context) error {
	c.mon.Stop()
	return nil
}

func (c *monitorComponent) Name() string { return "monitor" }

// expiryComponent periodically rejects change requests that have sat
// pending past the confirmation TTL, at half the TTL's cadence.
type expiryComponent struct {
	gov      *governor.Governor
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *logging.Logger
}

func newExpiryComponent(gov *governor.Governor, ttl time.Duration) *expiryComponent {
	interval := ttl / 2
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &expiryComponent{
		gov:      gov,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logging.GetLogger("governor-expiry"),
	}
}

func (c *expiryComponent) Start(ctx context.Context) error {
	go func() {
		defer close(c.doneCh)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				if n, err := c.gov.ExpirePending(ctx); err != nil {
					c.logger.Error("governor expiry sweep failed: %v", err)
				} else if n > 0 {
					c.logger.Info("expired %d pending change requests", n)
				}
			}
		}
	}()
	return nil
}

func (c *expiryComponent) Stop(ctx context.Context) error {
	close(c.stopCh)
	select {
	case <-c.doneCh:
	case <-ctx.Done():
	}
	return nil
}

func (c *expiryComponent) Name() string { return "governor-expiry" }

// metricsServerComponent serves /metrics, wrapping net/http.Server as a
// lifecycle.Component.
type metricsServerComponent struct {
	srv    *http.Server
	logger *logging.Logger
}

func newMetricsServer(addr string) *metricsServerComponent {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &metricsServerComponent{
		srv:    &http.Server{Addr: addr, Handler: mux},
		logger: logging.GetLogger("metrics-server"),
	}
}

func (c *metricsServerComponent) Start(ctx context.Context) error {
	go func() {
		if err := c.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server failed: %v", err)
		}
	}()
	return nil
}

func (c *metricsServerComponent) Stop(ctx context.Context) error {
	return c.srv.Shutdown(ctx)
}

func (c *metricsServerComponent) Name() string { return "metrics-server" }

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/storkeep/storkeep/pkg/storkeep/config"
	"github.com/storkeep/storkeep/pkg/storkeep/execx"
	"github.com/storkeep/storkeep/pkg/storkeep/health"
	"github.com/storkeep/storkeep/pkg/storkeep/history"
	"github.com/storkeep/storkeep/pkg/storkeep/links"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
	"github.com/storkeep/storkeep/pkg/storkeep/metrics"
	"github.com/storkeep/storkeep/pkg/storkeep/output"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch storage health",
	Long: `Watch the health of the storage stack: filesystem usage and inode
pressure, SMART device verdicts, symlink integrity, and the most recent
backup job.`,
}

var monitorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run one health check",
	Long:  `Run a single health check pass and print the report.`,
	RunE:  runMonitorStatus,
}

var (
	monitorInterval    time.Duration
	monitorMetricsPort int
)

var monitorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run continuous health checks",
	Long: `Check health on an interval until interrupted. Reports are appended
to the history store and exported as Prometheus metrics when those are
enabled. Changes to managed symlinks wake the next check early.

Stop with SIGINT or SIGTERM; a clean shutdown exits 0.`,
	RunE: runMonitorStart,
}

var monitorHistoryLimit int

var monitorHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show stored health reports",
	Long:  `List recent health reports from the history store, newest first.`,
	RunE:  runMonitorHistory,
}

var monitorPerfSize string

var monitorPerfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Benchmark storage throughput",
	Long: `Measure sequential write and read throughput plus small synchronous
write latency against the storage root. The test file is removed
afterwards.`,
	RunE: runMonitorPerf,
}

func init() {
	monitorStartCmd.Flags().DurationVar(&monitorInterval, "interval", 0, "override check interval (e.g. 30s, 5m)")
	monitorStartCmd.Flags().IntVar(&monitorMetricsPort, "metrics-port", 0, "Prometheus listener port (0 disables)")
	monitorHistoryCmd.Flags().IntVar(&monitorHistoryLimit, "limit", 10, "number of reports to show (0 for all)")
	monitorPerfCmd.Flags().StringVar(&monitorPerfSize, "size", "64MiB", "test file size (e.g. 64MiB, 1GiB)")

	monitorCmd.AddCommand(monitorStatusCmd)
	monitorCmd.AddCommand(monitorStartCmd)
	monitorCmd.AddCommand(monitorHistoryCmd)
	monitorCmd.AddCommand(monitorPerfCmd)
	rootCmd.AddCommand(monitorCmd)
}

// buildMonitor wires the monitor with the real link verifier and smartctl
// prober.
func buildMonitor(cfg *config.Config) *health.Monitor {
	verifier := links.New(cfg, logging.Get("links"))
	prober := &health.SmartctlProbe{
		Exec:    execx.Default{},
		Timeout: cfg.Monitor.CommandTimeout,
	}
	return health.New(cfg, verifier, prober, logging.Get("monitor"))
}

func runMonitorStatus(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	monitor := buildMonitor(cfg)
	report := monitor.BuildReport(cmd.Context())

	if err := printReport(cfg.Output, output.FromHealthReport("monitor status", report)); err != nil {
		return err
	}
	if !report.Healthy {
		return errPartial
	}
	return nil
}

func runMonitorStart(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	if monitorInterval > 0 {
		cfg.Monitor.Interval = monitorInterval
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.Monitor.MetricsPort = monitorMetricsPort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.Get("monitor")
	monitor := buildMonitor(cfg)

	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryPath(), cfg.HistoryRetention())
		if err != nil {
			// Monitoring is more important than its archive.
			log.Warn("history store unavailable, reports will not be persisted", "error", err)
		} else {
			defer store.Close()
			monitor.WithSink(store)
		}
	}

	monitor.WithSink(health.SinkFunc(func(r *health.Report) error {
		metrics.Observe(r)
		return nil
	}))

	printInfo("monitoring every %s (Ctrl-C to stop)", cfg.Monitor.Interval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Serve(gctx, cfg.Monitor.MetricsPort)
	})
	g.Go(func() error {
		err := monitor.RunContinuous(gctx, func(r *health.Report) {
			if getQuiet() {
				return
			}
			if err := printReport(cfg.Output, output.FromHealthReport("monitor", r)); err != nil {
				log.Warn("printing report failed", "error", err)
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

func runMonitorHistory(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in configuration (set history.enabled)")
	}

	store, err := history.Open(cfg.HistoryPath(), cfg.HistoryRetention())
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer store.Close()

	reports, err := store.Recent(monitorHistoryLimit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	if len(reports) == 0 {
		printInfo("no stored reports")
		return nil
	}

	switch cfg.Output {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(reports)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		if err := encoder.Encode(reports); err != nil {
			return err
		}
		return encoder.Close()
	default:
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tHEALTHY\tWARNINGS\tERRORS")
		for _, report := range reports {
			fmt.Fprintf(tw, "%s\t%t\t%d\t%d\n",
				report.GeneratedAt.Local().Format("2006-01-02 15:04:05"),
				report.Healthy, len(report.Warnings), len(report.Errors))
		}
		return tw.Flush()
	}
}

func runMonitorPerf(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	size, err := humanize.ParseBytes(monitorPerfSize)
	if err != nil {
		return fmt.Errorf("parsing --size: %w", err)
	}

	monitor := buildMonitor(cfg)
	printInfo("benchmarking %s with a %s test file...", cfg.StorageRoot, monitorPerfSize)

	sample, err := monitor.Benchmark(cmd.Context(), cfg.StorageRoot, int64(size))
	if err != nil {
		return fmt.Errorf("benchmark failed: %w", err)
	}

	report := &output.Report{
		Command:     "monitor perf",
		GeneratedAt: time.Now(),
		Healthy:     true,
		Perf:        output.PerfStatusFrom(sample),
	}
	return printReport(cfg.Output, report)
}

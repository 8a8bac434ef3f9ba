package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/config"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/report"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/stats"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/tracker"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/watcher"
)

// WatchCommand holds the watch command state.
type WatchCommand struct {
	g *globals
}

// NewWatchCommand creates the live watch command.
func NewWatchCommand(g *globals) *cobra.Command {
	wc := &WatchCommand{g: g}

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Scan, then follow file changes and print live status",
		Long: `Run an initial scan, then watch the project for changes and print a status
line whenever the migration numbers move.

Keys (followed by Enter):
  r   rescan the whole project
  q   quit

SIGINT and SIGTERM stop the watch cleanly.`,
		Args: cobra.MaximumNArgs(1),
		RunE: wc.run,
	}

	cmd.Flags().Duration("debounce", 0, "quiet period before a burst of changes is applied (default 100ms)")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus /metrics, /healthz and /readyz on this address")
	g.bind("watch.debounce", cmd.Flags().Lookup("debounce"))
	g.bind("telemetry.metrics_addr", cmd.Flags().Lookup("metrics-addr"))

	return cmd
}

func (wc *WatchCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := wc.g.loadConfig()
	if err != nil {
		return err
	}

	providers, err := wc.g.observe(cmd, cfg, observability.ModeWatch)
	if err != nil {
		return err
	}
	defer shutdown(providers)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr, err := newTracker(cfg, providers)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	snap, err := tr.RunScan(ctx, resolvePath(args), cfg.Rules())
	if err != nil {
		return err
	}

	report.WriteSummary(out, snap)
	report.WriteErrors(cmd.ErrOrStderr(), tr.Root(), tr.ListFiles(nil))

	w, err := tr.StartWatch(ctx, tr.Root(), tracker.WatchOptions{
		Rules:     cfg.Rules(),
		Debounce:  cfg.Watch.Debounce,
		QueueSize: cfg.Watch.QueueSize,
		Tick:      cfg.Watch.Tick,
	})
	if err != nil {
		return err
	}

	if cfg.Telemetry.MetricsAddr != "" {
		if err := serveTelemetry(ctx, cfg, providers, w); err != nil {
			return errors.Join(err, w.Close())
		}
	}

	wc.g.infof(cmd.ErrOrStderr(), "watching %s (r = rescan, q = quit)", w.Root())

	go readKeys(cmd.InOrStdin(), w)

	return follow(ctx, out, w, snap)
}

// follow prints a status line per published snapshot until the session ends.
func follow(ctx context.Context, out io.Writer, w *tracker.Watch, prev stats.Snapshot) error {
	for {
		select {
		case snap, ok := <-w.Updates():
			if !ok {
				return w.Wait()
			}

			fmt.Fprintln(out, report.StatusLine(snap, prev))

			prev = snap
		case <-ctx.Done():
			return w.Close()
		}
	}
}

// readKeys turns stdin lines into watch commands. EOF stops reading but
// leaves the watch running.
func readKeys(in io.Reader, w *tracker.Watch) {
	sc := bufio.NewScanner(in)

	for sc.Scan() {
		var c watcher.Command

		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "r", "refresh":
			c = watcher.CmdRefresh
		case "q", "quit", "exit":
			c = watcher.CmdQuit
		default:
			continue
		}

		select {
		case w.Commands() <- c:
		case <-w.Done():
			return
		}

		if c == watcher.CmdQuit {
			return
		}
	}
}

// serveTelemetry starts the metrics endpoint in the background. It stops
// with ctx.
func serveTelemetry(ctx context.Context, cfg *config.Config, providers observability.Providers, w *tracker.Watch) error {
	ready := func(context.Context) error {
		select {
		case <-w.Done():
			return watcher.ErrWatchSource
		default:
			return nil
		}
	}

	mux, err := observability.NewMux(providers.MetricsHandler, providers.Tracer, ready)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- observability.ServeMetrics(ctx, cfg.Telemetry.MetricsAddr, mux, providers.Logger)
	}()

	// A bind failure surfaces immediately; after that the server runs
	// until ctx is done.
	select {
	case err := <-errCh:
		return err
	case <-time.After(metricsStartGrace):
		return nil
	}
}

const metricsStartGrace = 50 * time.Millisecond

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"igfetch/pkg/config"
	"igfetch/pkg/logger"
	"igfetch/pkg/metrics"
	"igfetch/pkg/models"
	"igfetch/pkg/scraper"
	"igfetch/pkg/session"
	"igfetch/pkg/ui"
	"igfetch/pkg/ui/tui"
)

// app holds everything a command needs for one process lifetime
type app struct {
	cfg      *config.Config
	log      logger.Logger
	printer  *ui.Printer
	scraper  *scraper.Scraper
	notifier *ui.Notifier
	in       io.Reader
	tui      bool

	stopMetrics context.CancelFunc
	metricsDone sync.WaitGroup
}

// newApp loads configuration and builds the scraper for cmd
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configFile, commandFlags(cmd))
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	interactive := useTUI && ui.IsTerminal(out)
	// console logs would tear the terminal UI
	if interactive && cfg.Logging.File == "" {
		cfg.Logging.Level = "error"
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger().WithField("version", version)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx := cmd.Context()
	s, err := scraper.New(ctx, cfg,
		scraper.WithLogger(log),
		scraper.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		printer: ui.NewPrinter(out, cfg.Logging.NoColor),
		scraper: s,
		in:      cmd.InOrStdin(),
		tui:     interactive,
	}
	if notify {
		a.notifier = ui.NewNotifier()
	}

	if cfg.Metrics.ListenAddr != "" {
		if err := a.serveMetrics(ctx, reg); err != nil {
			s.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) serveMetrics(ctx context.Context, reg *prometheus.Registry) error {
	srv, err := metrics.Listen(a.cfg.Metrics.ListenAddr, reg, a.log)
	if err != nil {
		return fmt.Errorf("failed to start metrics endpoint: %w", err)
	}

	mctx, cancel := context.WithCancel(ctx)
	a.stopMetrics = cancel
	a.metricsDone.Add(1)
	go func() {
		defer a.metricsDone.Done()
		if err := srv.Serve(mctx); err != nil {
			a.log.WithError(err).Error("Metrics endpoint failed")
		}
	}()
	a.printer.Info("Metrics", "http://"+srv.Addr()+"/metrics")
	return nil
}

// close writes the --export file if requested and releases resources
func (a *app) close() error {
	var exportErr error
	if exportPath != "" {
		exportErr = a.export(exportPath)
	}

	if a.stopMetrics != nil {
		a.stopMetrics()
		a.metricsDone.Wait()
	}
	if err := a.scraper.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close ledger")
	}
	return exportErr
}

// run executes one request and prints its report
func (a *app) run(ctx context.Context, req models.ScrapeRequest) *models.RunReport {
	var report *models.RunReport
	if a.tui {
		report = a.runWithTUI(ctx, req)
	} else {
		a.printer.Highlight("[EXTRACTING " + req.String() + "]")
		report = a.scraper.Extract(ctx, req)
	}

	a.printer.Report(report)
	if a.notifier != nil {
		title, msg := ui.RunFinished(string(req.Kind()), req.Target(), string(report.Outcome), len(report.Valid))
		if err := a.notifier.Notify(title, msg); err != nil {
			a.log.WithError(err).Debug("Desktop notification failed")
		}
	}
	return report
}

func (a *app) runWithTUI(ctx context.Context, req models.ScrapeRequest) *models.RunReport {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := tui.New(req, cancel, os.Stdin, a.printer.Writer())
	done := make(chan *models.RunReport, 1)
	go func() {
		done <- a.scraper.ExtractObserved(runCtx, req, view)
	}()

	if err := view.Run(); err != nil {
		a.log.WithError(err).Warn("Terminal UI failed")
	}
	return <-done
}

// export writes the session history to path, or to a timestamped file when
// path is empty
func (a *app) export(path string) error {
	if path == "" {
		path = session.DefaultExportName(time.Now())
	}
	doc, err := a.scraper.Aggregator().WriteExport(path)
	if err != nil {
		return err
	}
	a.printer.Success(fmt.Sprintf("Exported %d runs to %s", doc.TotalEntries, path))
	return nil
}

// runOnce is the body of the one-shot stories and reel commands
func runOnce(cmd *cobra.Command, build func() (models.ScrapeRequest, error)) error {
	req, err := build()
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if !a.tui {
		a.printer.Logo()
	}

	report := a.run(cmd.Context(), req)
	if err := a.close(); err != nil {
		a.printer.Error("Export failed", err)
	}

	if report.Outcome == models.OutcomeFailed || report.Outcome == models.OutcomeCancelled {
		return errRunFailed
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/holdfast/internal/config"
	"github.com/nextlevelbuilder/holdfast/internal/tracing"
	"github.com/nextlevelbuilder/holdfast/pkg/browser"
	"github.com/nextlevelbuilder/holdfast/pkg/driver"
)

func runCmd() *cobra.Command {
	var (
		url          string
		selector     string
		xpath        string
		searchFrames bool
		displayed    bool
		closeDialogs bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Probe a live page through the resilience layer",
		Long: "run navigates to a page and resolves a locator with full\n" +
			"recovery: transient-fault retries, frame scanning, alert\n" +
			"guarding. Useful for validating selectors against flaky apps.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario := config.DefaultScenarioID
			if len(args) > 0 {
				scenario = config.NormalizeScenarioID(args[0])
			}

			var loc driver.Locator
			switch {
			case selector != "" && xpath != "":
				return fmt.Errorf("--find and --xpath are mutually exclusive")
			case selector != "":
				loc = driver.CSS(selector)
			case xpath != "":
				loc = driver.XPath(xpath)
			}

			return runScenario(cmd.Context(), scenario, url, loc, runOptions{
				searchFrames: searchFrames,
				displayed:    displayed,
				closeDialogs: closeDialogs,
				timeout:      timeout,
			})
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "page to load (default base_url from config)")
	cmd.Flags().StringVar(&selector, "find", "", "CSS selector to resolve")
	cmd.Flags().StringVar(&xpath, "xpath", "", "XPath expression to resolve")
	cmd.Flags().BoolVar(&searchFrames, "search-frames", true, "scan nested frames when the direct lookup misses")
	cmd.Flags().BoolVar(&displayed, "displayed-only", true, "only count visible matches")
	cmd.Flags().BoolVar(&closeDialogs, "close-dialogs", false, "sweep-cancel visible dialogs before the lookup")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "lookup budget (default from config)")
	return cmd
}

// watchConfig hot-reloads the config file for the life of the run.
// The log level applies immediately; timing settings bind at session
// construction, so a reload of those is announced for the next run.
// Nil when the file does not exist or the watcher cannot start.
func watchConfig(path string) *config.Watcher {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	w, err := config.NewWatcher(path)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return nil
	}
	w.OnChange(func(cfg *config.Config) {
		applyLogLevel(cfg)
		slog.Info("config reloaded; timing changes apply to the next run")
	})
	if err := w.Start(); err != nil {
		slog.Warn("config watcher failed to start", "error", err)
		return nil
	}
	return w
}

type runOptions struct {
	searchFrames bool
	displayed    bool
	closeDialogs bool
	timeout      time.Duration
}

func runScenario(ctx context.Context, scenario, url string, loc driver.Locator, opts runOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if w := watchConfig(resolveConfigPath()); w != nil {
		defer w.Stop()
	}
	if url == "" {
		url = cfg.BaseURL
	}
	if url == "" {
		return fmt.Errorf("no URL: pass --url or set base_url in %s", resolveConfigPath())
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := tracing.NewCollector()
	initOTelExporter(ctx, cfg, collector)
	collector.Start()
	defer collector.Stop()
	collector.BeginRun(scenario)

	drv := driver.NewRod(
		driver.WithHeadless(cfg.Driver.Headless),
	)
	if err := drv.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer drv.Close()

	s := browser.NewSession(drv, cfg.Settings(), browser.WithObserver(collector))

	if err := s.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	fmt.Printf("loaded %s\n", url)

	if opts.closeDialogs {
		s.CancelAll(ctx, browser.DefaultDialogOptions())
	}

	if loc.IsZero() {
		return nil
	}

	handles, err := s.Find(ctx, loc, browser.FindOptions{
		DisplayedOnly: opts.displayed,
		SearchFrames:  opts.searchFrames,
		Fail:          true,
		Timeout:       opts.timeout,
	})
	if err != nil {
		return fmt.Errorf("resolve %s: %w", loc, err)
	}

	fmt.Printf("%s: %d match(es) in frame %s\n", loc, len(handles), s.CurrentFrame().Key())
	for i, h := range handles {
		text, err := h.Text(ctx)
		if err != nil {
			fmt.Printf("  [%d] (text unavailable: %v)\n", i, err)
			continue
		}
		if len(text) > 80 {
			text = text[:80] + "..."
		}
		fmt.Printf("  [%d] %q\n", i, text)
	}
	return nil
}

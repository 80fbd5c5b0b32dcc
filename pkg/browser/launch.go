package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"

	"igfetch/pkg/config"
	"igfetch/pkg/errors"
	"igfetch/pkg/logger"
)

// LaunchStrategy is one way of obtaining a live browser session
type LaunchStrategy struct {
	Name  string
	Start func(ctx context.Context) (Session, error)
}

// KnownBrowserPaths are tried by the "discovered" strategy, in order
var KnownBrowserPaths = []string{
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

// allocatorOptions are the exec flags every locally started browser gets
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

func execStrategy(name, path string, cfg config.BrowserConfig, navTimeout time.Duration, log logger.Logger) LaunchStrategy {
	return LaunchStrategy{
		Name: name,
		Start: func(ctx context.Context) (Session, error) {
			opts := allocatorOptions(cfg)
			if path != "" {
				opts = append(opts, chromedp.ExecPath(path))
			}
			allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
			return newChromeSession(allocCtx, cancel, navTimeout, cfg.ReviewDelay, log)
		},
	}
}

// DefaultStrategies returns the launch strategies applicable to cfg, in the
// order they should be tried: remote, explicit, discovered, default
func DefaultStrategies(cfg *config.Config, log logger.Logger) []LaunchStrategy {
	bc := cfg.Browser
	nav := cfg.Timeouts.Navigation
	var strategies []LaunchStrategy

	if bc.RemoteURL != "" {
		strategies = append(strategies, LaunchStrategy{
			Name: "remote",
			Start: func(ctx context.Context) (Session, error) {
				allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, bc.RemoteURL)
				return newChromeSession(allocCtx, cancel, nav, bc.ReviewDelay, log)
			},
		})
	}

	if bc.ExecPath != "" {
		strategies = append(strategies, execStrategy("explicit", bc.ExecPath, bc, nav, log))
	}

	if path := discoverBrowser(KnownBrowserPaths); path != "" && path != bc.ExecPath {
		strategies = append(strategies, execStrategy("discovered", path, bc, nav, log))
	}

	return append(strategies, execStrategy("default", "", bc, nav, log))
}

func discoverBrowser(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Launch tries each strategy in order and returns the first live session.
// When every strategy fails the error is a launch error joining each attempt's cause.
func Launch(ctx context.Context, strategies []LaunchStrategy, log logger.Logger) (Session, error) {
	if len(strategies) == 0 {
		return nil, errors.New(errors.ErrorTypeLaunch, "launch", "no launch strategies configured", nil)
	}

	var failures []error
	for _, st := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(errors.ErrorTypeCancelled, "launch", "", err)
		}

		started := time.Now()
		sess, err := st.Start(ctx)
		if err == nil {
			log.InfoWithFields("Browser started", map[string]interface{}{
				"strategy": st.Name,
				"duration": time.Since(started),
			})
			return sess, nil
		}

		log.WithError(err).WarnWithFields("Browser launch strategy failed", map[string]interface{}{
			"strategy": st.Name,
		})
		failures = append(failures, fmt.Errorf("%s: %w", st.Name, err))
	}

	return nil, errors.New(errors.ErrorTypeLaunch, "launch",
		fmt.Sprintf("all %d launch strategies failed", len(strategies)), errors.Join(failures...))
}

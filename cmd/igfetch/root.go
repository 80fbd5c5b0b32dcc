package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile  string
	logLevel    string
	noColor     bool
	download    bool
	outputDir   string
	concurrency int
	headless    bool
	metricsAddr string
	ledgerPath  string
	exportPath  string
	useTUI      bool
	notify      bool
)

// errRunFailed is returned after a failed run was already reported
var errRunFailed = errors.New("extraction failed")

var rootCmd = &cobra.Command{
	Use:   "igfetch",
	Short: "Extract Instagram story and reel media links",
	Long: `igfetch drives the fastdl.app front end in a headless or visible
Chrome to list the media links of a user's current stories or of a single
reel, checks every link with a HEAD request and reports which ones work.

With --download, valid media is saved under the output directory and
remembered in a ledger so it is never fetched twice.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command until it returns or the process is interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file (default is ./.igfetch.yaml or ~/.config/igfetch/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.BoolVar(&download, "download", false, "save valid media to the output directory")
	pf.StringVarP(&outputDir, "output", "o", "", "output directory for downloads")
	pf.IntVar(&concurrency, "concurrency", 0, "number of links validated in parallel")
	pf.BoolVar(&headless, "headless", false, "run the browser without a window")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
	pf.StringVar(&ledgerPath, "ledger", "", "path of the downloaded links ledger file")
	pf.StringVar(&exportPath, "export", "", "write the session history as JSON to this file on exit")
	pf.BoolVar(&useTUI, "tui", false, "show live progress in an interactive terminal UI")
	pf.BoolVar(&notify, "notify", false, "send a desktop notification when a run finishes")

	rootCmd.SetVersionTemplate(`igfetch {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// commandFlags collects the flags that override configuration values
func commandFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if noColor {
		flags["no-color"] = true
	}
	if download {
		flags["download"] = true
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if concurrency > 0 {
		flags["concurrency"] = concurrency
	}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = headless
	}
	if metricsAddr != "" {
		flags["metrics-addr"] = metricsAddr
	}
	if ledgerPath != "" {
		flags["ledger"] = ledgerPath
	}
	return flags
}

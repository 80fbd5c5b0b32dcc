package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"igfetch/pkg/instagram"
	"igfetch/pkg/models"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run several extractions in one session",
	Long: `Read commands from standard input, one per line:

  stories <username>   extract a user's stories
  reel <url>           extract a reel or post
  stats                show session counters
  history              list the runs of this session
  export [file]        write the session history as JSON
  help                 show this list
  quit                 leave the shell`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		a.printer.Logo()

		shellErr := a.shell(cmd.Context())
		if err := a.close(); err != nil {
			a.printer.Error("Export failed", err)
		}
		return shellErr
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

const shellHelp = `Commands:
  stories <username>
  reel <url>
  stats
  history
  export [file]
  quit`

// shell reads commands from a.in until quit, end of input or ctx is done
func (a *app) shell(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	out := a.printer.Writer()
	for {
		fmt.Fprint(out, a.printer.Cyan("igfetch> "))

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			a.printer.Warning("Interrupted")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		}

		if quit := a.dispatch(ctx, line); quit {
			return nil
		}
	}
}

// dispatch executes one shell line and reports whether the shell should end
func (a *app) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(a.printer.Writer(), shellHelp)
	case "stories":
		a.extract(ctx, args, "stories <username>", instagram.NewStoriesRequest)
	case "reel":
		a.extract(ctx, args, "reel <url>", instagram.NewReelRequest)
	case "stats":
		a.printer.Stats(a.scraper.Aggregator().Snapshot())
	case "history":
		a.printer.History(a.scraper.Aggregator().History())
	case "export":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		if err := a.export(path); err != nil {
			a.printer.Error("Export failed", err)
		}
	default:
		a.printer.Warning("Unknown command", cmd)
		fmt.Fprintln(a.printer.Writer(), shellHelp)
	}
	return false
}

func (a *app) extract(ctx context.Context, args []string, usage string, build func(string) (models.ScrapeRequest, error)) {
	if len(args) != 1 {
		a.printer.Warning("Usage", usage)
		return
	}
	req, err := build(args[0])
	if err != nil {
		a.printer.Error("Invalid target", err)
		return
	}
	a.run(ctx, req)
}

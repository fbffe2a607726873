// mmserverd-top is a read-only terminal viewer for a running mmserverd
// instance's session list, polling the management API over HTTP
// instead of needing in-process access to the session manager.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/mmserver/mmserverd/internal/statusui"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		addr     string
		showHelp bool
	)

	flagSet := pflag.NewFlagSet("mmserverd-top", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "127.0.0.1:9090", "mmserverd management API address")
	flagSet.BoolVarP(&showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if showHelp {
		printHelp(flagSet)
		return 0
	}

	client := &http.Client{Timeout: 3 * time.Second}
	fetch := remoteFetcher(client, addr)

	program := tea.NewProgram(statusui.New(fetch))
	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `mmserverd-top — live session list for a running mmserverd instance.

Usage:
  mmserverd-top [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

// remoteFetcher adapts the management API's /sessions JSON endpoint
// into a statusui.Fetcher, so the same Model that mmserverd can run
// in-process also drives this standalone viewer.
func remoteFetcher(client *http.Client, addr string) statusui.Fetcher {
	url := fmt.Sprintf("http://%s/sessions", addr)
	return func() ([]statusui.SessionSummary, error) {
		resp, err := client.Get(url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("mmserverd-top: management API returned %s", resp.Status)
		}

		var summaries []statusui.SessionSummary
		if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
			return nil, fmt.Errorf("mmserverd-top: decode sessions response: %w", err)
		}
		return summaries, nil
	}
}

// Command search is a terminal search box for a running blog server.
// Every line read from stdin replaces the query, like a burst of keystrokes.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bilgisen/kafkaesque/internal/logger"
	"github.com/bilgisen/kafkaesque/internal/searchclient"
	"github.com/spf13/cobra"
)

var (
	server   string
	pageURL  string
	debounce time.Duration
	timeout  time.Duration
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "search",
	Short: "Interactive fuzzy search against the blog API",
	Long: `search reads queries from stdin, one per line, and prints results as
they arrive. Lines typed faster than the debounce interval collapse into one
request; an empty line clears the results. A --page link carrying ?q= is
searched before any input is read.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(logger.Config{Level: logLevel, Output: "stderr", Pretty: true}); err != nil {
			return err
		}
		return run(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.Flags().StringVar(&server, "server", "http://localhost:8080", "blog server base URL")
	rootCmd.Flags().StringVar(&pageURL, "page", "http://localhost:8080/search", "page URL for share links; a q parameter is searched on start")
	rootCmd.Flags().DurationVar(&debounce, "debounce", searchclient.DefaultDebounce, "quiet time before a search is sent")
	rootCmd.Flags().DurationVar(&timeout, "timeout", searchclient.DefaultTimeout, "per-search timeout")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer) error {
	var mu sync.Mutex
	render := func(s searchclient.State) {
		mu.Lock()
		defer mu.Unlock()
		printState(out, s)
	}

	widget := searchclient.New(
		searchclient.NewHTTPSearcher(server),
		searchclient.WithDebounce(debounce),
		searchclient.WithTimeout(timeout),
		searchclient.OnChange(render),
		searchclient.WithInitialURL(pageURL),
	)
	defer widget.Close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		widget.Input(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	// the last burst is still debouncing or in flight
	widget.Wait()

	if share, err := widget.ShareURL(pageURL); err == nil {
		mu.Lock()
		fmt.Fprintf(out, "share: %s\n", share)
		mu.Unlock()
	}
	return nil
}

func printState(out io.Writer, s searchclient.State) {
	switch {
	case s.Loading:
		fmt.Fprintf(out, "searching %q...\n", s.Query)
	case s.Err != nil:
		fmt.Fprintf(out, "search %q failed: %v\n", s.Query, s.Err)
	case !s.Searched:
		fmt.Fprintln(out, "cleared")
	case len(s.Results) == 0:
		fmt.Fprintf(out, "no results for %q\n", s.Query)
	default:
		fmt.Fprintf(out, "%d result(s) for %q\n", len(s.Results), s.Query)
		for i, p := range s.Results {
			fmt.Fprintf(out, "  %2d. %s  /%s\n", i+1, p.Title, p.Slug)
		}
	}
}

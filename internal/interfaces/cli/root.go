// Package cli implements the rxlens command-line client.  Every subcommand
// talks to a running api server over HTTP; nothing is executed locally.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/dosewise/rxlens/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// RootOptions holds the global CLI flags.
type RootOptions struct {
	ServerAddr   string
	Timeout      time.Duration
	OutputFormat string
}

// NewRootCommand creates the root command with global flags and subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "rxlens",
		Short:         "rxlens CLI — prescription photo extraction and safety checks",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ServerAddr, "server", "http://localhost:8080", "api server address")
	pf.DurationVar(&opts.Timeout, "timeout", 90*time.Second, "request timeout")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json)")

	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newConfirmCommand(opts))
	cmd.AddCommand(newCacheCommand(opts))
	cmd.AddCommand(newRecordsCommand(opts))
	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

// apiClient is the thin HTTP client shared by all subcommands.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(opts *RootOptions) *apiClient {
	return &apiClient{
		base: strings.TrimRight(opts.ServerAddr, "/"),
		http: &http.Client{Timeout: opts.Timeout},
	}
}

// do issues the request and decodes the JSON response into out.  Non-2xx
// responses are turned back into AppErrors using the server's error body.
func (c *apiClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "api request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "api response read failed")
	}

	if resp.StatusCode >= 400 {
		var wrapped struct {
			Error struct {
				Code        string   `json:"code"`
				Message     string   `json:"message"`
				Detail      string   `json:"detail"`
				Suggestions []string `json:"suggestions"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &wrapped) == nil && wrapped.Error.Code != "" {
			return apperrors.New(apperrors.ErrorCode(wrapped.Error.Code), wrapped.Error.Message).
				WithDetail(wrapped.Error.Detail).
				WithSuggestions(wrapped.Error.Suggestions)
		}
		return apperrors.New(apperrors.ErrCodeUnknown,
			fmt.Sprintf("api returned %s", resp.Status))
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "api response decode failed")
	}
	return nil
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

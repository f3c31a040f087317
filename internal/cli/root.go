// Package cli implements the promptsync command line client.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	// ConfigPath overrides PROMPTSYNC_CONFIG_PATH.
	ConfigPath string
	// UserID overrides the configured account.
	UserID string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the promptsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "promptsync",
		Short:         "Credits and draft sync client",
		Long:          "Check and spend prompt credits, claim the daily grant, and sync editor drafts and session preferences with a promptsync server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (.yaml or .toml)")
	cmd.PersistentFlags().StringVarP(&opts.UserID, "user", "u", "", "user id (defaults to remote.user_id)")

	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewSpendCommand(opts))
	cmd.AddCommand(NewEarnCommand(opts))
	cmd.AddCommand(NewDailyCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewDraftCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))

	return cmd
}

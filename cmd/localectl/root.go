package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-locales/internal/protocol"
	"github.com/nerrad567/gray-logic-locales/internal/transport"
)

// Exit codes.
const (
	exitFailure     = 1 // Any other failure
	exitUsage       = 2 // Bad arguments or configuration
	exitUnreachable = 3 // Controller did not answer in time
	exitBadReply    = 4 // Controller answered with a malformed reply
	exitNotFound    = 5 // Locale is not in the cache
)

// usageError marks an error caused by invalid input.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var usage *usageError
	switch {
	case errors.As(err, &usage):
		return exitUsage
	case errors.Is(err, transport.ErrTimeout):
		return exitUnreachable
	case errors.Is(err, transport.ErrDecode), errors.Is(err, protocol.ErrDecode):
		return exitBadReply
	case errors.Is(err, errNotCached):
		return exitNotFound
	default:
		return exitFailure
	}
}

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configPath   string
	format       string
	localAddress string
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "localectl",
		Short: "Keep a local cache of controller locales in sync",
		Long: `localectl talks to a lighting controller over UDP and keeps a local
cache of its locales (named on/off channels).

Run "localectl run" for the long-lived daemon, or use set/get/get-all for
one-shot exchanges against the same cache file.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			for _, f := range validFormats {
				if opts.format == f {
					return nil
				}
			}
			return usageErrorf("invalid format %q: must be one of %v", opts.format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		fmt.Sprintf("config file (default $LOCALECTL_CONFIG or %s)", config.DefaultPath))
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.localAddress, "local-address", "",
		"bind address for one-shot commands (default controller.local_address)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newSetCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newGetAllCommand(opts))

	return cmd
}

// loadConfig resolves and loads the configuration file.
func loadConfig(opts *rootOptions) (*config.Config, string, error) {
	path := config.ResolvePath(opts.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, &usageError{err: fmt.Errorf("loading config: %w", err)}
	}
	return cfg, path, nil
}

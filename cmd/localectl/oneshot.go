package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/protocol"
	"github.com/nerrad567/gray-logic-locales/internal/transport"
)

// errNotCached is returned when the controller's answer names a locale the
// cache does not hold.
var errNotCached = errors.New("locale not in cache")

func newSetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <locale> <on|off>",
		Short: "Switch a locale on or off",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, value := args[0], args[1]
			if _, ok := locale.NormalizeStatus(value); !ok {
				return usageErrorf("invalid status %q: must be on or off", value)
			}
			return withSession(cmd, opts, func(ctx context.Context, s *protocol.Session) error {
				res, err := s.Set(ctx, name, value)
				return printResult(cmd.OutOrStdout(), opts.format, name, res, err)
			})
		},
	}
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <locale>",
		Short: "Read one locale from the controller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withSession(cmd, opts, func(ctx context.Context, s *protocol.Session) error {
				res, err := s.Get(ctx, name)
				return printResult(cmd.OutOrStdout(), opts.format, name, res, err)
			})
		},
	}
}

func newGetAllCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get-all",
		Short: "Read every locale from the controller and refresh the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *protocol.Session) error {
				_, err := s.GetAll(ctx)
				if err != nil && !errors.Is(err, protocol.ErrPersist) {
					return err
				}
				if printErr := printTable(cmd.OutOrStdout(), opts.format, s.Store().Snapshot()); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
}

// withSession loads the configuration and the locale cache, opens a
// connection to the controller and runs fn with a session over it.
func withSession(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *protocol.Session) error) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging, version)
	ctx := cmd.Context()

	store := locale.NewStore(locale.NewFileStorage(cfg.Cache.Path))
	store.SetLogger(log.Component("locale"))
	if err := store.Load(ctx); err != nil {
		return err
	}

	dest, err := transport.ResolveDestination(cfg.Controller.Address)
	if err != nil {
		return &usageError{err: fmt.Errorf("controller address: %w", err)}
	}

	localAddr := cfg.Controller.LocalAddress
	if opts.localAddress != "" {
		localAddr = opts.localAddress
	}
	conn, err := transport.Listen(localAddr)
	if err != nil {
		return fmt.Errorf("opening controller connection: %w", err)
	}
	defer conn.Close()
	conn.SetTimeout(cfg.GetControllerTimeout())
	conn.SetLogger(log.Component("transport"))

	client := protocol.NewClient(store)
	client.SetLogger(log.Component("protocol"))

	return fn(ctx, protocol.NewSession(client, conn, dest))
}

// resultOutput is the JSON form of a set/get result.
type resultOutput struct {
	locale.MergeResult
	Persisted bool `json:"persisted"`
}

// printResult writes a set/get result. A persist failure still prints the
// merged row before the error is returned.
func printResult(w io.Writer, format, name string, res locale.MergeResult, err error) error {
	persisted := true
	if err != nil {
		if !errors.Is(err, protocol.ErrPersist) {
			return err
		}
		persisted = false
	}

	if format == "json" {
		if encErr := writeJSON(w, resultOutput{MergeResult: res, Persisted: persisted}); encErr != nil {
			return encErr
		}
	} else {
		status := string(res.Locale.Status)
		if res.Outcome == locale.OutcomeMiss {
			status = "-"
		} else {
			name = res.Locale.Name
		}
		fmt.Fprintf(w, "%s\t%s\t(%s)\n", name, status, res.Outcome)
	}

	if err != nil {
		return err
	}
	if !res.Found() {
		return fmt.Errorf("%w: %q", errNotCached, name)
	}
	return nil
}

// printTable writes the whole cache.
func printTable(w io.Writer, format string, table locale.Table) error {
	if format == "json" {
		if table == nil {
			table = locale.Table{}
		}
		return writeJSON(w, table)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCALE\tSTATUS")
	for _, l := range table {
		fmt.Fprintf(tw, "%s\t%s\n", l.Name, l.Status)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

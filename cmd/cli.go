package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"

	"github.com/hypeedev/gest/internal/adapters/http/api"
	"github.com/hypeedev/gest/internal/config"
	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/internal/domain/window"
)

const (
	version = "dev"

	// daemonEnvVar marks the re-executed child of --daemon.
	daemonEnvVar = "GEST_DAEMON_CHILD"
)

type options struct {
	configPath string
	verbose    int
	logFile    string
	daemon     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "gest",
		Short: "Touchpad gesture daemon",
		Long: `gest recognizes multi-finger touchpad gesture sequences and runs the
shell command bound to each, optionally scoped to the focused window.`,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.daemon && !isDaemonChild() {
				child, err := daemonize()
				if err != nil {
					return err
				}
				if child != nil {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gest started in background (pid %d)\n", child.Pid)
					return nil
				}
			}
			return run(opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to configuration file (default $XDG_CONFIG_HOME/gest/config.yaml)")
	flags.CountVarP(&opts.verbose, "verbose", "v", "increase log verbosity")
	root.Flags().StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of stdout")
	root.Flags().BoolVarP(&opts.daemon, "daemon", "d", false, "detach and run in the background")

	root.AddCommand(newCheckCmd(opts))
	return root
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the gesture table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			_, set, err := loadGestures(context.Background(), path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			printGestures(cmd.OutOrStdout(), set)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d gestures OK\n", path, set.Count())
			return nil
		},
	}
}

// printGestures writes one row per gesture: scope, name, sequence, repeat
// mode and command.
func printGestures(w io.Writer, set *window.Set) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SCOPE\tNAME\tSEQUENCE\tREPEAT\tCOMMAND")

	row := func(scope string, g *model.Gesture) {
		steps := make([]string, len(g.Sequence))
		for i, s := range g.Sequence {
			steps[i] = s.String()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", scope, g.Name, strings.Join(steps, " "), g.RepeatMode, g.Command)
	}
	for _, g := range set.Global {
		row("global", g)
	}
	for _, sc := range set.Scopes {
		for _, g := range sc.Gestures {
			row(fmt.Sprintf("%s=%s", sc.Target, sc.Pattern), g)
		}
	}
	_ = tw.Flush()
}

func isDaemonChild() bool {
	return os.Getenv(daemonEnvVar) == "1"
}

// daemonize re-executes the process detached. It returns the child in the
// parent and nil in the child.
func daemonize() (*os.Process, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to daemonize: %w", err)
	}
	// The child opens --log-file itself.
	ctx := &daemon.Context{
		WorkDir:     wd,
		Umask:       0o27,
		Args:        os.Args,
		Env:         append(os.Environ(), daemonEnvVar+"=1"),
	}
	child, err := ctx.Reborn()
	if err != nil {
		return nil, fmt.Errorf("failed to daemonize: %w", err)
	}
	return child, nil
}

// newMux builds the introspection routes served on metrics_addr.
func newMux(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(mux)
	return mux
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/matheus3301/opsms/internal/app"
	"github.com/matheus3301/opsms/internal/config"
	"github.com/matheus3301/opsms/internal/profile"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// globals are the persistent flags shared by every command.
type globals struct {
	profile string
	json    bool
	verbose bool
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "opsmsctl",
		Short:         "opsms command line client",
		Long:          "opsmsctl lists phone numbers, conversations and messages and sends SMS through the opsms cache.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&g.profile, "profile", "", "profile name (overrides config default)")
	cmd.PersistentFlags().BoolVar(&g.json, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log to stderr at debug level")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "overall command timeout")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newPhonesCmd(g))
	cmd.AddCommand(newConversationsCmd(g))
	cmd.AddCommand(newMessagesCmd(g))
	cmd.AddCommand(newSendCmd(g))
	cmd.AddCommand(newHistoryCmd(g))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "opsmsctl %s (commit: %s)\n", Version, Commit)
		},
	}
}

// withService starts the client for the selected profile, runs fn and shuts
// the client down, flushing the cache to disk.
func (g *globals) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *api.Service) error) error {
	cfg, err := config.Resolve(profile.ConfigPath())
	if err != nil {
		return err
	}
	name := profile.Resolve(g.profile, cfg)
	if err := profile.ValidateName(name); err != nil {
		return err
	}

	var svc *api.Service
	fxApp := app.New(app.Params{
		Profile: name,
		Config:  cfg,
		Stderr:  g.verbose,
		Verbose: g.verbose,
	}, fx.Populate(&svc))
	if err := fxApp.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()

	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx, svc)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}

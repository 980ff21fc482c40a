package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/matheus3301/opsms/internal/app"
	"github.com/matheus3301/opsms/internal/config"
	"github.com/matheus3301/opsms/internal/profile"
	"github.com/matheus3301/opsms/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	var (
		profileFlag string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:           "opsms",
		Short:         "Terminal SMS client",
		Long:          "opsms browses phone numbers, conversations and messages and sends SMS from the terminal.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), profileFlag, verbose)
		},
	}

	cmd.Flags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	return cmd
}

func run(ctx context.Context, profileFlag string, verbose bool) error {
	cfg, err := config.Resolve(profile.ConfigPath())
	if err != nil {
		return err
	}
	name := profile.Resolve(profileFlag, cfg)
	if err := profile.ValidateName(name); err != nil {
		return err
	}

	var (
		svc    *api.Service
		logger *zap.Logger
	)
	// Logs go to the profile log file only; the terminal belongs to the UI.
	fxApp := app.New(app.Params{
		Profile:   name,
		Config:    cfg,
		Exclusive: true,
		Verbose:   verbose,
	}, fx.Populate(&svc, &logger))
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}

	ui := tui.NewApp(svc, tui.Options{
		Profile:      name,
		DefaultPhone: cfg.DefaultPhoneNumber,
		Logger:       logger.Named("tui"),
	})

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGHUP)
	defer stopSignals()
	go func() {
		<-sigCtx.Done()
		ui.Stop()
	}()

	runErr := ui.Run()
	stopSignals()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

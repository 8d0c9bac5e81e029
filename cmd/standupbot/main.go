package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"standupbot/internal/app"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "standupbot",
	Short:         "Standup Bot keeps chat rooms on a daily standup schedule",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server (and the Telegram poller or local scheduler when configured)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [roomID]",
	Short: "Re-derive the recurring standup job of one room, or of every scheduled room",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := ""
		if len(args) == 1 {
			roomID = args[0]
		}
		return reconcile(cmd.Context(), roomID)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	rootCmd.AddCommand(serveCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout())
		defer cancel()
		_ = a.Stop(stopCtx)
		return err
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	wait := gfshutdown.GracefulShutdown(ctx, a.ShutdownTimeout(), map[string]gfshutdown.Operation{
		"standupbot": func(ctx context.Context) error {
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			return a.Stop(ctx)
		},
	})

	go func() {
		<-a.Done()
		if err := a.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			stopCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout())
			defer cancel()
			_ = a.Stop(stopCtx)
			os.Exit(1)
		}
	}()

	if code := <-wait; code != 0 {
		os.Exit(code)
	}
	return nil
}

func reconcile(ctx context.Context, roomID string) error {
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx)
	}()
	if a.InProcessJobs() {
		fmt.Fprintln(os.Stderr, "note: registry.driver is cron; jobs are re-derived by serve on boot")
	}
	n, err := a.Reconcile(ctx, roomID)
	if err != nil {
		return err
	}
	fmt.Printf("reconciled %d room(s)\n", n)
	return nil
}

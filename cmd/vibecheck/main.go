// Vibe Check: an MCP server that mentors engineering decisions and
// analyzes pull requests for anti-patterns.
//
// Usage:
//
//	vibecheck serve             # Start MCP server (stdio transport)
//	vibecheck version --check   # Print the version and look for updates
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/vibe-check/internal/config"
	"github.com/HendryAvila/vibe-check/internal/ghclient"
	"github.com/HendryAvila/vibe-check/internal/logging"
	vcserver "github.com/HendryAvila/vibe-check/internal/server"
	"github.com/HendryAvila/vibe-check/internal/updater"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vibecheck",
		Short:         "Vibe Check MCP server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath, adminAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if adminAddr != "" {
				cfg.Admin.Addr = adminAddr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("VIBECHECK_CONFIG"), "path to a YAML config file")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "listen address for the admin HTTP server (e.g. 127.0.0.1:9090)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	// stdout belongs to the MCP transport; logs go to stderr.
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := vcserver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	app.Start(ctx)
	logger.Info("vibe-check started", "version", vcserver.Version, "admin_addr", cfg.Admin.Addr)

	err = app.ServeStdio(ctx)
	stop()
	app.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "vibecheck v%s\n", vcserver.Version)
			if !check {
				return nil
			}

			gh, err := ghclient.New(ghclient.Config{
				Token:   os.Getenv("GITHUB_TOKEN"),
				Timeout: ghclient.DefaultConfig().Timeout,
			}, slog.Default())
			if err != nil {
				return err
			}
			res := updater.CheckVersion(cmd.Context(), gh, vcserver.Version)
			switch {
			case res.Err != nil:
				return fmt.Errorf("checking for updates: %w", res.Err)
			case res.UpdateAvailable:
				fmt.Fprintf(out, "Update available: v%s -> v%s\n  %s\n", res.CurrentVersion, res.LatestVersion, res.ReleaseURL)
			default:
				fmt.Fprintln(out, "Already at the latest release")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "look up the latest GitHub release")
	return cmd
}

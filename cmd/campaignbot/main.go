package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/campaignbot/internal/app"
	"github.com/nhle/campaignbot/internal/credential"
	"github.com/nhle/campaignbot/internal/diag"
	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/ui/setup"
)

var errUnhealthy = errors.New("one or more checks failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	chat := newChatCmd(&configPath)
	root := &cobra.Command{
		Use:           "campaignbot",
		Short:         "Build and send personalized email campaigns from a chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          chat.RunE,
	}
	root.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "configuration file")

	root.AddCommand(chat)
	root.AddCommand(newStatusCmd(&configPath))
	root.AddCommand(newSetupCmd(&configPath))
	root.AddCommand(newSessionsCmd(&configPath))
	return root
}

func newChatCmd(configPath *string) *cobra.Command {
	var forceSetup bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run the campaign chat in the terminal (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			_, statErr := os.Stat(*configPath)
			m := app.New(app.Options{
				Handler:    rt.Controller,
				Config:     rt.Config,
				ConfigPath: *configPath,
				SetSecret:  credential.Set,
				Setup:      forceSetup || errors.Is(statErr, os.ErrNotExist),
			})

			rt.Logger.Info("chat started", "config", *configPath)
			if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
				return fmt.Errorf("running chat: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&forceSetup, "setup", false, "open the setup form before chatting")
	return cmd
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the configuration and credential report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := model.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			s, err := openStore(cfg.Store)
			if err != nil {
				return err
			}
			defer s.Close()

			report := diag.New(cfg, credential.Lookup, s).Run(cmd.Context())
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.String())
			if !report.Healthy() {
				return errUnhealthy
			}
			return nil
		},
	}
}

func newSetupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Edit the configuration and store credentials in the keyring",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := model.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if _, err := setup.Run(*configPath, cfg, credential.Set); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "configuration saved to %s\n", *configPath)
			return nil
		},
	}
}

func newSessionsCmd(configPath *string) *cobra.Command {
	sessions := &cobra.Command{Use: "sessions", Short: "Manage stored conversations"}

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete conversations idle for longer than --older-than",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cfg, err := model.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			s, err := openStore(cfg.Store)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.PurgeSessions(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions\n", n)
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "idle time after which a conversation is removed")

	sessions.AddCommand(purge)
	return sessions
}

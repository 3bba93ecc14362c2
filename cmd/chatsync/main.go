package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/chatsync/internal/audio"
	"github.com/memohai/chatsync/internal/auth"
	"github.com/memohai/chatsync/internal/channel"
	"github.com/memohai/chatsync/internal/config"
	"github.com/memohai/chatsync/internal/docstore/postgres"
)

func main() {
	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Realtime one-to-one chat service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCommand(),
		newChannelKeyCommand(),
		newTokenCommand(),
		newMigrateCommand(),
		newPruneCommand(),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server (config from CONFIG_PATH)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func newChannelKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "channel-key <user-a> <user-b>",
		Short: "Print the channel id shared by two users",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := channel.Key(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		userID  string
		name    string
		ttl     time.Duration
		cfgPath string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = config.Duration(cfg.Auth.JWTExpiresIn, 24*time.Hour)
			}
			signed, expiresAt, err := auth.GenerateNamedToken(userID, name, cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			fmt.Fprintln(cmd.ErrOrStderr(), "expires at", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.jwt_expires_in)")
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (defaults to CONFIG_PATH or config.toml)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := postgres.Migrate(cfg.Postgres.DSN()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (defaults to CONFIG_PATH or config.toml)")
	return cmd
}

func newPruneCommand() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "prune-recordings",
		Short: "Remove leftover audio recordings older than audio.retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			n, err := audio.PruneRecordings(cfg.Audio.RecordingsDir, config.Duration(cfg.Audio.Retention, 24*time.Hour), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d recordings\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (defaults to CONFIG_PATH or config.toml)")
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

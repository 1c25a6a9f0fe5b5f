package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Bonii97/Heimbas-Calender/internal/config"
	appLog "github.com/Bonii97/Heimbas-Calender/internal/log"
)

const defaultConfigPath = "heimbascal.yaml"

// commandContext carries the persistent flags and the lazily loaded config.
type commandContext struct {
	configPath string
	debug      bool

	cfg *config.Config
}

// ensureConfig loads .env files, the YAML config and the log level once.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	envFiles := []string{".env"}
	if dir := filepath.Dir(c.configPath); dir != "." {
		envFiles = append(envFiles, filepath.Join(dir, ".env"))
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := appLog.ParseLevel(cfg.LogLevel)
	if c.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	appLog.Debug("effective config",
		"config_path", c.configPath,
		"base_url", cfg.BaseURL,
		"refresh", cfg.RefreshCron,
		"listen", cfg.Listen,
		"users", len(cfg.Users),
		"webhook", cfg.Webhook.URL != "",
	)

	c.cfg = cfg
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "heimbascal",
		Short:         "Sync the Heimbas Einsatz-Vorschau into an ICS calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", defaultConfigPath, "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&ctx.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newConvertCommand(ctx))

	return rootCmd
}

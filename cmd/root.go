package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/config"
	"github.com/xkilldash9x/relscout/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

var (
	cfgFile string
	quiet   bool
)

// flagBindings maps command flags onto the config keys they override.
var flagBindings = map[string]string{
	"driver":             "browser.driver",
	"headless":           "browser.headless",
	"vision-provider":    "vision.provider",
	"vision-model":       "vision.model",
	"max-steps":          "navigator.max_steps",
	"action-delay":       "navigator.action_delay",
	"screenshot-timeout": "navigator.screenshot_timeout",
	"run-dir":            "runlog.dir",
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "relscout",
		Short:         "relscout drives a browser to a repository and extracts what you asked for.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// version needs neither config nor credentials.
			if cmd.Name() == "version" {
				return nil
			}

			// A missing .env is normal.
			_ = godotenv.Load()

			v := viper.New()
			config.SetDefaults(v)
			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "relscout"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			applyFlagOverrides(cmd, cfg)

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting relscout", zap.String("version", Version))
			if cfg.Vision.KeylessFallback {
				observability.GetLogger().Warn("No vision API key found; using the stub provider.",
					zap.String("hint", "set RELSCOUT_VISION_API_KEY or the provider's key variable"))
			}

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors.")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree under ctx.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Run aborted by signal.")
	} else if logger := observability.GetLogger(); logger != nil {
		logger.Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file and environment into v and binds
// the command's override flags.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("RELSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagBindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
	}
	return nil
}

// applyFlagOverrides handles flags that do not map one-to-one onto a key.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if f := cmd.Flags().Lookup("no-block-resources"); f != nil && f.Changed {
		cfg.Browser.BlockResources = false
	}
	if quiet {
		cfg.Logger.Level = "error"
	}
}

func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

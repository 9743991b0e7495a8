package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/observability"
	"github.com/xkilldash9x/relscout/internal/runner"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Navigate to the target and print the extracted record",
		Long: `run opens a browser on the configured start page, walks to the page the goal
asks for and prints the extracted record as JSON on stdout. A record is printed
even when navigation fails.`,
		Example: `  relscout run --repo openclaw/openclaw
  relscout run --prompt "what language is openclaw/openclaw written in" --goal custom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			p, err := buildPlan(ctx, cmd, cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("Plan ready.",
				zap.String("goal", string(p.Goal)),
				zap.String("target", p.Target),
				zap.String("search_query", p.SearchQuery))

			_, err = runner.New(cfg, logger, runner.WithOutput(cmd.OutOrStdout())).Run(ctx, p)
			if errors.Is(err, context.Canceled) {
				logger.Warn("Run cancelled, partial record written.")
			}
			return err
		},
	}

	addPlanFlags(runCmd)
	runCmd.Flags().String("driver", "", "Browser driver: chromedp or playwright. (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window. (Overrides config/env)")
	runCmd.Flags().String("vision-provider", "", "Vision provider: gemini, openai, anthropic or stub. (Overrides config/env)")
	runCmd.Flags().String("vision-model", "", "Vision model name. (Overrides config/env)")
	runCmd.Flags().Int("max-steps", 0, "Navigation step budget. (Overrides config/env)")
	runCmd.Flags().Bool("no-block-resources", false, "Load images, fonts and media.")
	runCmd.Flags().Duration("action-delay", 0, "Minimum delay between browser actions. (Overrides config/env)")
	runCmd.Flags().Duration("screenshot-timeout", 0, "Timeout for each screenshot. (Overrides config/env)")
	runCmd.Flags().String("run-dir", "", "Directory for run logs. (Overrides config/env)")
	return runCmd
}

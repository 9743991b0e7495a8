package cmd

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/config"
	"github.com/xkilldash9x/relscout/internal/llmclient"
	"github.com/xkilldash9x/relscout/internal/observability"
	"github.com/xkilldash9x/relscout/internal/plan"
)

// newPlannerClient returns the text model used to infer plans from prompts,
// or nil when none is configured. Tests replace it.
var newPlannerClient = func(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) llmclient.Client {
	if cfg.Provider == config.ProviderStub || cfg.APIKey == "" {
		return nil
	}
	client, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Planner model unavailable, using pattern matching.", zap.Error(err))
		return nil
	}
	return client
}

// addPlanFlags registers the flags that describe what to fetch.
func addPlanFlags(cmd *cobra.Command) {
	cmd.Flags().String("repo", "", "Repository as owner/name. Implies --goal latest_release unless set.")
	cmd.Flags().StringP("prompt", "p", "", "Free-text request, e.g. \"latest release of openclaw/openclaw\".")
	cmd.Flags().String("goal", "", "Goal: latest_release, code or custom.")
	cmd.Flags().StringSlice("fields", nil, "Release fields to extract (default: all).")
}

// buildPlan turns the plan flags into a validated Plan.
func buildPlan(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (plan.Plan, error) {
	repo, _ := cmd.Flags().GetString("repo")
	prompt, _ := cmd.Flags().GetString("prompt")
	goal, _ := cmd.Flags().GetString("goal")
	fields, _ := cmd.Flags().GetStringSlice("fields")

	if repo == "" && prompt == "" {
		return plan.Plan{}, errors.New("one of --repo or --prompt is required")
	}

	planner := plan.NewPlanner(newPlannerClient(ctx, cfg.Vision, logger), logger)
	p, err := planner.Plan(ctx, plan.Request{Repo: repo, Prompt: prompt, Goal: goal, Fields: fields})
	if err != nil {
		return plan.Plan{}, fmt.Errorf("failed to build plan: %w", err)
	}
	return p, nil
}

func newPlanCmd() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the plan a run would follow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			p, err := buildPlan(ctx, cmd, cfg, observability.GetLogger())
			if err != nil {
				return err
			}

			data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(p, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode plan: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	addPlanFlags(planCmd)
	return planCmd
}

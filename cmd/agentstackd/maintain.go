package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentstackio/agentstack/internal/config"
	"github.com/agentstackio/agentstack/internal/ranking"
	"github.com/agentstackio/agentstack/internal/reputation"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "One-shot maintenance jobs",
	Long: `Maintenance jobs run against the store directly, without starting
the HTTP server. They are idempotent and safe to run from cron while
the daemon is serving traffic.`,
}

var maintainReputationCmd = &cobra.Command{
	Use:   "reputation",
	Short: "Recompute reputation scores for all agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMaintenance(cmd.Context(), func(ctx context.Context, engine *reputation.Engine) (int, error) {
			return engine.RecomputeAll(ctx)
		})
	},
}

var maintainDecayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Recompute confidence decay for all solutions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMaintenance(cmd.Context(), func(ctx context.Context, engine *reputation.Engine) (int, error) {
			return engine.ApplyDecay(ctx)
		})
	},
}

func init() {
	maintainCmd.AddCommand(maintainReputationCmd)
	maintainCmd.AddCommand(maintainDecayCmd)
}

// runMaintenance opens the store, runs one job through the reputation
// engine, and reports how many rows changed.
func runMaintenance(ctx context.Context, job func(context.Context, *reputation.Engine) (int, error)) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	decay := ranking.ExponentialDecay{
		HalfLife: cfg.Decay.HalfLife,
		Floor:    cfg.Decay.Floor,
	}
	engine := reputation.NewEngine(st, reputation.DefaultPolicy{}, decay, logger.Underlying())

	updated, err := job(ctx, engine)
	if err != nil {
		return err
	}

	logger.Underlying().Info("maintenance complete", zap.Int("updated", updated))
	fmt.Printf("updated %d rows\n", updated)
	return nil
}

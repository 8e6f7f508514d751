package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/radfares/nurseRN-sub000/internal/config"
	"github.com/radfares/nurseRN-sub000/internal/contextstore"
	"github.com/radfares/nurseRN-sub000/internal/gates"
	"github.com/radfares/nurseRN-sub000/internal/orchestrator"
	"github.com/radfares/nurseRN-sub000/internal/pipeline"
	"github.com/radfares/nurseRN-sub000/internal/printer"
	"github.com/radfares/nurseRN-sub000/internal/registry"
)

var (
	runConfigPath string
	runTopic      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the evidence pipeline for a research topic",
	Long: `Run the full evidence pipeline for a research topic: planning, search,
validation, synthesis, and analysis, each guarded by its quality gate.

The standalone binary installs deterministic scaffold collaborators under
the names configured in pipeline.agents, so a run exercises the whole
machine without a model backend. Deployments embed the library and
register real collaborators instead.

Press Ctrl-C to stop the pipeline; cancellation takes effect at the next
phase boundary, never mid-call.

Examples:
  # Run against the default nursern.yml
  nursern run --topic "discharge education and 30-day readmissions"

  # Explicit configuration file
  nursern run -c ./deploy/nursern.yml -t "fall prevention in older inpatients"`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "nursern.yml", "Path to the configuration file")
	runCmd.Flags().StringVarP(&runTopic, "topic", "t", "", "Research topic (required)")
	runCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return printer.ErrorWithContext(
			"failed to load configuration",
			err.Error(),
			map[string]string{"Config": runConfigPath},
			[]string{"Create a nursern.yml, or point --config at one"},
		)
	}

	store, err := contextstore.NewStore(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Instance)
	if err != nil {
		return fmt.Errorf("failed to create context store: %w", err)
	}
	defer store.Close()

	reg := registry.NewRegistry()
	agentNames := []string{
		cfg.Pipeline.Agents.Planning,
		cfg.Pipeline.Agents.Search,
		cfg.Pipeline.Agents.Validation,
		cfg.Pipeline.Agents.Synthesis,
		cfg.Pipeline.Agents.Analysis,
	}
	if err := registerScaffoldAgents(reg, agentNames); err != nil {
		return fmt.Errorf("failed to register collaborators: %w", err)
	}

	orch, err := orchestrator.New(reg, store, orchestrator.Options{
		PoolSize:         cfg.Orchestrator.PoolSize,
		BreakerThreshold: cfg.Breaker.FailureThreshold,
		BreakerCoolDown:  cfg.BreakerCoolDown(),
		AuditDir:         cfg.Audit.Dir,
		AuditMaxSize:     cfg.Audit.MaxSizeBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Close()

	p, err := pipeline.New(reg, orch, store, gates.NewEngine(), cfg.Pipeline.Agents, *cfg.Pipeline.MaxRetries)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// Ctrl-C requests cancellation; the pipeline stops at the next phase
	// boundary. A second Ctrl-C kills the process the normal way.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		printer.Warning("stopping after the current phase...\n")
		p.RequestCancel()
	}()

	printer.Info("Running evidence pipeline for topic: %s\n\n", runTopic)
	state := p.Execute(ctx, runTopic)

	for _, record := range state.History {
		printer.Phase(string(record.Phase), fmt.Sprintf("%d attempt(s)", len(record.Attempts)))
		for _, attempt := range record.Attempts {
			printer.PhaseOutcome(string(record.Phase), attempt.GatePassed, attempt.GateMessage)
		}
	}
	printer.Println()

	if state.Current != pipeline.PhaseComplete {
		return printer.ErrorWithContext(
			"pipeline failed",
			state.Error,
			map[string]string{"Workflow": state.WorkflowID},
			[]string{"Partial phase outputs remain in the context store under this workflow id"},
		)
	}

	printer.Success("pipeline complete (workflow %s)\n\n", state.WorkflowID)
	printer.Printf("%s\n", state.Output(pipeline.PhaseAnalysis))
	return nil
}

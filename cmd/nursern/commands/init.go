package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/radfares/nurseRN-sub000/internal/printer"
)

var forceInit bool

// defaultConfig is the starter configuration written by `nursern init`.
const defaultConfig = `version: "1.0"
instance: default

redis:
  address: localhost:6379

audit:
  dir: audit

breaker:
  failure_threshold: 5
  cool_down_seconds: 30

orchestrator:
  pool_size: 4
  parallel_timeout_seconds: 120

pipeline:
  max_retries: 1
  agents:
    planning: picot-agent
    search: search-agent
    validation: validation-agent
    synthesis: synthesis-agent
    analysis: analysis-agent
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new NurseRN project",
	Long: `Initialize a new NurseRN project with a default configuration.

Creates:
  • nursern.yml - Project configuration file

Use --force to overwrite an existing configuration.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing nursern.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	const path = "nursern.yml"

	if !forceInit {
		if _, err := os.Stat(path); err == nil {
			return printer.Error(
				"nursern.yml already exists",
				"This directory is already initialized.",
				[]string{"Re-run with --force to overwrite the existing configuration"},
			)
		}
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	printer.Success("created %s\n", path)
	printer.Info("Next: start Redis, then run `nursern run --topic \"your question\"`\n")
	return nil
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nursern",
	Short: "NurseRN - evidence research pipeline for nursing practice questions",
	Long: `NurseRN runs a phased evidence-research pipeline for nursing practice
questions: PICOT formulation, evidence search, citation validation,
synthesis, and analysis.

Every phase output passes a quality gate before the pipeline advances,
every collaborator call is circuit-protected and audit-logged, and all
intermediate state is persisted to a Redis-backed context store.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/radfares/nurseRN-sub000/internal/audit"
	"github.com/radfares/nurseRN-sub000/internal/printer"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect audit trail files",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Verify the integrity of an audit trail file",
	Long: `Verify that every entry in an audit trail file is well-formed JSON.

A mismatch between total and valid entries usually means the process was
killed mid-write, or the file was edited by hand.

Examples:
  nursern audit verify audit/validation-agent.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runAuditVerify,
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path := args[0]

	total, valid, err := audit.VerifyLog(path)
	if err != nil {
		return printer.ErrorWithContext(
			"failed to verify audit file",
			err.Error(),
			map[string]string{"File": path},
			nil,
		)
	}

	if valid < total {
		return printer.ErrorWithContext(
			"audit file contains malformed entries",
			"",
			map[string]string{
				"File":      path,
				"Entries":   fmt.Sprintf("%d", total),
				"Malformed": fmt.Sprintf("%d", total-valid),
			},
			[]string{"Rotated files keep the valid prefix; the malformed tail indicates a mid-write crash"},
		)
	}

	printer.Success("all %d entries are well-formed (%s)\n", total, path)
	return nil
}

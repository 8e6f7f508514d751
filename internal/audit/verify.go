package audit

import (
	"encoding/json"
	"fmt"
	"os"
)

// VerifyLog scans an audit file and reports how many entries it holds and
// how many of them are well-formed. Malformed lines are skipped, not fatal -
// the point is diagnosing a trail, not refusing to read it.
func VerifyLog(path string) (total, valid int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	for decoder.More() {
		total++

		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			// Resync is not possible mid-stream; count the rest as malformed.
			return total, valid, nil
		}

		if entry.Collaborator != "" && entry.Action != "" && !entry.Timestamp.IsZero() {
			valid++
		}
	}

	return total, valid, nil
}

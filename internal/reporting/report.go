package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"stagectl/internal/orchestrator"
)

// SaveReport writes result as indented JSON into dir and returns the file path.
func SaveReport(dir string, result orchestrator.RunResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	filename := fmt.Sprintf("stagectl-report-%s-%s.json", result.StartTime.Format("20060102-150405"), shortID(result.RunID))
	fullPath := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return fullPath, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package storage

import (
	"fmt"
	"strings"
	"time"
)

const latestReportName = "latest.json"

// ReportObjectPath returns prefix/YYYY/MM/DD/<reportID>.json for a report generated at generatedAt (UTC).
func ReportObjectPath(prefix string, generatedAt time.Time, reportID string) (string, error) {
	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return "", err
	}
	reportID, err = validateSegment("reportID", reportID)
	if err != nil {
		return "", err
	}
	if generatedAt.IsZero() {
		return "", fmt.Errorf("storage: generatedAt is required")
	}
	day := generatedAt.UTC().Format("2006/01/02")
	return joinPath(prefix, day, reportID+".json"), nil
}

// LatestReportPath returns the stable alias that always holds the most recent report.
func LatestReportPath(prefix string) (string, error) {
	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return "", err
	}
	return joinPath(prefix, latestReportName), nil
}

func cleanPrefix(prefix string) (string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "", nil
	}
	for _, segment := range strings.Split(prefix, "/") {
		if _, err := validateSegment("prefix", segment); err != nil {
			return "", err
		}
	}
	return prefix, nil
}

func joinPath(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

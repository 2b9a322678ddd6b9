package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// exampleYAML is the starter configuration written by `driftguard init`.
// It must load cleanly through Load.
const exampleYAML = `# DriftGuard agent configuration.
version: "1"

agent:
  id: driftguard-agent
  log_level: info   # debug | info | warn | error
  log_format: text  # text | json

storage:
  backend: sqlite
  path: ./driftguard.db

sources:
  - name: orders_daily
    type: sql
    dialect: postgres
    # Credentials belong in environment variables, not in this file.
    connection: ${DATABASE_URL}
    query: |
      SELECT count(*) AS row_count, max(created_at) AS latest_timestamp
      FROM orders
      WHERE created_at > now() - interval '1 day'
    schedule: "0 6 * * *"
    freshness:
      max_age_hours: 26
      factor: 2.0
    volume:
      min_row_count: 1
      deviation_factor: 3.0
    schema_drift: true
    enabled: true

alerting:
  cooldown_minutes: 60
  webhooks:
    - name: ops-slack
      url: ${SLACK_WEBHOOK_URL}
      events: [anomaly, recovery]
      timeout_seconds: 10

retention:
  days: 30
  min_snapshots: 10

baseline:
  window_size: 20
  max_age_days: 30
`

// ExampleConfig returns a commented starter configuration.
func ExampleConfig() string { return exampleYAML }

// WriteExample writes the starter configuration to path, refusing to
// overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	return os.WriteFile(path, []byte(exampleYAML), 0o644)
}

// FindFile returns the first config file present in the conventional
// locations, or an empty string when none exists.
func FindFile() string {
	candidates := []string{"driftguard.yaml", "driftguard.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "driftguard", "driftguard.yaml"))
	}
	candidates = append(candidates, "/etc/driftguard/driftguard.yaml")

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

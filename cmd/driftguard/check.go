package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/alert"
	"github.com/driftguard/driftguard/internal/daemon"
	"github.com/driftguard/driftguard/internal/detect"
	"github.com/driftguard/driftguard/internal/webhook"
	"github.com/driftguard/driftguard/pkg/types"
)

var (
	checkSource string
	checkForce  bool
	checkDryRun bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one check pass over due sources",
	Long: "Collects, stores and analyzes every due source, dispatching alerts on state transitions. " +
		"Exit code 0 means all checked sources are OK, 2 means at least one came back WARNING or ANOMALY.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		pipeline := alert.NewPipeline(cfg.Alerting, st, webhook.New(checkDryRun), cfg.Agent.ID, checkDryRun)
		runner := daemon.NewRunner(cfg, st, detect.NewEngine(), pipeline, nil)

		results, err := runner.RunOnce(cmd.Context(), checkForce, checkSource)
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := printJSON(checkReport(results)); err != nil {
				return err
			}
		} else {
			printResults(results)
		}

		for _, res := range results {
			if res.Err != nil {
				return fmt.Errorf("source %q: %w", res.Source, res.Err)
			}
		}
		for _, res := range results {
			if d := res.Decision; d != nil && d.Status != types.StatusOK {
				return errChecksNotOK
			}
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkSource, "source", "", "check only this source")
	checkCmd.Flags().BoolVar(&checkForce, "force", false, "ignore schedules and check everything")
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "evaluate without sending webhooks or recording alert state")
	rootCmd.AddCommand(checkCmd)
}

func printResults(results []daemon.CheckResult) {
	var checked, notOK int
	for _, res := range results {
		if res.Skipped {
			printf("%s  %s\n", dimStyle.Render("skip"), res.Source)
			continue
		}
		if res.Err != nil {
			printf("%s  %s: %v\n", errStyle.Render("err "), res.Source, res.Err)
			continue
		}
		checked++

		d := res.Decision
		printf("%s  %s (confidence %.2f)\n", renderStatus(string(d.Status)), res.Source, d.Confidence)
		for _, reason := range d.Reasons {
			printf("      %s %s\n", headStyle.Render(reason.Code+":"), reason.Message)
		}
		for target, ok := range res.Dispatched {
			outcome := okStyle.Render("sent/skipped")
			if !ok {
				outcome = errStyle.Render("failed")
			}
			printf("      %s %s\n", dimStyle.Render("webhook "+target+":"), outcome)
		}
		if d.Status != types.StatusOK {
			notOK++
		}
	}

	summary := fmt.Sprintf("%d checked, %d not OK, %d skipped", checked, notOK, len(results)-checked)
	printf("%s\n", strings.Repeat("-", len(summary)))
	printf("%s\n", summary)
}

func checkReport(results []daemon.CheckResult) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		entry := map[string]any{"source": res.Source, "skipped": res.Skipped}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		}
		if d := res.Decision; d != nil {
			entry["status"] = d.Status
			entry["confidence"] = d.Confidence
			entry["reasons"] = d.Reasons
			entry["webhooks"] = res.Dispatched
		}
		out = append(out, entry)
	}
	return out
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/detect"
)

var explainSource string

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Show the thresholds and computed baseline for one source",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var src *config.Source
		for i := range cfg.Sources {
			if cfg.Sources[i].Name == explainSource {
				src = &cfg.Sources[i]
				break
			}
		}
		if src == nil {
			return fmt.Errorf("unknown source %q", explainSource)
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		history, err := st.ListSnapshots(src.Name, cfg.Baseline.WindowSize, cfg.Baseline.MaxAgeDays, true)
		if err != nil {
			return err
		}
		baseline := detect.Baseline(history)

		if jsonOutput {
			return printJSON(map[string]any{
				"source":   src,
				"baseline": baseline.PayloadFields(),
			})
		}

		printf("%s\n", headStyle.Render(src.Name))
		printf("  schedule:          %s\n", src.Schedule)
		printf("  schema drift:      %v\n", src.SchemaDriftEnabled())
		if src.Freshness.MaxAgeHours != nil {
			printf("  max data age:      %gh\n", *src.Freshness.MaxAgeHours)
		}
		printf("  gap factor:        %g\n", src.Freshness.Factor)
		if src.Volume.MinRowCount != nil {
			printf("  min row count:     %d\n", *src.Volume.MinRowCount)
		}
		printf("  deviation factor:  %g\n", src.Volume.DeviationFactor)

		printf("\n%s (%d snapshots)\n", headStyle.Render("baseline"), baseline.SnapshotCount)
		if baseline.SnapshotCount == 0 {
			printf("  %s\n", dimStyle.Render("no successful history yet"))
			return nil
		}
		if baseline.RowCountMedian != nil {
			printf("  row count:         median %.0f, min %.0f, max %.0f, stddev %.1f\n",
				*baseline.RowCountMedian, *baseline.RowCountMin, *baseline.RowCountMax, *baseline.RowCountStddev)
		}
		if baseline.ExpectedIntervalSeconds != nil {
			printf("  expected interval: %s\n", time.Duration(*baseline.ExpectedIntervalSeconds*float64(time.Second)).Round(time.Second))
		}
		if baseline.OldestSnapshotAt != nil {
			printf("  window:            %s .. %s\n",
				baseline.OldestSnapshotAt.Format(time.RFC3339), baseline.NewestSnapshotAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainSource, "source", "", "source name (required)")
	explainCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(explainCmd)
}

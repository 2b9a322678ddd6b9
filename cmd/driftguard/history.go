package main

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	historyLimit      int
	historyDeliveries bool
)

var historyCmd = &cobra.Command{
	Use:   "history <source>",
	Short: "Show recent snapshots (or deliveries) for one source",
	Args:  cobra.ExactArgs(1),
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

		source := args[0]

		if historyDeliveries {
			recs, err := st.RecentDeliveries(source, historyLimit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(recs)
			}
			for _, rec := range recs {
				outcome := okStyle.Render("ok")
				if !rec.Result.Success {
					outcome = errStyle.Render("failed")
				}
				printf("%s  %-16s %-8s %s  status=%d attempts=%d %dms\n",
					dimStyle.Render(rec.SentAt.Format(time.RFC3339)),
					rec.TargetName, rec.EventType, outcome,
					rec.Result.StatusCode, rec.Result.Attempts, rec.Result.LatencyMS)
			}
			return nil
		}

		snaps, err := st.ListSnapshots(source, historyLimit, 365, false)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(snaps)
		}
		for _, snap := range snaps {
			printf("%s  %s", dimStyle.Render(snap.CollectedAt.Format(time.RFC3339)),
				renderStatus(string(snap.CollectStatus)))
			if rc, ok := snap.RowCount(); ok {
				printf("  rows=%d", rc)
			}
			if ts, ok := snap.LatestTimestamp(); ok {
				printf("  latest=%s", ts.Format(time.RFC3339))
			}
			if msg := snap.ErrorMessage(); msg != "" {
				printf("  %s", errStyle.Render(msg))
			}
			printf("\n")
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of entries to show")
	historyCmd.Flags().BoolVar(&historyDeliveries, "deliveries", false, "show the webhook delivery log instead of snapshots")
	rootCmd.AddCommand(historyCmd)
}

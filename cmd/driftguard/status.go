package main

import (
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last observation of every configured source",
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

		type row struct {
			Source      string `json:"source"`
			Status      string `json:"status"`
			CollectedAt string `json:"collected_at,omitempty"`
			RowCount    *int64 `json:"row_count,omitempty"`
			Error       string `json:"error,omitempty"`
		}
		var rows []row

		for _, src := range cfg.Sources {
			last, err := st.LastSnapshot(src.Name)
			if err != nil {
				return err
			}
			r := row{Source: src.Name, Status: "never checked"}
			if last != nil {
				r.Status = string(last.CollectStatus)
				r.CollectedAt = last.CollectedAt.Format(time.RFC3339)
				if rc, ok := last.RowCount(); ok {
					r.RowCount = &rc
				}
				r.Error = last.ErrorMessage()
			}
			rows = append(rows, r)
		}

		if jsonOutput {
			return printJSON(rows)
		}
		for _, r := range rows {
			printf("%-24s %s", r.Source, renderStatus(r.Status))
			if r.CollectedAt != "" {
				printf("  %s", dimStyle.Render(r.CollectedAt))
			}
			if r.RowCount != nil {
				printf("  rows=%d", *r.RowCount)
			}
			if r.Error != "" {
				printf("  %s", errStyle.Render(r.Error))
			}
			printf("\n")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

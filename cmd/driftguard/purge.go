package main

import (
	"github.com/spf13/cobra"
)

var purgeDryRun bool

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete snapshots and delivery log entries past retention",
	Long:  "Removes snapshots older than retention.days, always keeping the newest retention.min_snapshots per source, and delivery log entries older than the same cutoff.",
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

		if purgeDryRun {
			n, err := st.CountPrunable(cfg.Retention.Days, cfg.Retention.MinSnapshots)
			if err != nil {
				return err
			}
			printf("would delete %d rows (retention %dd, keeping newest %d per source)\n",
				n, cfg.Retention.Days, cfg.Retention.MinSnapshots)
			return nil
		}

		n, err := st.PurgeRetention(cfg.Retention.Days, cfg.Retention.MinSnapshots)
		if err != nil {
			return err
		}
		printf("deleted %d rows\n", n)
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeDryRun, "dry-run", false, "report what would be deleted without deleting")
	rootCmd.AddCommand(purgeCmd)
}

package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the state database schema up to date",
	Long:  "Opening the store runs pending migrations; this command does that explicitly and reports the schema version. It refuses databases written by a newer build.",
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

		version, err := st.SchemaVersion()
		if err != nil {
			return err
		}
		printf("schema version %d at %s\n", version, cfg.Storage.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

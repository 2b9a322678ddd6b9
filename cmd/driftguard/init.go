package main

import (
	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/config"
)

var initPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented starter configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteExample(initPath); err != nil {
			return err
		}
		printf("wrote %s\n", initPath)
		printf("%s\n", dimStyle.Render("edit the sources, export the referenced environment variables, then run `driftguard validate`"))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initPath, "path", "driftguard.yaml", "where to write the config file")
	rootCmd.AddCommand(initCmd)
}

package main

import (
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file and its environment references",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(map[string]any{
				"valid":    true,
				"sources":  len(cfg.Sources),
				"webhooks": len(cfg.Alerting.Webhooks),
			})
		}
		printf("%s %s\n", okStyle.Render("valid:"), resolvedConfigPath())
		printf("  sources:  %d\n", len(cfg.Sources))
		printf("  webhooks: %d\n", len(cfg.Alerting.Webhooks))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/driftguard/driftguard/internal/config"
)

var renderConfigCmd = &cobra.Command{
	Use:   "render-config",
	Short: "Print the effective configuration with secrets masked",
	Long:  "Loads the config, applies defaults, resolves ${VAR} environment references, masks credentials and prints the result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		masked := *cfg
		masked.Sources = append([]config.Source(nil), cfg.Sources...)
		for i := range masked.Sources {
			masked.Sources[i].Connection = config.MaskSecrets(masked.Sources[i].Connection)
		}
		masked.Alerting.Webhooks = append([]config.Webhook(nil), cfg.Alerting.Webhooks...)
		for i := range masked.Alerting.Webhooks {
			masked.Alerting.Webhooks[i].URL = config.MaskSecrets(masked.Alerting.Webhooks[i].URL)
			if masked.Alerting.Webhooks[i].Secret != "" {
				masked.Alerting.Webhooks[i].Secret = "***"
			}
		}

		if jsonOutput {
			return printJSON(masked)
		}
		out, err := yaml.Marshal(masked)
		if err != nil {
			return err
		}
		printf("%s", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderConfigCmd)
}

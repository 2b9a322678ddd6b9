package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/webhook"
	"github.com/driftguard/driftguard/pkg/types"
)

var testWebhookTarget string

var testWebhookCmd = &cobra.Command{
	Use:   "test-webhook",
	Short: "Send a test event to the configured webhooks",
	Long:  "Posts a signed info event to each webhook target (ignoring event filters) so receivers can be verified end to end.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		decision := types.Decision{
			Status: types.StatusUnknown,
			Reasons: []types.Reason{{
				Code:    "TEST",
				Message: "Test event from `driftguard test-webhook`",
			}},
			Metrics:    map[string]any{},
			Confidence: 1.0,
		}
		payload := types.NewWebhookPayload(types.EventInfo, "driftguard-test", "test",
			cfg.Agent.ID, decision, time.Now())

		deliverer := webhook.New(false)
		failed := 0
		matched := false
		for _, wh := range cfg.Alerting.Webhooks {
			if testWebhookTarget != "" && wh.Name != testWebhookTarget {
				continue
			}
			matched = true

			url, err := config.ResolveString(wh.URL)
			if err != nil {
				return err
			}
			secret, err := config.ResolveString(wh.Secret)
			if err != nil {
				return err
			}
			wh.URL, wh.Secret = url, secret

			res := deliverer.Deliver(cmd.Context(), payload, wh)
			if res.Success {
				printf("%-24s %s  status=%d attempts=%d %dms\n",
					wh.Name, okStyle.Render("ok"), res.StatusCode, res.Attempts, res.LatencyMS)
			} else {
				failed++
				printf("%-24s %s  %s\n", wh.Name, errStyle.Render("failed"), res.Error)
			}
		}

		if testWebhookTarget != "" && !matched {
			return fmt.Errorf("unknown webhook %q", testWebhookTarget)
		}
		if failed > 0 {
			return fmt.Errorf("%d webhook(s) failed", failed)
		}
		return nil
	},
}

func init() {
	testWebhookCmd.Flags().StringVar(&testWebhookTarget, "target", "", "send only to this webhook")
	rootCmd.AddCommand(testWebhookCmd)
}

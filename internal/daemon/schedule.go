package daemon

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/driftguard/driftguard/pkg/types"
)

// cronParser accepts standard 5-field cron expressions, no seconds field.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks that expr is a parseable 5-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// isDue reports whether a source scheduled with expr should be checked now,
// anchored at its last snapshot. No snapshot means due immediately.
func isDue(expr string, last *types.Snapshot, now time.Time) (bool, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return false, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if last == nil {
		return true, nil
	}
	return !sched.Next(last.CollectedAt).After(now), nil
}

package schedule

import (
	"context"
	"fmt"
	"os"

	"github.com/julianstephens/daylitd/internal/cli"
	"github.com/julianstephens/daylitd/internal/models"
)

type AlertsCmd struct {
	User   string `arg:"" help:"User id."`
	Status string `help:"Only list alerts with this status (pending, resolved, dismissed, accepted)."`
}

func (c *AlertsCmd) Run(ctx *cli.Context) error {
	defer ctx.Store.Close()

	status := models.AlertStatus(c.Status)
	switch status {
	case "", models.AlertPending, models.AlertResolved, models.AlertDismissed, models.AlertAccepted:
	default:
		return fmt.Errorf("unknown alert status %q", c.Status)
	}

	alerts, err := ctx.Store.ListAlerts(context.Background(), c.User, status)
	if err != nil {
		return fmt.Errorf("failed to get alerts: %w", err)
	}
	if len(alerts) == 0 {
		fmt.Println("No alerts.")
		return nil
	}
	renderAlerts(os.Stdout, alerts)
	return nil
}

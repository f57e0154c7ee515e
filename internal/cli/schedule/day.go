package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/julianstephens/daylitd/internal/cli"
	"github.com/julianstephens/daylitd/internal/daycontext"
	"github.com/julianstephens/daylitd/internal/utils"
)

type DayCmd struct {
	User     string `arg:"" help:"User id."`
	Date     string `help:"Local date (YYYY-MM-DD). Defaults to today."`
	Timezone string `help:"IANA timezone. Defaults to the user's preference."`
	JSON     bool   `help:"Print the day context as JSON."`
}

func (c *DayCmd) Run(ctx *cli.Context) error {
	defer ctx.Store.Close()
	bg := context.Background()

	if c.Date != "" && !utils.ValidateDate(c.Date) {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", c.Date)
	}
	if !utils.ValidateTimezone(c.Timezone) {
		return fmt.Errorf("unknown timezone %q", c.Timezone)
	}

	date := c.Date
	if date == "" {
		tz := c.Timezone
		if tz == "" {
			prefs, err := ctx.Store.GetPreferences(bg, c.User)
			if err != nil {
				return fmt.Errorf("failed to load preferences: %w", err)
			}
			tz = prefs.Timezone
		}
		date = utils.LocalDate(time.Now(), utils.ResolveLocation(tz))
	}

	day, err := daycontext.NewBuilder(ctx.Store).Build(bg, c.User, date, c.Timezone)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(day)
	}
	renderDay(os.Stdout, day)
	return nil
}

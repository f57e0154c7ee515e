package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/julianstephens/daylitd/internal/cli"
	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/eventbus"
)

// PublishCmd appends an event to the log. Subscribers see it on the next sweep.
type PublishCmd struct {
	User    string `arg:"" help:"User id."`
	Type    string `arg:"" help:"Event type, e.g. calendar.event.synced."`
	Payload string `help:"JSON payload." default:"{}"`
	Source  string `help:"Event source." default:"${default_source}"`
}

func (c *PublishCmd) Run(ctx *cli.Context) error {
	defer ctx.Store.Close()

	eventType := constants.EventType(c.Type)
	if !eventType.Valid() {
		return fmt.Errorf("unknown event type %q (expected one of %v)", c.Type, constants.EventTypes)
	}
	if !json.Valid([]byte(c.Payload)) {
		return errors.New("--payload must be valid JSON")
	}

	subs, err := ctx.Subscriptions()
	if err != nil {
		return err
	}
	// Publishing never dispatches, so the bus needs no dispatcher.
	id := eventbus.New(ctx.Store, subs, nil).Publish(context.Background(), c.User, eventType, c.Source, json.RawMessage(c.Payload))
	if id == "" {
		return errors.New("failed to publish event; see the log for details")
	}
	fmt.Println(id)
	return nil
}

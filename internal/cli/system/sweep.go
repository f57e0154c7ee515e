package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/daylitd/internal/cli"
	"github.com/julianstephens/daylitd/internal/lockfile"
)

// SweepCmd runs a single sweep with in-process subscribers.
type SweepCmd struct{}

func (c *SweepCmd) Run(ctx *cli.Context) error {
	defer ctx.Store.Close()

	lock, err := lockfile.Acquire(lockPath(ctx), "sweep")
	if err != nil {
		return err
	}
	defer lock.Release()

	p, err := ctx.Pipeline(nil)
	if err != nil {
		return err
	}
	n, err := p.Bus.ProcessEvents(context.Background())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	fmt.Printf("Completed %d event(s).\n", n)
	return nil
}

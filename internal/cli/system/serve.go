package system

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/julianstephens/daylitd/internal/cli"
	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/eventbus"
	"github.com/julianstephens/daylitd/internal/keyring"
	"github.com/julianstephens/daylitd/internal/lockfile"
	"github.com/julianstephens/daylitd/internal/logger"
	"github.com/julianstephens/daylitd/internal/server"
)

const shutdownTimeout = 10 * time.Second

type ServeCmd struct {
	Addr          string        `help:"Listen address." default:"127.0.0.1:8080" env:"DAYLITD_ADDR"`
	Token         string        `help:"Bearer token required on /v1 endpoints. Falls back to the keyring." env:"DAYLITD_TOKEN"`
	Dispatch      string        `help:"Subscriber delivery (${enum})." enum:"local,http" default:"local" env:"DAYLITD_DISPATCH"`
	SubscriberURL string        `help:"Subscriber service base URL for http delivery." env:"DAYLITD_SUBSCRIBER_URL"`
	SweepInterval time.Duration `help:"Interval between event sweeps." default:"30s" env:"DAYLITD_SWEEP_INTERVAL"`
	NoSweep       bool          `help:"Serve requests without sweeping events." env:"DAYLITD_NO_SWEEP"`
}

// dispatchTimeout covers one subscriber run: a reasoning call under the
// full retry budget plus one call timeout for the store work around it.
func dispatchTimeout(ctx *cli.Context) time.Duration {
	return ctx.RetryPolicy().Budget() + constants.DefaultCallTimeout
}

func (c *ServeCmd) Run(ctx *cli.Context) error {
	defer ctx.Store.Close()
	log := logger.For("serve")

	token := keyring.Resolve(c.Token, keyring.ServiceToken)
	if token == "" {
		return errors.New("no service token configured; pass --token or run 'daylitd keyring set service-token <token>'")
	}

	var remote eventbus.Dispatcher
	if c.Dispatch == "http" {
		if c.SubscriberURL == "" {
			return errors.New("--subscriber-url is required with --dispatch=http")
		}
		remote = eventbus.NewHTTPDispatcher(&http.Client{Timeout: dispatchTimeout(ctx)}, c.SubscriberURL, token)
	}

	p, err := ctx.Pipeline(remote)
	if err != nil {
		return err
	}

	srv := server.New(server.Deps{
		Guardian:     p.Guardian,
		Negotiator:   p.Negotiator,
		Orchestrator: p.Orchestrator,
		Events:       p.Bus,
		Subscribers:  p.Local,
	}, c.Addr, token)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !c.NoSweep {
		lock, err := lockfile.Acquire(lockPath(ctx), c.Addr)
		if err != nil {
			var held *lockfile.HeldError
			if errors.As(err, &held) {
				return fmt.Errorf("%w; run with --no-sweep to serve without sweeping", err)
			}
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.Warn("Failed to release sweeper lock", "error", err)
			}
		}()

		sweeper := eventbus.NewSweeper(p.Bus, c.SweepInterval)
		sweeper.Start(runCtx)
		defer sweeper.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()
	fmt.Printf("daylitd %s listening on %s (dispatch=%s, sweep=%t)\n", constants.Version, c.Addr, c.Dispatch, !c.NoSweep)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", "error", err)
	}
	log.Info("Shutdown complete")
	return nil
}

func lockPath(ctx *cli.Context) string {
	dir := ctx.StateDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, constants.SweeperLockfileName)
}

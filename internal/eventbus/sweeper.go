package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/julianstephens/daylitd/internal/constants"
)

// Sweeper drives ProcessEvents on a fixed interval until stopped.
type Sweeper struct {
	bus      *Bus
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(bus *Bus, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = constants.DefaultSweepInterval
	}
	return &Sweeper{bus: bus, interval: interval}
}

// Start launches the sweep loop. The first sweep runs immediately.
func (s *Sweeper) Start(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	s.wg.Add(1)
	go s.loop()
	s.bus.log.Info("Started sweeper", "interval", s.interval)
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.bus.log.Info("Stopped sweeper")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	if _, err := s.bus.ProcessEvents(s.ctx); err != nil && s.ctx.Err() == nil {
		s.bus.log.Error("Sweep failed", "error", err)
	}
}

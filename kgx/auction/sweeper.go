package auction

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Clock abstracts time for the sweeper so tests can drive ticks without
// real sleeps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

const (
	defaultSweepParallelism = 4
	sweepTimeout            = 30 * time.Second
)

// Sweeper periodically finalizes auctions whose end time has passed. It
// ticks at the top of every minute, scanning the binding registry and
// attempting a conditional release for each expired auction. A failure on
// one channel never aborts the rest of the sweep.
type Sweeper struct {
	store       Store
	registry    BindingRegistry
	notifier    Notifier
	clock       Clock
	parallelism int
	shutdown    chan struct{}
	done        chan struct{}
}

func NewSweeper(store Store, registry BindingRegistry, notifier Notifier, clock Clock) *Sweeper {
	if clock == nil {
		clock = SystemClock()
	}
	return &Sweeper{
		store:       store,
		registry:    registry,
		notifier:    notifier,
		clock:       clock,
		parallelism: defaultSweepParallelism,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the sweep loop. It runs until Shutdown is called.
func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.done)
	for {
		select {
		case <-s.clock.After(untilNextMinute(s.clock.Now())):
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			s.Sweep(ctx)
			cancel()
		case <-s.shutdown:
			return
		}
	}
}

// Shutdown stops the sweep loop and waits for the current tick to finish.
func (s *Sweeper) Shutdown() {
	close(s.shutdown)
	<-s.done
	slog.Info("Auction sweeper shutdown completed")
}

// Sweep runs a single pass over all active bindings. Exposed so the
// hosting process can force a pass at startup to catch auctions that
// expired while it was down.
func (s *Sweeper) Sweep(ctx context.Context) {
	bindings, err := s.registry.ListActive(ctx)
	if err != nil {
		slog.Error("Failed to list active auctions for sweep",
			slog.String("error", err.Error()))
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.parallelism)
	for _, b := range bindings {
		b := b
		g.Go(func() error {
			if err := s.finalizeIfExpired(ctx, b); err != nil {
				slog.Error("Failed to finalize expired auction",
					slog.String("channel_id", b.ChannelID),
					slog.Int64("auction_id", b.AuctionID),
					slog.String("error", err.Error()))
			}
			// Per-channel failures are isolated; never abort the sweep.
			return nil
		})
	}
	g.Wait()
}

func (s *Sweeper) finalizeIfExpired(ctx context.Context, b ActiveBinding) error {
	a, err := s.store.GetAuction(ctx, b.AuctionID)
	if err != nil {
		return err
	}
	if !a.Expired(s.clock.Now()) {
		return nil
	}

	released, err := s.registry.Release(ctx, b.ChannelID, b.AuctionID)
	if err != nil {
		return err
	}
	if !released {
		// An instant-win bid finalized this auction first.
		return nil
	}

	// Re-read after the release: a bid may have committed between the
	// snapshot above and the release, and the announcement must name the
	// final highest bidder. The release already happened, so on a failed
	// re-read fall back to the snapshot rather than dropping the
	// announcement.
	if fresh, err := s.store.GetAuction(ctx, b.AuctionID); err == nil {
		a = fresh
	}

	var winner *Winner
	if last := a.LastBid(); last != nil {
		winner = &Winner{BidderID: last.BidderID, Price: last.Price}
	}
	s.notifier.NotifyFinalized(b.ChannelID, winner)

	slog.Info("Auction finalized by sweep",
		slog.Int64("auction_id", b.AuctionID),
		slog.String("channel_id", b.ChannelID),
		slog.Bool("had_bids", winner != nil))
	return nil
}

func untilNextMinute(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

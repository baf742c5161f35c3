package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soundofhorizon/kgx-go/kgx/database/models"
)

var (
	// ErrStartPriceTooLow is returned by CreateAuction for start prices below 1.
	ErrStartPriceTooLow = errors.New("start price must be at least 1")
	// ErrBinBelowStart is returned when the instant-win price is below the
	// start price.
	ErrBinBelowStart = errors.New("instant-win price is below the start price")
)

// Engine drives the lifecycle of channel auctions: creation, bid
// validation, and instant-win finalization. Expiry-driven finalization is
// the Sweeper's job; both converge on the registry's conditional release.
type Engine struct {
	store    Store
	registry BindingRegistry
	notifier Notifier
}

func NewEngine(store Store, registry BindingRegistry, notifier Notifier) *Engine {
	if store == nil {
		panic("auction store cannot be nil")
	}
	if registry == nil {
		panic("binding registry cannot be nil")
	}
	if notifier == nil {
		panic("notifier cannot be nil")
	}
	return &Engine{
		store:    store,
		registry: registry,
		notifier: notifier,
	}
}

// CreateParams holds the listing parameters supplied by the owner.
type CreateParams struct {
	ChannelID  string
	OwnerID    string
	Item       string
	StartPrice int64
	BinPrice   *int64
	Duration   time.Duration
	Unit       string
	Notice     string
}

// CreateAuction validates the listing, persists it, and binds it to its
// channel. Returns ErrAlreadyBound when the channel already hosts a live
// auction.
func (e *Engine) CreateAuction(ctx context.Context, params CreateParams) (*models.Auction, error) {
	if params.StartPrice < 1 {
		return nil, ErrStartPriceTooLow
	}
	if params.BinPrice != nil && *params.BinPrice < params.StartPrice {
		return nil, ErrBinBelowStart
	}

	if _, bound, err := e.registry.Lookup(ctx, params.ChannelID); err != nil {
		return nil, fmt.Errorf("failed to check channel binding: %w", err)
	} else if bound {
		return nil, ErrAlreadyBound
	}

	a := &models.Auction{
		ChannelID:  params.ChannelID,
		OwnerID:    params.OwnerID,
		Item:       params.Item,
		StartPrice: params.StartPrice,
		BinPrice:   params.BinPrice,
		EndTime:    time.Now().Add(params.Duration),
		Unit:       params.Unit,
		Notice:     params.Notice,
	}
	if err := e.store.CreateAuction(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	// Bind is the authority on "one auction per channel"; the Lookup above
	// only gives a friendly early exit. When a concurrent listing wins the
	// race the orphaned row stays unbound and never becomes active.
	if err := e.registry.Bind(ctx, params.ChannelID, a.ID); err != nil {
		return nil, err
	}

	slog.Info("Auction created",
		slog.Int64("auction_id", a.ID),
		slog.String("channel_id", a.ChannelID),
		slog.String("owner_id", a.OwnerID),
		slog.Int64("start_price", a.StartPrice),
		slog.Time("end_time", a.EndTime))

	return a, nil
}

// SubmitBid validates a bid against the channel's live auction and, when
// valid, appends it to the bid history. A bid at or above the instant-win
// price finalizes the auction: the binding is released conditionally so
// that a race with the expiry sweep announces the result exactly once.
// Rejections are terminal for the call; there are no internal retries.
func (e *Engine) SubmitBid(ctx context.Context, channelID string, bidderID string, price int64) (BidOutcome, error) {
	auctionID, bound, err := e.registry.Lookup(ctx, channelID)
	if err != nil {
		return BidOutcome{}, fmt.Errorf("failed to look up channel binding: %w", err)
	}
	if !bound {
		return BidOutcome{Reason: RejectNoActiveAuction}, nil
	}

	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return BidOutcome{}, fmt.Errorf("failed to load auction %d: %w", auctionID, err)
	}

	if bidderID == a.OwnerID {
		return BidOutcome{Reason: RejectByOwner}, nil
	}

	endsAuction := a.BinPrice != nil && price >= *a.BinPrice

	if last := a.LastBid(); last == nil {
		if price < a.StartPrice {
			return BidOutcome{Reason: RejectBelowStartPrice}, nil
		}
	} else {
		if price <= last.Price {
			return BidOutcome{Reason: RejectNotAboveLast}, nil
		}
		// The terminal bid is exempt: same-bidder exclusion prevents
		// trivial self-bidding-up, not taking the instant win.
		if bidderID == last.BidderID && !endsAuction {
			return BidOutcome{Reason: RejectSameBidder}, nil
		}
	}

	if err := e.store.AppendBid(ctx, a.ID, bidderID, price); err != nil {
		if errors.Is(err, ErrBidConflict) {
			// A concurrent bid committed first; this one is no longer
			// above the last price.
			return BidOutcome{Reason: RejectNotAboveLast}, nil
		}
		return BidOutcome{}, fmt.Errorf("failed to append bid: %w", err)
	}

	e.notifier.NotifyBid(channelID, bidderID, price, endsAuction)

	if endsAuction {
		released, err := e.registry.Release(ctx, channelID, a.ID)
		if err != nil {
			return BidOutcome{}, fmt.Errorf("failed to release channel binding: %w", err)
		}
		if released {
			e.notifier.NotifyFinalized(channelID, &Winner{BidderID: bidderID, Price: price})
			slog.Info("Auction finalized by instant-win bid",
				slog.Int64("auction_id", a.ID),
				slog.String("channel_id", channelID),
				slog.String("bidder_id", bidderID),
				slog.Int64("price", price))
		}
		// A false release means the sweeper or another instant-win bid got
		// there first; the bid stays recorded for audit, no duplicate
		// announcement.
	}

	return BidOutcome{Accepted: true, EndsAuction: endsAuction}, nil
}

// GetAuction loads the auction currently bound to channelID, or reports
// that none is live.
func (e *Engine) GetAuction(ctx context.Context, channelID string) (*models.Auction, bool, error) {
	auctionID, bound, err := e.registry.Lookup(ctx, channelID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up channel binding: %w", err)
	}
	if !bound {
		return nil, false, nil
	}
	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load auction %d: %w", auctionID, err)
	}
	return a, true, nil
}

package auction

import (
	"context"
	"errors"

	"github.com/soundofhorizon/kgx-go/kgx/database/models"
)

var (
	// ErrAlreadyBound is returned by Bind when the channel already hosts an
	// active auction.
	ErrAlreadyBound = errors.New("channel already has an active auction")

	// ErrNotFound is returned when no auction exists for the given id.
	ErrNotFound = errors.New("auction not found")

	// ErrBidConflict is returned by AppendBid when the strictly-increasing
	// price check fails inside the append transaction.
	ErrBidConflict = errors.New("bid conflicts with a newer bid")
)

// Store is the persistence contract for auction rows and their bid history.
type Store interface {
	CreateAuction(ctx context.Context, a *models.Auction) error
	// GetAuction loads an auction together with its bid history in
	// insertion order. Returns ErrNotFound when no row exists.
	GetAuction(ctx context.Context, id int64) (*models.Auction, error)
	// AppendBid atomically appends a bid to the auction's history. The
	// strictly-increasing price check is re-validated inside the same
	// transaction that reads the current last bid; a lost-update race
	// surfaces as ErrBidConflict.
	AppendBid(ctx context.Context, auctionID int64, bidderID string, price int64) error
}

// BindingRegistry tracks which auction, if any, is live in each channel.
// It is the single source of truth for whether an auction is still open.
type BindingRegistry interface {
	// Bind records channelID -> auctionID. Fails with ErrAlreadyBound if
	// the channel is already bound to an active auction.
	Bind(ctx context.Context, channelID string, auctionID int64) error
	Lookup(ctx context.Context, channelID string) (int64, bool, error)
	// Release conditionally clears the binding: it succeeds only if the
	// channel is currently bound to auctionID. At most one caller observes
	// true for a given auction, even under concurrent release attempts.
	Release(ctx context.Context, channelID string, auctionID int64) (bool, error)
	ListActive(ctx context.Context) ([]ActiveBinding, error)
}

// ActiveBinding is one live channel/auction pair from the registry.
type ActiveBinding struct {
	ChannelID string
	AuctionID int64
}

// Winner identifies the highest bidder at finalization time.
type Winner struct {
	BidderID string
	Price    int64
}

// Notifier announces auction events. Implementations own all message and
// embed formatting; the engine passes structured data only.
type Notifier interface {
	NotifyBid(channelID string, bidderID string, price int64, endsAuction bool)
	// NotifyFinalized announces the outcome of a closed auction. A nil
	// winner means the auction ended without bids.
	NotifyFinalized(channelID string, winner *Winner)
}

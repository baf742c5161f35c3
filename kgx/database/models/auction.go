package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Auction struct {
	bun.BaseModel `bun:"table:auctions,alias:a"`

	ID         int64     `bun:"id,pk,autoincrement"`
	ChannelID  string    `bun:"channel_id,notnull"`
	OwnerID    string    `bun:"owner_id,notnull"`
	Item       string    `bun:"item,notnull"`
	StartPrice int64     `bun:"start_price,notnull"`
	BinPrice   *int64    `bun:"bin_price"`
	EndTime    time.Time `bun:"end_time,notnull"`
	Unit       string    `bun:"unit,notnull,default:''"`
	Notice     string    `bun:"notice,notnull,default:''"`
	MessageID  string    `bun:"message_id"`

	// Append-only bid history, ordered by insertion.
	Bids []*AuctionBid `bun:"rel:has-many,join:id=auction_id"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// LastBid returns the most recent bid, or nil when no bids were placed.
func (a *Auction) LastBid() *AuctionBid {
	if len(a.Bids) == 0 {
		return nil
	}
	return a.Bids[len(a.Bids)-1]
}

// Expired reports whether the auction's end time has passed.
func (a *Auction) Expired(now time.Time) bool {
	return !a.EndTime.After(now)
}

type AuctionBid struct {
	bun.BaseModel `bun:"table:auction_bids,alias:ab"`

	ID        int64     `bun:"id,pk,autoincrement"`
	AuctionID int64     `bun:"auction_id,notnull"`
	BidderID  string    `bun:"bidder_id,notnull"`
	Price     int64     `bun:"price,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// ChannelBinding records which auction, if any, is currently live in a
// channel. AuctionID is nil once the auction has been finalized.
type ChannelBinding struct {
	bun.BaseModel `bun:"table:channel_bindings,alias:cb"`

	ChannelID string    `bun:"channel_id,pk"`
	AuctionID *int64    `bun:"auction_id"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

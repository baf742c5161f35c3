package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/uptrace/bun"

	"github.com/soundofhorizon/kgx-go/kgx/auction"
	"github.com/soundofhorizon/kgx-go/kgx/database/models"
)

const auctionCacheSize = 1024

type AuctionRepository interface {
	auction.Store
	DB() *bun.DB
	GetBids(ctx context.Context, auctionID int64) ([]*models.AuctionBid, error)
	Search(ctx context.Context, limit int) ([]*models.Auction, error)
	SetMessageID(ctx context.Context, auctionID int64, messageID string) error
}

type auctionRepository struct {
	db *bun.DB
	// Read-through cache of auction rows, invalidated on every append.
	// Coherent because all mutations in the process go through this
	// repository; the append transaction re-validates against the row
	// anyway, so a stale read can never corrupt the bid history.
	cache *lru.Cache
}

func NewAuctionRepository(db *bun.DB) AuctionRepository {
	cache, _ := lru.New(auctionCacheSize)
	return &auctionRepository{db: db, cache: cache}
}

func (r *auctionRepository) DB() *bun.DB {
	return r.db
}

func (r *auctionRepository) CreateAuction(ctx context.Context, a *models.Auction) error {
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()

	if _, err := r.db.NewInsert().Model(a).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

func (r *auctionRepository) GetAuction(ctx context.Context, id int64) (*models.Auction, error) {
	if cached, ok := r.cache.Get(id); ok {
		return cached.(*models.Auction), nil
	}

	a := new(models.Auction)
	err := r.db.NewSelect().
		Model(a).
		Relation("Bids", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		}).
		Where("a.id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auction.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	r.cache.Add(id, a)
	return a, nil
}

// AppendBid appends one bid inside a single transaction that locks the
// auction row, re-reads the current last bid, and re-checks the
// strictly-increasing invariant. Concurrent bids on the same auction
// serialize on the row lock; the loser of a price race gets ErrBidConflict.
func (r *auctionRepository) AppendBid(ctx context.Context, auctionID int64, bidderID string, price int64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	a := new(models.Auction)
	err = tx.NewSelect().
		Model(a).
		Where("a.id = ?", auctionID).
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auction.ErrNotFound
		}
		return fmt.Errorf("failed to lock auction: %w", err)
	}

	last := new(models.AuctionBid)
	err = tx.NewSelect().
		Model(last).
		Where("auction_id = ?", auctionID).
		Order("id DESC").
		Limit(1).
		Scan(ctx)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if price < a.StartPrice {
			return auction.ErrBidConflict
		}
	case err != nil:
		return fmt.Errorf("failed to read last bid: %w", err)
	default:
		if price <= last.Price {
			return auction.ErrBidConflict
		}
	}

	bid := &models.AuctionBid{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Price:     price,
		CreatedAt: time.Now(),
	}
	if _, err := tx.NewInsert().Model(bid).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}

	_, err = tx.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", auctionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bid: %w", err)
	}

	r.cache.Remove(auctionID)
	return nil
}

func (r *auctionRepository) GetBids(ctx context.Context, auctionID int64) ([]*models.AuctionBid, error) {
	var bids []*models.AuctionBid
	err := r.db.NewSelect().
		Model(&bids).
		Where("auction_id = ?", auctionID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	return bids, nil
}

// Search returns the live auctions with their bid histories, soonest
// ending first, capped at limit.
func (r *auctionRepository) Search(ctx context.Context, limit int) ([]*models.Auction, error) {
	var auctions []*models.Auction
	err := r.db.NewSelect().
		Model(&auctions).
		Relation("Bids", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		}).
		Join("JOIN channel_bindings AS cb ON cb.auction_id = a.id").
		Order("a.end_time ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search auctions: %w", err)
	}
	return auctions, nil
}

func (r *auctionRepository) SetMessageID(ctx context.Context, auctionID int64, messageID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("message_id = ?", messageID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", auctionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set auction message id: %w", err)
	}
	r.cache.Remove(auctionID)
	return nil
}

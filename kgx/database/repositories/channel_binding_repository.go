package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/soundofhorizon/kgx-go/kgx/auction"
	"github.com/soundofhorizon/kgx-go/kgx/database/models"
)

type ChannelBindingRepository interface {
	auction.BindingRegistry
}

type channelBindingRepository struct {
	db *bun.DB
}

func NewChannelBindingRepository(db *bun.DB) ChannelBindingRepository {
	return &channelBindingRepository{db: db}
}

// Bind records the channel -> auction binding. The upsert only applies when
// the channel is unbound, so a concurrent listing on the same channel loses
// with ErrAlreadyBound instead of overwriting.
func (r *channelBindingRepository) Bind(ctx context.Context, channelID string, auctionID int64) error {
	binding := &models.ChannelBinding{
		ChannelID: channelID,
		AuctionID: &auctionID,
		UpdatedAt: time.Now(),
	}

	res, err := r.db.NewInsert().
		Model(binding).
		On("CONFLICT (channel_id) DO UPDATE").
		Set("auction_id = EXCLUDED.auction_id").
		Set("updated_at = EXCLUDED.updated_at").
		Where("cb.auction_id IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to bind channel: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check bind result: %w", err)
	}
	if rows == 0 {
		return auction.ErrAlreadyBound
	}
	return nil
}

func (r *channelBindingRepository) Lookup(ctx context.Context, channelID string) (int64, bool, error) {
	binding := new(models.ChannelBinding)
	err := r.db.NewSelect().
		Model(binding).
		Where("channel_id = ?", channelID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to look up channel binding: %w", err)
	}
	if binding.AuctionID == nil {
		return 0, false, nil
	}
	return *binding.AuctionID, true, nil
}

// Release clears the binding only while it still points at auctionID. The
// row-level conditional update is the arbitration point between a racing
// instant-win bid and the expiry sweep: exactly one caller sees true.
func (r *channelBindingRepository) Release(ctx context.Context, channelID string, auctionID int64) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*models.ChannelBinding)(nil)).
		Set("auction_id = NULL").
		Set("updated_at = ?", time.Now()).
		Where("channel_id = ? AND auction_id = ?", channelID, auctionID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to release channel binding: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check release result: %w", err)
	}
	return rows == 1, nil
}

func (r *channelBindingRepository) ListActive(ctx context.Context) ([]auction.ActiveBinding, error) {
	var bindings []*models.ChannelBinding
	err := r.db.NewSelect().
		Model(&bindings).
		Where("auction_id IS NOT NULL").
		Order("channel_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active bindings: %w", err)
	}

	active := make([]auction.ActiveBinding, 0, len(bindings))
	for _, b := range bindings {
		active = append(active, auction.ActiveBinding{
			ChannelID: b.ChannelID,
			AuctionID: *b.AuctionID,
		})
	}
	return active, nil
}

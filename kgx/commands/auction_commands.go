package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sahilm/fuzzy"

	"github.com/soundofhorizon/kgx-go/kgx"
	"github.com/soundofhorizon/kgx-go/kgx/auction"
	"github.com/soundofhorizon/kgx-go/kgx/database/models"
	"github.com/soundofhorizon/kgx-go/kgx/logger"
	"github.com/soundofhorizon/kgx-go/kgx/stackprice"
)

const (
	defaultQueryTimeout = 10 * time.Second
	bidsPerPage         = 10
	embedColor          = 0xffaf60
)

var AuctionCommand = discord.SlashCommandCreate{
	Name:        "auction",
	Description: "Auction related commands",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "start",
			Description: "Start an auction in this channel",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "item",
					Description: "The item being auctioned",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "start_price",
					Description: "Starting price, stack notation allowed (e.g. 2lc + 3st)",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "bin_price",
					Description: "Instant-win price, stack notation allowed",
				},
				discord.ApplicationCommandOptionInt{
					Name:        "minutes",
					Description: "Auction duration in minutes",
					MinValue:    intPtr(1),
					MaxValue:    intPtr(7 * 24 * 60),
				},
				discord.ApplicationCommandOptionString{
					Name:        "unit",
					Description: "Display-only currency label",
				},
				discord.ApplicationCommandOptionString{
					Name:        "notice",
					Description: "Additional notes shown on the listing",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "bid",
			Description: "Place a bid on this channel's auction",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "price",
					Description: "Bid price, stack notation allowed (e.g. 1lc + 2.5st)",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "info",
			Description: "Show this channel's running auction",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "list",
			Description: "List running auctions across all channels",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "item",
					Description: "Filter by item name",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "history",
			Description: "Show the bid history of this channel's auction",
		},
	},
}

type AuctionHandler struct {
	bot *kgx.Bot
}

func NewAuctionHandler(bot *kgx.Bot) *AuctionHandler {
	return &AuctionHandler{bot: bot}
}

func (h *AuctionHandler) Register(r handler.Router) {
	r.Route("/auction", func(r handler.Router) {
		r.Command("/start", wrapWithLogging("auction-start", h.HandleStart))
		r.Command("/bid", wrapWithLogging("auction-bid", h.HandleBid))
		r.Command("/info", wrapWithLogging("auction-info", h.HandleInfo))
		r.Command("/list", wrapWithLogging("auction-list", h.HandleList))
		r.Command("/history", wrapWithLogging("auction-history", h.HandleHistory))
	})
}

func (h *AuctionHandler) HandleStart(e *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	data := e.SlashCommandInteractionData()

	startPrice, err := stackprice.Parse(data.String("start_price"))
	if err != nil {
		return ephemeral(e, fmt.Sprintf("❌ Invalid start price: %v", err))
	}

	var binPrice *int64
	if raw, ok := data.OptString("bin_price"); ok {
		p, err := stackprice.Parse(raw)
		if err != nil {
			return ephemeral(e, fmt.Sprintf("❌ Invalid instant-win price: %v", err))
		}
		binPrice = &p
	}

	minutes := h.bot.Cfg.Auction.DefaultMinutesOrFallback()
	if m, ok := data.OptInt("minutes"); ok {
		minutes = m
	}

	unit := h.bot.Cfg.Auction.DefaultUnit
	if u, ok := data.OptString("unit"); ok {
		unit = u
	}

	notice, _ := data.OptString("notice")

	a, err := h.bot.Engine.CreateAuction(ctx, auction.CreateParams{
		ChannelID:  e.ChannelID().String(),
		OwnerID:    e.User().ID.String(),
		Item:       data.String("item"),
		StartPrice: startPrice,
		BinPrice:   binPrice,
		Duration:   time.Duration(minutes) * time.Minute,
		Unit:       unit,
		Notice:     notice,
	})
	if err != nil {
		switch {
		case errors.Is(err, auction.ErrAlreadyBound):
			return ephemeral(e, "❌ An auction is already running in this channel")
		case errors.Is(err, auction.ErrStartPriceTooLow):
			return ephemeral(e, "❌ The start price must be at least 1")
		case errors.Is(err, auction.ErrBinBelowStart):
			return ephemeral(e, "❌ The instant-win price is below the start price")
		default:
			return fmt.Errorf("failed to create auction: %w", err)
		}
	}

	if err := e.CreateMessage(discord.MessageCreate{
		Content: "An auction has started!",
		Embeds:  []discord.Embed{listingEmbed(a)},
	}); err != nil {
		return err
	}

	// Remember the listing message so later edits can find it.
	if msg, err := e.Client().Rest().GetInteractionResponse(e.ApplicationID(), e.Token()); err == nil {
		if err := h.bot.AuctionRepository.SetMessageID(ctx, a.ID, msg.ID.String()); err != nil {
			return fmt.Errorf("failed to store listing message id: %w", err)
		}
	}
	return nil
}

func (h *AuctionHandler) HandleBid(e *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	price, err := stackprice.Parse(e.SlashCommandInteractionData().String("price"))
	if err != nil {
		return ephemeral(e, fmt.Sprintf("❌ Invalid price: %v", err))
	}

	channelID := e.ChannelID().String()
	outcome, err := h.bot.Engine.SubmitBid(ctx, channelID, e.User().ID.String(), price)
	if err != nil {
		return fmt.Errorf("failed to submit bid: %w", err)
	}

	if outcome.Accepted {
		if outcome.EndsAuction {
			return ephemeral(e, "✅ Your bid met the instant-win price and ended the auction")
		}
		h.refreshListing(ctx, e)
		return ephemeral(e, fmt.Sprintf("✅ Bid placed at %s", stackprice.FormatWithCount(price)))
	}
	return ephemeral(e, h.rejectionMessage(ctx, channelID, outcome.Reason))
}

// refreshListing re-renders the stored listing message so the Current bid
// field tracks the live auction state.
func (h *AuctionHandler) refreshListing(ctx context.Context, e *handler.CommandEvent) {
	a, ok, err := h.bot.Engine.GetAuction(ctx, e.ChannelID().String())
	if err != nil || !ok || a.MessageID == "" {
		return
	}
	msgID, err := snowflake.Parse(a.MessageID)
	if err != nil {
		return
	}
	if _, err := e.Client().Rest().UpdateMessage(e.ChannelID(), msgID,
		discord.NewMessageUpdateBuilder().
			SetEmbeds(listingEmbed(a)).
			Build()); err != nil {
		logger.LogError("Failed to refresh auction listing", err,
			slog.String("channel_id", e.ChannelID().String()),
			slog.Int64("auction_id", a.ID))
	}
}

func (h *AuctionHandler) rejectionMessage(ctx context.Context, channelID string, reason auction.RejectReason) string {
	switch reason {
	case auction.RejectNoActiveAuction:
		return "❌ No auction is currently running in this channel"
	case auction.RejectByOwner:
		return "❌ You cannot bid on your own auction"
	case auction.RejectBelowStartPrice:
		if a, ok, err := h.bot.Engine.GetAuction(ctx, channelID); err == nil && ok {
			return fmt.Sprintf("❌ Your bid is below the start price (%s)", stackprice.FormatWithCount(a.StartPrice))
		}
		return "❌ Your bid is below the start price"
	case auction.RejectNotAboveLast:
		if a, ok, err := h.bot.Engine.GetAuction(ctx, channelID); err == nil && ok {
			if last := a.LastBid(); last != nil {
				return fmt.Sprintf("❌ Your bid does not exceed the current bid (%s)", stackprice.FormatWithCount(last.Price))
			}
		}
		return "❌ Your bid does not exceed the current bid"
	case auction.RejectSameBidder:
		return "❌ You are already the highest bidder"
	default:
		return "❌ Bid rejected"
	}
}

func (h *AuctionHandler) HandleInfo(e *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	a, ok, err := h.bot.Engine.GetAuction(ctx, e.ChannelID().String())
	if err != nil {
		return fmt.Errorf("failed to load auction: %w", err)
	}
	if !ok {
		return ephemeral(e, "No auction is currently running in this channel")
	}

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{listingEmbed(a)},
	})
}

// auctionItems adapts auctions to fuzzy.Source for item-name matching.
type auctionItems []*models.Auction

func (a auctionItems) Len() int            { return len(a) }
func (a auctionItems) String(i int) string { return strings.ToLower(a[i].Item) }

func (h *AuctionHandler) HandleList(e *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	auctions, err := h.bot.AuctionRepository.Search(ctx, h.bot.Cfg.Auction.ListLimitOrFallback())
	if err != nil {
		return fmt.Errorf("failed to list auctions: %w", err)
	}

	query, _ := e.SlashCommandInteractionData().OptString("item")
	if query != "" {
		matches := fuzzy.FindFrom(strings.ToLower(query), auctionItems(auctions))
		filtered := make([]*models.Auction, 0, len(matches))
		for _, m := range matches {
			filtered = append(filtered, auctions[m.Index])
		}
		auctions = filtered
	}

	if len(auctions) == 0 {
		return ephemeral(e, "No running auctions found")
	}

	var description strings.Builder
	for _, a := range auctions {
		price := a.StartPrice
		if last := a.LastBid(); last != nil {
			price = last.Price
		}
		fmt.Fprintf(&description, "<#%s> **%s** — %s%s — ends <t:%d:R>\n",
			a.ChannelID, a.Item, a.Unit, stackprice.Format(price), a.EndTime.Unix())
	}

	embed := discord.NewEmbedBuilder().
		SetTitle("Running auctions").
		SetDescription(description.String()).
		SetColor(embedColor).
		Build()

	return e.CreateMessage(discord.MessageCreate{Embeds: []discord.Embed{embed}})
}

func (h *AuctionHandler) HandleHistory(e *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	a, ok, err := h.bot.Engine.GetAuction(ctx, e.ChannelID().String())
	if err != nil {
		return fmt.Errorf("failed to load auction: %w", err)
	}
	if !ok {
		return ephemeral(e, "No auction is currently running in this channel")
	}

	bids, err := h.bot.AuctionRepository.GetBids(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("failed to load bid history: %w", err)
	}
	if len(bids) == 0 {
		return ephemeral(e, "No bids have been placed yet")
	}

	totalPages := int(math.Ceil(float64(len(bids)) / float64(bidsPerPage)))

	return h.bot.Paginator.Create(e.Respond, paginator.Pages{
		ID:      e.ID().String(),
		Creator: e.User().ID,
		PageFunc: func(page int, embed *discord.EmbedBuilder) {
			startIdx := page * bidsPerPage
			endIdx := min(startIdx+bidsPerPage, len(bids))

			var description strings.Builder
			for i, bid := range bids[startIdx:endIdx] {
				fmt.Fprintf(&description, "%d. <@%s> — %s%s\n",
					startIdx+i+1, bid.BidderID, a.Unit, stackprice.FormatWithCount(bid.Price))
			}

			embed.
				SetTitle(fmt.Sprintf("Bid history: %s", a.Item)).
				SetDescription(description.String()).
				SetColor(embedColor).
				SetFooter(fmt.Sprintf("Page %d/%d • Total bids: %d", page+1, totalPages, len(bids)), "")
		},
		Pages:      totalPages,
		ExpireMode: paginator.ExpireModeAfterLastUsage,
	}, false)
}

func listingEmbed(a *models.Auction) discord.Embed {
	binPrice := "None"
	if a.BinPrice != nil {
		binPrice = a.Unit + stackprice.FormatWithCount(*a.BinPrice)
	}
	notice := a.Notice
	if notice == "" {
		notice = "-"
	}

	builder := discord.NewEmbedBuilder().
		AddField("Owner", fmt.Sprintf("<@%s>", a.OwnerID), true).
		AddField("Item", a.Item, true).
		AddField("Start price", a.Unit+stackprice.FormatWithCount(a.StartPrice), false).
		AddField("Instant-win price", binPrice, false).
		AddField("End time", fmt.Sprintf("<t:%d:f>", a.EndTime.Unix()), true).
		AddField("Notice", notice, true).
		SetColor(embedColor)

	if last := a.LastBid(); last != nil {
		builder.AddField("Current bid", fmt.Sprintf("%s%s by <@%s>",
			a.Unit, stackprice.FormatWithCount(last.Price), last.BidderID), false)
	}
	return builder.Build()
}

func ephemeral(e *handler.CommandEvent, content string) error {
	return e.CreateMessage(discord.MessageCreate{
		Content: content,
		Flags:   discord.MessageFlagEphemeral,
	})
}

func intPtr(v int) *int {
	return &v
}

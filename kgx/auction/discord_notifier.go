package auction

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/soundofhorizon/kgx-go/kgx/logger"
	"github.com/soundofhorizon/kgx-go/kgx/stackprice"
)

const embedColor = 0xffaf60

// DiscordNotifier posts auction outcomes into the auction's channel.
type DiscordNotifier struct {
	mu     sync.RWMutex
	client bot.Client
}

func NewDiscordNotifier(client bot.Client) *DiscordNotifier {
	return &DiscordNotifier{client: client}
}

// SetClient swaps in the client once the gateway is up.
func (n *DiscordNotifier) SetClient(client bot.Client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.client = client
}

func (n *DiscordNotifier) NotifyBid(channelID string, bidderID string, price int64, endsAuction bool) {
	if endsAuction {
		// The finalization embed follows; the plain confirmation would be
		// redundant noise.
		return
	}
	n.sendMessage(channelID, discord.NewMessageCreateBuilder().
		SetContentf("Bid placed: <@%s> at %s", bidderID, stackprice.FormatWithCount(price)).
		Build())
}

func (n *DiscordNotifier) NotifyFinalized(channelID string, winner *Winner) {
	embed := discord.NewEmbedBuilder().SetColor(embedColor)
	if winner != nil {
		embed.SetDescription(fmt.Sprintf("The auction has ended.\nWinner: <@%s>\nWinning bid: %s",
			winner.BidderID, stackprice.FormatWithCount(winner.Price)))
	} else {
		embed.SetDescription("The auction has ended with no bids.")
	}
	n.sendMessage(channelID, discord.NewMessageCreateBuilder().
		SetEmbeds(embed.Build()).
		Build())
}

func (n *DiscordNotifier) sendMessage(channelID string, msg discord.MessageCreate) {
	n.mu.RLock()
	client := n.client
	n.mu.RUnlock()

	if client == nil {
		slog.Error("Auction notifier has no client",
			slog.String("channel_id", channelID))
		return
	}

	id, err := snowflake.Parse(channelID)
	if err != nil {
		logger.LogError("Invalid channel id in auction notification", err,
			slog.String("channel_id", channelID))
		return
	}

	if _, err := client.Rest().CreateMessage(id, msg); err != nil {
		logger.LogError("Failed to send auction notification", err,
			slog.String("channel_id", channelID))
	}
}

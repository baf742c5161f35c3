package commands

import (
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/handler"

	"github.com/soundofhorizon/kgx-go/kgx/logger"
)

// wrapWithLogging wraps a command handler with start/completion logging.
func wrapWithLogging(name string, h handler.CommandHandler) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		start := time.Now()

		slog.Info("Command started",
			slog.String("type", "cmd"),
			slog.String("name", name),
			slog.String("user_id", e.User().ID.String()),
			slog.String("channel_id", e.ChannelID().String()),
		)

		err := h(e)
		logger.LogCommand(name, time.Since(start), err)
		return err
	}
}

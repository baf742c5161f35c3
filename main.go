package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"

	"github.com/soundofhorizon/kgx-go/kgx"
	"github.com/soundofhorizon/kgx-go/kgx/auction"
	"github.com/soundofhorizon/kgx-go/kgx/commands"
	"github.com/soundofhorizon/kgx-go/kgx/database"
	"github.com/soundofhorizon/kgx-go/kgx/database/repositories"
	"github.com/soundofhorizon/kgx-go/kgx/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	logHandler := logger.NewHandler()
	slog.SetDefault(slog.New(logHandler))

	slog.Info("Starting KGX auction bot",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := kgx.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	logHandler.SetLevel(cfg.Log.Level)
	logger.LogSystem("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	b := kgx.New(*cfg, version, commit)
	b.DB = db
	b.AuctionRepository = repositories.NewAuctionRepository(db.BunDB())
	b.BindingRepository = repositories.NewChannelBindingRepository(db.BunDB())
	b.Notifier = auction.NewDiscordNotifier(nil)
	b.Engine = auction.NewEngine(b.AuctionRepository, b.BindingRepository, b.Notifier)
	b.Sweeper = auction.NewSweeper(b.AuctionRepository, b.BindingRepository, b.Notifier, auction.SystemClock())

	h := handler.New()
	commands.NewAuctionHandler(b).Register(h)
	commands.NewAdminHandler(b).Register(h)

	if err = b.SetupBot(h, bot.NewListenerFunc(b.OnReady)); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("error_details", fmt.Sprintf("%+v", err)))
		os.Exit(-1)
	}
	b.Notifier.SetClient(b.Client)

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds))
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err))
		}
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = b.Client.OpenGateway(ctx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	// Catch up on anything that expired while the process was down, then
	// hand off to the minutely sweep.
	sweepCtx, sweepCancel := context.WithTimeout(context.Background(), 30*time.Second)
	b.Sweeper.Sweep(sweepCtx)
	sweepCancel()
	b.Sweeper.Start()
	defer b.Sweeper.Shutdown()

	logger.LogSystem("Bot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	logger.LogSystem("Shutting down bot...")
}

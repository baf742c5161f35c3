package kgx

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/soundofhorizon/kgx-go/kgx/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log     LogConfig         `toml:"log"`
	Bot     BotConfig         `toml:"bot"`
	DB      database.DBConfig `toml:"db"`
	Auction AuctionConfig     `toml:"auction"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
}

type LogConfig struct {
	Level slog.Level `toml:"level"`
}

type AuctionConfig struct {
	// DefaultMinutes is the auction duration used when the lister gives none.
	DefaultMinutes int `toml:"default_minutes"`
	// DefaultUnit is the display-only currency label, e.g. "diamond ".
	DefaultUnit string `toml:"default_unit"`
	// ListLimit caps how many recent auctions the list command searches.
	ListLimit int `toml:"list_limit"`
}

func (c AuctionConfig) DefaultMinutesOrFallback() int {
	if c.DefaultMinutes > 0 {
		return c.DefaultMinutes
	}
	return 10
}

func (c AuctionConfig) ListLimitOrFallback() int {
	if c.ListLimit > 0 {
		return c.ListLimit
	}
	return 100
}

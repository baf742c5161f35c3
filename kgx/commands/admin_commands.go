package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/json"

	"github.com/soundofhorizon/kgx-go/kgx"
)

var SQLCommand = discord.SlashCommandCreate{
	Name:                     "sql",
	Description:              "Run ad-hoc SQL against the auction database",
	DefaultMemberPermissions: json.NewNullablePtr(discord.PermissionAdministrator),
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "exec",
			Description: "Execute a statement and report affected rows",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "query",
					Description: "The SQL statement to run",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "select",
			Description: "Dump recent rows from an auction table",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "table",
					Description: "The table to dump",
					Required:    true,
					Choices: []discord.ApplicationCommandOptionChoiceString{
						{Name: "auctions", Value: "auctions"},
						{Name: "auction_bids", Value: "auction_bids"},
						{Name: "channel_bindings", Value: "channel_bindings"},
					},
				},
			},
		},
	},
}

type AdminHandler struct {
	bot *kgx.Bot
}

func NewAdminHandler(bot *kgx.Bot) *AdminHandler {
	return &AdminHandler{bot: bot}
}

func (h *AdminHandler) Register(r handler.Router) {
	r.Route("/sql", func(r handler.Router) {
		r.Command("/exec", wrapWithLogging("sql-exec", h.HandleExec))
		r.Command("/select", wrapWithLogging("sql-select", h.HandleSelect))
	})
}

func (h *AdminHandler) HandleExec(e *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	query := e.SlashCommandInteractionData().String("query")
	tag, err := h.bot.DB.ExecWithLog(ctx, query)
	if err != nil {
		return ephemeral(e, fmt.Sprintf("❌ %v", err))
	}
	return ephemeral(e, fmt.Sprintf("Affected rows: %d", tag.RowsAffected()))
}

func (h *AdminHandler) HandleSelect(e *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	table := e.SlashCommandInteractionData().String("table")
	rows, err := h.bot.DB.QueryWithLog(ctx,
		fmt.Sprintf("SELECT * FROM %s ORDER BY 1 DESC LIMIT 20", table))
	if err != nil {
		return ephemeral(e, fmt.Sprintf("❌ %v", err))
	}
	defer rows.Close()

	var sb strings.Builder
	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	sb.WriteString(strings.Join(names, " | "))
	sb.WriteString("\n")

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return ephemeral(e, fmt.Sprintf("❌ %v", err))
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = fmt.Sprintf("%v", v)
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	if err := rows.Err(); err != nil {
		return ephemeral(e, fmt.Sprintf("❌ %v", err))
	}

	out := sb.String()
	if len(out) > 1900 {
		out = out[:1900] + "…"
	}
	return ephemeral(e, fmt.Sprintf("```\n%s\n```", out))
}

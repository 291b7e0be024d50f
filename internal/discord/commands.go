package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	talkCommand = "talk"
	talkOption  = "message"

	// maxContentLen is Discord's per-message content limit.
	maxContentLen = 2000
)

// Commands returns the application commands the bot registers.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        talkCommand,
			Description: "xhiqi とお話しする",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        talkOption,
					Description: "質問や話しかけたい内容",
					Required:    true,
				},
			},
		},
	}
}

type commandAPI interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// syncCommands replaces the registered commands. An empty guildID
// registers them globally, which Discord may take up to an hour to show.
func (b *Bot) syncCommands(api commandAPI, appID string) error {
	if appID == "" {
		return fmt.Errorf("discord: sync commands: application id is unknown")
	}
	registered, err := api.ApplicationCommandBulkOverwrite(appID, b.guildID, Commands())
	if err != nil {
		return fmt.Errorf("discord: sync commands: %w", err)
	}
	if b.guildID != "" {
		b.logger.Info("slash commands synced to guild", "guild_id", b.guildID, "count", len(registered))
	} else {
		b.logger.Info("slash commands synced globally", "count", len(registered))
	}
	return nil
}

// chunks splits s into pieces of at most limit runes.
func chunks(s string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	r := []rune(s)
	if len(r) <= limit {
		return []string{s}
	}
	out := make([]string, 0, len(r)/limit+1)
	for len(r) > 0 {
		n := min(limit, len(r))
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	return out
}

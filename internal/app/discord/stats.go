package discord

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// GuildStats is the public summary shown on the site.
type GuildStats struct {
	Name          string `json:"name"`
	IconURL       string `json:"iconUrl,omitempty"`
	MemberCount   int    `json:"memberCount"`
	OnlineCount   int    `json:"onlineCount"`
	ChannelCount  int    `json:"channelCount"`
	TextChannels  int    `json:"textChannels"`
	VoiceChannels int    `json:"voiceChannels"`
	RoleCount     int    `json:"roleCount"`
}

type guild struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	Icon                     string `json:"icon"`
	ApproximateMemberCount   int    `json:"approximate_member_count"`
	ApproximatePresenceCount int    `json:"approximate_presence_count"`
}

type channel struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
}

type role struct {
	ID string `json:"id"`
}

// Discord channel types counted in the summary.
const (
	channelText  = 0
	channelVoice = 2
	channelNews  = 5
	channelStage = 13
)

// FetchGuildStats reads the guild, its channels and its roles concurrently.
// Any failure fails the whole call.
func (c *Client) FetchGuildStats(ctx context.Context) (GuildStats, error) {
	if !c.BotConfigured() {
		return GuildStats{}, ErrBotNotConfigured
	}

	var (
		g        guild
		channels []channel
		roles    []role
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		_, err := c.do(ctx, "fetch guild", http.MethodGet, "/guilds/"+c.guildID+"?with_counts=true", c.bot(), nil, &g)
		return err
	})
	eg.Go(func() error {
		_, err := c.do(ctx, "fetch channels", http.MethodGet, "/guilds/"+c.guildID+"/channels", c.bot(), nil, &channels)
		return err
	})
	eg.Go(func() error {
		_, err := c.do(ctx, "fetch roles", http.MethodGet, "/guilds/"+c.guildID+"/roles", c.bot(), nil, &roles)
		return err
	})
	if err := eg.Wait(); err != nil {
		return GuildStats{}, err
	}

	st := GuildStats{
		Name:         g.Name,
		MemberCount:  g.ApproximateMemberCount,
		OnlineCount:  g.ApproximatePresenceCount,
		ChannelCount: len(channels),
		RoleCount:    len(roles),
	}
	if g.Icon != "" {
		ext := "png"
		if len(g.Icon) > 2 && g.Icon[:2] == "a_" {
			ext = "gif"
		}
		st.IconURL = "https://cdn.discordapp.com/icons/" + g.ID + "/" + g.Icon + "." + ext
	}
	for _, ch := range channels {
		switch ch.Type {
		case channelText, channelNews:
			st.TextChannels++
		case channelVoice, channelStage:
			st.VoiceChannels++
		}
	}
	return st, nil
}

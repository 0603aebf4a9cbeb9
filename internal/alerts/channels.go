package alerts

import "github.com/leozw/uptime-pulse/internal/db"

// ResolveChannels lists the enabled channels of an account in delivery
// order. When nothing is configured the default channel is used, unless it
// is empty.
func ResolveChannels(integration *db.Integration, defaultChannel string) []Channel {
	var channels []Channel

	if integration != nil {
		if v := deref(integration.DiscordWebhook); v != "" {
			channels = append(channels, Channel{Type: "discord", Endpoint: v})
		}
		if integration.EmailEnabled {
			channels = append(channels, Channel{Type: "email"})
		}
		if v := deref(integration.SlackWebhook); v != "" {
			channels = append(channels, Channel{Type: "slack", Endpoint: v})
		}
		if v := deref(integration.TelegramBotKey); v != "" {
			channels = append(channels, Channel{
				Type:     "telegram",
				Endpoint: v,
				ChatID:   deref(integration.TelegramChatID),
			})
		}
	}

	if len(channels) == 0 && defaultChannel != "" {
		channels = append(channels, Channel{Type: defaultChannel})
	}

	return channels
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

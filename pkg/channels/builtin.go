// Package channels wires the built-in channel types into a registry.
package channels

import (
	"github.com/kart-io/errica/pkg/channels/console"
	"github.com/kart-io/errica/pkg/channels/discord"
	"github.com/kart-io/errica/pkg/channels/redis"
	"github.com/kart-io/errica/pkg/channels/slack"
	"github.com/kart-io/errica/pkg/channels/telegram"
	"github.com/kart-io/errica/pkg/channels/webhook"
	"github.com/kart-io/errica/pkg/errica/channel"
)

// Register adds every built-in channel type to r.
func Register(r *channel.Registry) {
	r.Register(console.Type, console.Creator)
	r.Register(telegram.Type, telegram.Creator)
	r.Register(slack.Type, slack.Creator)
	r.Register(webhook.Type, webhook.Creator)
	r.Register(discord.Type, discord.Creator)
	r.Register(redis.Type, redis.Creator)
}

// DefaultRegistry returns a new registry holding the built-in channel types.
func DefaultRegistry() *channel.Registry {
	r := channel.NewRegistry()
	Register(r)
	return r
}

package core

import (
	"sort"
	"time"
)

// ChannelStats holds the delivery counters of one channel.
type ChannelStats struct {
	Sent        uint64        `json:"sent"`
	Failed      uint64        `json:"failed"`
	LastError   string        `json:"last_error,omitempty"`
	LastLatency time.Duration `json:"last_latency"`
}

// Stats is a point-in-time copy of the manager counters. The counters never
// decrease during the lifetime of a Manager.
type Stats struct {
	MessagesSent    uint64                  `json:"messages_sent"`
	ErrorsSent      uint64                  `json:"errors_sent"`
	FailedSends     uint64                  `json:"failed_sends"`
	EnabledChannels []string                `json:"enabled_channels"`
	Channels        map[string]ChannelStats `json:"channels,omitempty"`
	InitFailures    map[string]string       `json:"init_failures,omitempty"`
}

// Map returns the stats as a plain map keyed like the monitoring report.
func (s Stats) Map() map[string]any {
	channels := make([]string, len(s.EnabledChannels))
	copy(channels, s.EnabledChannels)
	sort.Strings(channels)
	return map[string]any{
		"messages_sent":    s.MessagesSent,
		"errors_sent":      s.ErrorsSent,
		"failed_sends":     s.FailedSends,
		"enabled_channels": channels,
	}
}

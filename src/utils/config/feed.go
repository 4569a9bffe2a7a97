package config

import (
	"github.com/spf13/viper"
)

type Feed struct {
	// Channel the upstream replication stream publishes agreement events to
	ChannelName string

	// Buffered events between the subscription and the processor
	QueueSize int
}

func setFeedDefaults() {
	viper.SetDefault("Feed.ChannelName", "pinner_events")
	viper.SetDefault("Feed.QueueSize", "50")
}

package config

import (
	"github.com/spf13/viper"
)

type Comms struct {
	// Topic channel used for broadcast fan-out
	TopicChannelName string

	// Prefix of peer addressed channels, the peer address gets appended
	PeerChannelPrefix string

	// Address other peers can use to reach this instance
	PeerAddress string

	// Envelope version stamped on every outgoing notification
	Version string

	// How many notifications are persisted per agreement reference.
	// The oldest beyond this count are evicted.
	RetentionCount int
}

func setCommsDefaults() {
	viper.SetDefault("Comms.TopicChannelName", "pinner_broadcast")
	viper.SetDefault("Comms.PeerChannelPrefix", "pinner_peer")
	viper.SetDefault("Comms.PeerAddress", "")
	viper.SetDefault("Comms.Version", "1")
	viper.SetDefault("Comms.RetentionCount", "10")
}

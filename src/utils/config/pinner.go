package config

import (
	"time"

	"github.com/spf13/viper"
)

type Pinner struct {
	// Identity of this provider's offer.
	// Events that name another offer are not ours and get dropped.
	OfferAddress string

	// How many times a pin/unpin job is attempted before giving up
	JobRetries int

	// Sleep between job attempts
	JobBackoff time.Duration

	// When true the sleep between attempts doubles each time
	JobBackoffExponential bool

	// How many events are buffered between the feed and the processor
	EventQueueSize int

	// Upper bound on pin/unpin jobs running at the same time
	MaxWorkers int

	// How long an unpin waits before retrying when another job still
	// holds the content address
	InFlightRetryInterval time.Duration
}

func setPinnerDefaults() {
	viper.SetDefault("Pinner.OfferAddress", "")
	viper.SetDefault("Pinner.JobRetries", "3")
	viper.SetDefault("Pinner.JobBackoff", "0s")
	viper.SetDefault("Pinner.JobBackoffExponential", "false")
	viper.SetDefault("Pinner.EventQueueSize", "50")
	viper.SetDefault("Pinner.MaxWorkers", "10")
	viper.SetDefault("Pinner.InFlightRetryInterval", "5s")
}

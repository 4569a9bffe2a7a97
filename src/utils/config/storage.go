package config

import (
	"time"

	"github.com/spf13/viper"
)

type Storage struct {
	// Base URL of the content addressed storage node API
	NodeUrl string

	// Default timeout of a single API request
	RequestTimeout time.Duration

	// Timeout for fetching object metadata (cumulative size)
	MetaFetchTimeout time.Duration

	// Lower bound for the adaptive pin timeout
	MinPinTimeout time.Duration

	// Assumed transfer rate used to scale the pin timeout with content size
	TransferRateMBps float64

	// Requests per second towards the storage node
	RateLimit float64

	// How long a fetched metadata size stays cached
	MetaCacheTTL time.Duration
}

func setStorageDefaults() {
	viper.SetDefault("Storage.NodeUrl", "http://localhost:5001")
	viper.SetDefault("Storage.RequestTimeout", "30s")
	viper.SetDefault("Storage.MetaFetchTimeout", "1m")
	viper.SetDefault("Storage.MinPinTimeout", "20m")
	viper.SetDefault("Storage.TransferRateMBps", "0.5")
	viper.SetDefault("Storage.RateLimit", "10")
	viper.SetDefault("Storage.MetaCacheTTL", "1m")
}

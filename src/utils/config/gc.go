package config

import (
	"time"

	"github.com/spf13/viper"
)

type Gc struct {
	// Number of blocks an agreement stays condemned before it's collected.
	// Protects against unpinning on a not-yet-final "out of funds" reading.
	Confirmations int64

	// How long a peer address hint stays around
	HintTTL time.Duration

	// How often expired peer address hints are removed
	HintSweepInterval time.Duration
}

func setGcDefaults() {
	viper.SetDefault("Gc.Confirmations", "5")
	viper.SetDefault("Gc.HintTTL", "1h")
	viper.SetDefault("Gc.HintSweepInterval", "10m")
}

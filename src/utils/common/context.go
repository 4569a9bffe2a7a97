package common

import (
	"context"
	"errors"

	"github.com/blobsync/pinner/src/utils/config"
)

type contextKey int

const (
	configKey contextKey = iota
)

var ErrConfigNotInContext = errors.New("config not found in context")

func SetConfig(ctx context.Context, config *config.Config) context.Context {
	return context.WithValue(ctx, configKey, config)
}

func GetConfig(ctx context.Context) (*config.Config, error) {
	config, ok := ctx.Value(configKey).(*config.Config)
	if !ok {
		return nil, ErrConfigNotInContext
	}
	return config, nil
}

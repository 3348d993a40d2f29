package app

import (
	"context"

	"quorum/internal/config"
)

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b *AppBuilder, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *config.Config, opts []AppBuilderOption) *AppBuilder {
	return NewAppBuilder(cfg, opts...)
}

var _ appBuilderDeps = (*AppBuilder)(nil)

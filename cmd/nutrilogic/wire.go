//go:build ignore || wireinject
// +build ignore wireinject

package main

import (
	"github.com/google/wire"

	"github.com/nutrilogic/datacache/internal/app"
	"github.com/nutrilogic/datacache/internal/config"
)

// initializeApp creates the App with all its dependencies.
func initializeApp(cfg *config.Config) (*app.App, func(), error) {
	wire.Build(app.ProviderSet)
	// The return values below are placeholders;
	// Wire generates the actual implementation.
	return nil, nil, nil
}

// Package cloudtoken coordinates OAuth token refreshes for cloud storage
// connections. Most programs use the cobra CLI in cmd/cloudtoken; embedders
// compose an App with the builder.
package cloudtoken

import (
	"github.com/tech-arch1tect/cloudtoken/app"
	"github.com/tech-arch1tect/cloudtoken/config"
)

type App = app.App

type AppBuilder = app.AppBuilder

func NewApp() *AppBuilder {
	return app.NewApp()
}

func WithConfig(cfg *config.Config) *AppBuilder {
	return app.NewApp().WithConfig(cfg)
}

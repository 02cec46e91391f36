// Package appid describes the application identity used for help text,
// config discovery, environment prefixes and telemetry namespaces.
package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"
)

const (
	BinaryName  = "flightontime"
	ConfigName  = "flightontime"
	EnvPrefix   = "FLIGHTONTIME_"
	Description = "FlightOnTime API gateway: token authentication and per-client rate limiting"
)

var identity = &appidentity.Identity{
	BinaryName:  BinaryName,
	ConfigName:  ConfigName,
	EnvPrefix:   EnvPrefix,
	Description: Description,
}

// Get returns the compiled-in identity. The context is accepted for parity
// with file-backed identity loaders.
func Get(_ context.Context) (*appidentity.Identity, error) {
	copied := *identity
	return &copied, nil
}

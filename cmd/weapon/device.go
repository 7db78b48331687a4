package main

import (
	"github.com/google/uuid"

	"github.com/rubiojr/weapon/pkg/econfig"
)

// ensureDeviceID returns cfg's configured device id, generating and
// persisting a fresh one to configPath on first run if it's blank. Every
// device needs a stable id across invocations of the demo CLI so that its
// within-device event indices stay contiguous.
func ensureDeviceID(cfg *econfig.Config, configPath string) (string, error) {
	if cfg.DeviceID != "" {
		return cfg.DeviceID, nil
	}

	cfg.DeviceID = uuid.NewString()
	if err := cfg.Save(configPath); err != nil {
		return "", err
	}
	return cfg.DeviceID, nil
}

// Package config holds environment-driven settings for the relay and
// client binaries. CLI flags may override individual values after loading.
package config

import "github.com/kelseyhightower/envconfig"

// Relay configures the signaling relay server (env prefix RELAY_).
type Relay struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8787"`
	WriteTimeout int    `envconfig:"WRITE_TIMEOUT_MS" default:"5000"` // per-message WebSocket write deadline
}

// Client configures a participant process (env prefix VIDMESH_).
type Client struct {
	RelayURL    string   `envconfig:"RELAY_URL" default:"ws://127.0.0.1:8787/ws"`
	DisplayName string   `envconfig:"DISPLAY_NAME" default:""`
	STUNServers []string `envconfig:"STUN_SERVERS" default:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"`
}

// LoadRelay reads relay settings from RELAY_* environment variables.
func LoadRelay() (Relay, error) {
	var c Relay
	err := envconfig.Process("relay", &c)
	return c, err
}

// LoadClient reads client settings from VIDMESH_* environment variables.
func LoadClient() (Client, error) {
	var c Client
	err := envconfig.Process("vidmesh", &c)
	return c, err
}

package config

import (
	"fmt"
	"os"
)

// Default configuration values
const (
	DefaultServer     = "127.0.0.1"
	DefaultPort       = "3000"
	DefaultSTUN       = "stun:stun.l.google.com:19302"
	DefaultHintWidth  = 1280
	DefaultHintHeight = 720
)

// Config holds application configuration shared by the relay server and the
// host/view commands.
type Config struct {
	// Server is the relay server host, Port its TCP port.
	Server string
	Port   string

	// ServerURL is the websocket endpoint constructed from Server and Port.
	ServerURL string

	// ICE servers for the peer transport
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// Hint resolution passed to the media source
	HintWidth  int
	HintHeight int
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server     string
	Port       string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server := firstOf(opts.Server, os.Getenv("BEAMCAST_SERVER"), DefaultServer)
	port := firstOf(opts.Port, os.Getenv("BEAMCAST_PORT"), DefaultPort)
	stun := firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turn := firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), "")
	turnUser := firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), "")
	turnPass := firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), "")

	return &Config{
		Server:     server,
		Port:       port,
		ServerURL:  fmt.Sprintf("ws://%s:%s/ws", server, port),
		STUNServer: stun,
		TURNServer: turn,
		TURNUser:   turnUser,
		TURNPass:   turnPass,
		HintWidth:  DefaultHintWidth,
		HintHeight: DefaultHintHeight,
	}, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ListenAddr returns the relay server bind address.
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

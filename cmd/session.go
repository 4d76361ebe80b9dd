package cmd

import (
	"fmt"

	"github.com/beamlink/beamcast/internal/broadcast"
	"github.com/beamlink/beamcast/internal/config"
	"github.com/beamlink/beamcast/internal/dispatch"
	"github.com/beamlink/beamcast/internal/rtc"
	"github.com/beamlink/beamcast/internal/signaling"
)

// ConnectionContext bundles the signaling client and dispatcher a broadcast
// session runs on.
type ConnectionContext struct {
	Client     *signaling.Client
	Dispatcher *dispatch.Dispatcher
	Config     *config.Config
}

func NewConnectionContext(cfg *config.Config) (*ConnectionContext, error) {
	client := signaling.NewClient(cfg.ServerURL)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect to server: %w", err)
	}

	return &ConnectionContext{
		Client:     client,
		Dispatcher: dispatch.New(),
		Config:     cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// TransportFactory builds one peer transport per remote peer from the
// loaded ICE configuration.
func (c *ConnectionContext) TransportFactory() func() (broadcast.PeerTransport, error) {
	cfg := c.Config
	return func() (broadcast.PeerTransport, error) {
		return rtc.NewPeer(cfg)
	}
}

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamlink/beamcast/internal/broadcast"
	"github.com/beamlink/beamcast/internal/config"
	"github.com/beamlink/beamcast/internal/media"
	"github.com/beamlink/beamcast/internal/ui"
)

var (
	flagHostServer   string
	flagHostPort     string
	flagHostSTUN     string
	flagHostTURN     string
	flagHostTURNUser string
	flagHostTURNPass string
)

var hostCmd = &cobra.Command{
	Use:     "host <broadcast-name>",
	Aliases: []string{"h"},
	Short:   "Host a live broadcast",
	Long: `Host a live broadcast that viewers can join by name. The first client
to claim a name becomes its host; each joining viewer gets a direct WebRTC
connection carrying the host's media.

Examples:
  beamcast host my-show
  beamcast host my-show --turn turn:turn.example.com --turn-user alice`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBroadcast(args[0], true)
	},
}

var viewCmd = &cobra.Command{
	Use:     "view <broadcast-name>",
	Aliases: []string{"v"},
	Short:   "Watch a live broadcast",
	Long: `Join an existing broadcast as a viewer. The relay introduces you to
the host, who opens a WebRTC connection and streams media to you.

Examples:
  beamcast view my-show`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBroadcast(args[0], false)
	},
}

func runBroadcast(roomName string, hosting bool) error {
	cfg, err := config.Load(config.Options{
		Server:     flagHostServer,
		Port:       flagHostPort,
		STUNServer: flagHostSTUN,
		TURNServer: flagHostTURN,
		TURNUser:   flagHostTURNUser,
		TURNPass:   flagHostTURNPass,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	connCtx, err := NewConnectionContext(cfg)
	if err != nil {
		stopSpinner()
		return err
	}
	defer connCtx.Close()
	stopSpinner()

	source := media.NewSampleSource(nil)
	defer source.Stop()
	sink := media.NewTrackReader()
	printer := &statusPrinter{}

	session := broadcast.NewSession(broadcast.Options{
		Client:       connCtx.Client,
		Dispatcher:   connCtx.Dispatcher,
		Source:       source,
		Sink:         sink,
		Frames:       media.NewFrameCounter(),
		Status:       printer,
		NewTransport: connCtx.TransportFactory(),
		HintWidth:    cfg.HintWidth,
		HintHeight:   cfg.HintHeight,
	})
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := time.Now()
	if err := session.Start(ctx, roomName); err != nil {
		return fmt.Errorf("start broadcast: %w", err)
	}

	ui.RenderBroadcastInfo(ui.BroadcastInfo{Room: roomName, IsHost: hosting})

	waitMsg := "Waiting for viewers (Ctrl+C to stop)"
	if !hosting {
		waitMsg = "Waiting for the host's offer (Ctrl+C to leave)"
	}
	printer.SetSpinner(ui.NewWaitingSpinner(waitMsg))

	<-session.Done()
	printer.Close()

	role := "viewer"
	if hosting {
		role = "host"
	}
	ui.RenderBroadcastSummary(ui.BroadcastSummary{
		Room:     roomName,
		Role:     role,
		Peers:    session.PeersSeen(),
		Received: ui.FormatSize(sink.Bytes()),
		Duration: time.Since(started).Round(time.Second).String(),
	})
	return nil
}

// statusPrinter prints session status lines and clears any waiting spinner
// first so the line does not land mid-animation. Status callbacks arrive
// from the session's goroutines.
type statusPrinter struct {
	mu   sync.Mutex
	spin *ui.SimpleSpinner
}

func (p *statusPrinter) SetSpinner(spin *ui.SimpleSpinner) {
	p.mu.Lock()
	p.spin = spin
	p.mu.Unlock()
	spin.Start()
}

func (p *statusPrinter) OnStatus(status string) {
	p.mu.Lock()
	if p.spin != nil {
		p.spin.Stop()
		p.spin = nil
	}
	p.mu.Unlock()
	fmt.Println(ui.StatusStyle.Render(status))
}

func (p *statusPrinter) Close() {
	p.mu.Lock()
	if p.spin != nil {
		p.spin.Stop()
		p.spin = nil
	}
	p.mu.Unlock()
}

func init() {
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(viewCmd)

	for _, cmd := range []*cobra.Command{hostCmd, viewCmd} {
		cmd.Flags().StringVar(&flagHostServer, "server", "", "Relay server host")
		cmd.Flags().StringVarP(&flagHostPort, "port", "p", "", "Relay server port")
		cmd.Flags().StringVarP(&flagHostSTUN, "stun", "s", "", "Custom STUN server")
		cmd.Flags().StringVarP(&flagHostTURN, "turn", "t", "", "Custom TURN server")
		cmd.Flags().StringVar(&flagHostTURNUser, "turn-user", "", "TURN username")
		cmd.Flags().StringVar(&flagHostTURNPass, "turn-pass", "", "TURN password")
	}
}

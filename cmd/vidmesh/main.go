// Vidmesh — headless conference participant.
//
// It joins a named session through the relay, negotiates direct media
// connections with every other participant, and logs lifecycle events.
// Flags may be omitted; missing values are prompted interactively.
package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/vidmesh/vidmesh/internal/config"
	"github.com/vidmesh/vidmesh/internal/media"
	"github.com/vidmesh/vidmesh/internal/session"
	"github.com/vidmesh/vidmesh/internal/signal"
	"github.com/vidmesh/vidmesh/internal/util"
)

var version = "dev"

func main() {
	var (
		relayURL  string
		room      string
		name      string
		asHost    bool
		noVideo   bool
		noAudio   bool
		debugMode bool
	)

	root := &cobra.Command{
		Use:     "vidmesh",
		Short:   "join a vidmesh session",
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debugMode {
				util.EnableDebug()
			}

			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if relayURL != "" {
				cfg.RelayURL = relayURL
			}
			if name != "" {
				cfg.DisplayName = name
			}
			if cfg.DisplayName == "" {
				cfg.DisplayName = ask("Display name")
			}
			if room == "" {
				room = ask("Session to join")
			}

			ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			return run(ctx, cfg, room, asHost, !noVideo, !noAudio)
		},
	}

	root.Flags().StringVarP(&relayURL, "relay", "r", "", "relay /ws URL (overrides VIDMESH_RELAY_URL)")
	root.Flags().StringVar(&room, "room", "", "session name to join")
	root.Flags().StringVarP(&name, "name", "n", "", "display name")
	root.Flags().BoolVar(&asHost, "host", false, "join as session host")
	root.Flags().BoolVar(&noVideo, "no-video", false, "join without camera")
	root.Flags().BoolVar(&noAudio, "no-audio", false, "join without microphone")
	root.Flags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Client, room string, asHost, video, audio bool) error {
	ch := signal.NewChannel(cfg.RelayURL)
	detector := &media.StaticDetector{}
	detector.Faces.Store(1)

	sess := session.New(session.Options{
		DisplayName:  cfg.DisplayName,
		IsHost:       asHost,
		STUNServers:  cfg.STUNServers,
		VideoEnabled: video,
		AudioEnabled: audio,
	}, ch, media.NewLoopbackSource(), media.LogSink{}, detector)
	defer sess.Close()

	ch.OnMessage(sess.HandleMessage)

	runErr := make(chan error, 1)
	go func() { runErr <- ch.Run(ctx) }()

	go printEvents(sess)

	if err := sess.Join(room); err != nil && err != signal.ErrNotConnected {
		return err
	}
	util.LogInfo("joining %q as %q (host=%v)", room, cfg.DisplayName, asHost)

	select {
	case <-ctx.Done():
		return nil
	case err := <-runErr:
		if err == context.Canceled {
			return nil
		}
		return err
	}
}

func printEvents(sess *session.Session) {
	for ev := range sess.Events() {
		switch e := ev.(type) {
		case session.JoinedEvent:
			util.LogInfo("joined as %s (%d member(s) present)", e.Identity, len(e.Members))
		case session.ParticipantJoinedEvent:
			util.LogInfo("%s joined (host=%v)", e.DisplayName, e.IsHost)
		case session.ParticipantLeftEvent:
			util.LogInfo("%s left", e.DisplayName)
		case session.PeerStatusEvent:
			util.LogInfo("peer %s: %s", e.Identity, e.Status)
		case session.StreamReadyEvent:
			util.LogInfo("stream ready: %s/%s", e.Stream.Remote, e.Stream.Class)
		case session.ChatEvent:
			pterm.Info.Printfln("[%s] %s", e.SenderName, e.Text)
		case session.AlertEvent:
			util.LogWarning("alert (%s) about %s: %s", e.Kind, e.About, e.Message)
		case session.ScreenShareEvent:
			util.LogInfo("%s screen share: %v", e.DisplayName, e.Sharing)
		case session.MediaControlEvent:
			util.LogInfo("host adjusted local media")
		case session.ProctorEvent:
			util.LogInfo("proctor mode: %v", e.Enabled)
		}
	}
}

// ask prompts until a non-empty value is entered.
func ask(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()
		if v := strings.TrimSpace(raw); v != "" {
			pterm.Println()
			return v
		}
	}
}

// Command meshpeer is a CLI mesh participant.
//
// Joins a signaling relay, keeps a WebRTC data channel with every other
// participant and turns stdin into a chat over the mesh:
//
//	text            broadcast to every open channel
//	/to <peer> text send to one peer (full id or its 8-char tag)
//	/peers          list known peers and their negotiation state
//	/quit           leave
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/mesh/internal/config"
	"github.com/1ureka/mesh/internal/mesh"
	"github.com/1ureka/mesh/internal/protocol"
	"github.com/1ureka/mesh/internal/signaling"
	"github.com/1ureka/mesh/internal/transport"
	"github.com/1ureka/mesh/internal/util"
)

var version = "dev"

// chatMessage is the only application message meshpeer speaks.
type chatMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const chatType = "chat"

func main() {
	if err := run(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("meshpeer", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to a YAML config file")
	relayURL := flagSet.StringP("relay", "r", "", "relay WebSocket URL (overrides relay_url)")
	label := flagSet.String("label", "", "data channel label (overrides channel_label)")
	loopback := flagSet.Bool("loopback", false, "gather loopback candidates (all peers on one host)")
	interactive := flagSet.BoolP("interactive", "i", false, "prompt for the relay URL")
	debug := flagSet.Bool("debug", false, "enable debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if flagSet.Changed("relay") {
		normalized, err := normalizeWSURL(*relayURL)
		if err != nil {
			return err
		}
		cfg.RelayURL = normalized
	}
	if flagSet.Changed("label") {
		cfg.ChannelLabel = *label
	}
	if flagSet.Changed("loopback") {
		cfg.IncludeLoopback = *loopback
	}
	if flagSet.Changed("debug") {
		cfg.Debug = *debug
	}
	if *interactive {
		cfg.RelayURL = askURL()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pterm.Info.Println(fmt.Sprintf("meshpeer v%s", version))
	pterm.Println()

	gateway, err := signaling.Dial(ctx, cfg.RelayURL)
	if err != nil {
		return err
	}
	defer gateway.Close()

	stats := util.NewStats()
	o := mesh.New(gateway, transport.NewEngineFromConfig(cfg), mesh.OptionsFromConfig(cfg, stats))
	defer o.Close()

	o.OnChannelOpen(func(id string) {
		util.LogSuccess("[%s] ready to chat", util.PeerTag(id))
	})
	o.OnChannelClose(func(id string) {
		util.LogInfo("[%s] channel closed", util.PeerTag(id))
	})
	o.OnPeerDisconnected(func(id string) {
		util.LogInfo("[%s] left the mesh", util.PeerTag(id))
	})
	o.OnMessage(chatType, func(m protocol.Message) {
		var msg chatMessage
		if err := m.Decode(&msg); err != nil {
			util.LogWarning("[%s] bad chat message: %v", util.PeerTag(m.From), err)
			return
		}
		pterm.Println(fmt.Sprintf("%s %s", pterm.Cyan("["+util.PeerTag(m.From)+"]"), msg.Text))
	})

	if err := o.Connect(ctx); err != nil {
		return err
	}
	util.StartStatsReporter(ctx, stats, cfg.StatsInterval.Std())

	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case <-ctx.Done():
			util.LogInfo("successfully left the mesh")
			return nil
		case <-gateway.Done():
			return fmt.Errorf("lost connection to relay")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, o, line); quit {
				return nil
			}
		}
	}
}

// readLines forwards stdin lines until EOF.
func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// handleLine executes one chat command. It returns true on /quit.
func handleLine(ctx context.Context, o *mesh.Orchestrator, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false

	case line == "/quit":
		return true

	case line == "/peers":
		peers := o.Peers()
		if len(peers) == 0 {
			util.LogInfo("no peers yet")
		}
		for _, id := range peers {
			state, _ := o.PeerState(id)
			util.LogInfo("[%s] %s (%s)", util.PeerTag(id), id, state)
		}
		return false

	case strings.HasPrefix(line, "/to "):
		target, text, found := strings.Cut(strings.TrimPrefix(line, "/to "), " ")
		if !found || strings.TrimSpace(text) == "" {
			util.LogWarning("usage: /to <peer> <text>")
			return false
		}
		id, ok := resolvePeer(o.Peers(), target)
		if !ok {
			util.LogWarning("unknown peer %q", target)
			return false
		}
		if err := o.SendTo(ctx, id, chatMessage{Type: chatType, Text: text}); err != nil {
			util.LogWarning("[%s] send failed: %v", util.PeerTag(id), err)
		}
		return false

	default:
		n, err := o.Broadcast(ctx, chatMessage{Type: chatType, Text: line})
		if err != nil {
			util.LogWarning("broadcast failed: %v", err)
		} else if n == 0 {
			util.LogWarning("nobody to talk to yet")
		}
		return false
	}
}

// resolvePeer matches target against full peer ids and their display tags.
func resolvePeer(peers []string, target string) (string, bool) {
	for _, id := range peers {
		if id == target || util.PeerTag(id) == target {
			return id, true
		}
	}
	return "", false
}

// normalizeWSURL validates a relay URL, defaulting the scheme to wss and the
// path to /ws.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	path := u.Path
	if path == "" || path == "/" {
		path = "/ws"
	}
	return fmt.Sprintf("%s://%s%s", scheme, u.Host, path), nil
}

// askURL prompts the user for a valid relay URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. wss://relay.example.com/ws)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

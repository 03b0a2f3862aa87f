// Command meshrelay runs the WebSocket signaling relay for mesh participants.
//
// Every connection is assigned an identity and announced to the others;
// offers, answers and candidates are forwarded to their addressee. Once the
// data channels are up the relay carries no application traffic.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/mesh/internal/signaling"
	"github.com/1ureka/mesh/internal/util"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("meshrelay", pflag.ContinueOnError)
	listen := flagSet.StringP("listen", "l", "127.0.0.1:8080", "address to serve the relay on")
	debug := flagSet.Bool("debug", false, "enable debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if *debug {
		util.EnableDebug()
	}

	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pterm.Info.Println(fmt.Sprintf("meshrelay v%s", version))
	pterm.Println()

	relay := signaling.NewRelay()
	addr, err := relay.Start(*listen)
	if err != nil {
		return err
	}
	util.LogSuccess("relay listening on ws://%s/ws", addr)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := relay.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down relay: %w", err)
	}
	util.LogInfo("relay stopped")
	return nil
}

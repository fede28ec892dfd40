package main

import (
	"flag"

	"github.com/helia-im/helia/internal/cipher"
	"github.com/helia-im/helia/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.helia/config.toml)")
	flag.Parse()

	// The session engine binds here once linked; until then the gateway
	// tracks recovery state and signal envelopes degrade to FAILED
	// placeholders repaired by the resend protocol.
	gateway := cipher.NewMemory()

	app := fx.New(
		daemon.Module(daemon.Params{
			ConfigPath: *configFlag,
			Gateway:    gateway,
		}),
	)

	app.Run()
}

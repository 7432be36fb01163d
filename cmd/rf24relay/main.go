// rf24relay runs the telemetry relay between nRF24 sensors and the network.
//
// Usage:
//
//	rf24relay serve [--config rf24relay.toml]
//	rf24relay identity show|generate
//	rf24relay devices list|forget <uuid>
//	rf24relay discover
//
// The identity passphrase, if any, is read from RF24RELAY_PASSPHRASE.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

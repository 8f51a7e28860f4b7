// Command conveyord runs the conveyor print daemon in the foreground.
package main

import (
	"context"
	"flag"
	"log"

	"conveyor/internal/config"
	"conveyor/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	addressFlag := flag.String("address", "", "IPC address override (pipe:PATH or tcp:HOST:PORT)")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		Address:  *addressFlag,
		LogLevel: *logLevel,
	}); err != nil {
		log.Fatalf("conveyord: %v", err)
	}
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/geminid/internal/config"
	"github.com/danmuck/geminid/internal/logging"
	"github.com/danmuck/geminid/internal/server"
)

func main() {
	configPath := flag.String("config", "geminid.toml", "path to the geminid TOML config")
	detach := flag.Bool("detach", false, "run in the background, detached from the terminal")
	logFile := flag.String("log-file", "geminid.log", "file receiving log output in -detach mode")
	flag.Parse()

	if shouldDetach(*detach, os.Getenv(envDetached)) {
		pid, err := detachProcess(os.Args[1:], *logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "geminid: detach: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("geminid: running in background pid=%d log=%s\n", pid, *logFile)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "geminid: %v\n", err)
		os.Exit(1)
	}
	logging.ConfigureRuntime(cfg.LogLevel)

	svc, err := server.NewService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "geminid: %v\n", err)
		os.Exit(1)
	}
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "geminid: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"flag"
	"os"

	"github.com/danmuck/geminid/internal/config"
	"github.com/fatih/color"
)

func main() {
	output := flag.String("output", "geminid.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "geminid.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			fail(err)
		}
		color.Green("valid %s (listen %s, content_root %s)", *input, cfg.ListenAddr(), cfg.ContentRoot)
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		fail(err)
	}
	color.Green("wrote config template to %s", *output)
}

func fail(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "configgen: %v\n", err)
	os.Exit(1)
}

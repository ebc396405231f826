// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/optical_tracker/internal/app"
	"github.com/relabs-tech/optical_tracker/internal/config"
)

func main() {
	configPath := flag.String("config", "./optical_config.txt", "path to configuration file (defaults are used if it does not exist)")
	flag.Parse()

	used, err := config.InitGlobalOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if !used {
		log.Printf("no config at %s, using built-in defaults", *configPath)
	}

	if err := app.RunDemo(config.Get()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

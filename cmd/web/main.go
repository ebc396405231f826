// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/optical_tracker/internal/app"
	"github.com/relabs-tech/optical_tracker/internal/config"
)

func main() {
	log.Println("starting optical-tracker web viewer (MQTT subscriber)")

	if err := config.InitGlobal("optical_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Note: frames only appear while the frame producer is running")

	if err := app.RunWeb(config.Get()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

package main

import (
	"log"

	"github.com/relabs-tech/optical_tracker/internal/app"
	"github.com/relabs-tech/optical_tracker/internal/config"
)

func main() {
	log.Println("starting optical-tracker console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal("optical_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(config.Get()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/optical_tracker/internal/config"
	"github.com/relabs-tech/optical_tracker/internal/marker"
)

// formatFrame renders one frame as a single console line.
func formatFrame(f marker.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[FRAME] seq=%d visible=%d/%d", f.Sequence, f.Visible(), len(f.Markers))
	for i, p := range f.Markers {
		if !p.Visible() {
			fmt.Fprintf(&b, "  m%d=missing", i)
			continue
		}
		fmt.Fprintf(&b, "  m%d=(%.2f, %.2f, %.2f)", i, p.X, p.Y, p.Z)
	}
	return b.String()
}

func printFramePayload(w io.Writer, payload []byte) error {
	var f marker.Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, formatFrame(f))
	return err
}

// RunConsoleMQTT prints every frame published on the frame topic until
// interrupted.
func RunConsoleMQTT(cfg *config.Config) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicFrame, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := printFramePayload(os.Stdout, msg.Payload()); err != nil {
			log.Printf("console: frame unmarshal error: %v", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicFrame)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

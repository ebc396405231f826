package config

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Hardware backends selectable with HARDWARE.
const (
	HardwareSerial = "serial"
	HardwareMock   = "mock"
)

// Config holds all application configuration values.
type Config struct {
	// Tracker hardware
	Hardware           string
	BridgeSerialPort   string
	BridgeBaudRate     int
	BridgeAckTimeoutMS int

	// Collection
	MarkerCount     int
	MarkerPort      int
	FrameFrequency  float64 // Hz
	MarkerFrequency float64 // Hz, marker maximum on-time
	Threshold       int
	Gain            int
	StreamMode      int
	DutyCycle       float64
	Voltage         float64
	CollectTime     float64 // seconds
	TriggerTime     float64 // seconds
	Blocking        bool
	SettleDelayMS   int

	// Demo
	DemoIterations int

	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDWeb      string
	MQTTClientIDConsole  string
	TopicFrame           string

	// Producer
	ProducerLogInterval int // frames

	// Optional GPIO strobe toggled once per polled frame
	SyncGPIOPin string

	// Web Server
	WebServerPort int
}

// Package-level singleton state. InitGlobal sets it once, Get reads it.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns the configuration the demo historically ran with:
// three markers at 500 Hz, blocking polls, ten iterations.
func Defaults() *Config {
	return &Config{
		Hardware:           HardwareSerial,
		BridgeSerialPort:   "/dev/ttyUSB0",
		BridgeBaudRate:     115200,
		BridgeAckTimeoutMS: 3000,

		MarkerCount:     3,
		MarkerPort:      0,
		FrameFrequency:  500,
		MarkerFrequency: 2500,
		Threshold:       30,
		Gain:            160,
		StreamMode:      0,
		DutyCycle:       0.4,
		Voltage:         7.0,
		CollectTime:     1.0,
		TriggerTime:     0,
		Blocking:        true,
		SettleDelayMS:   1000,

		DemoIterations: 10,

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDProducer: "optical-frame-producer",
		MQTTClientIDWeb:      "optical-web-subscriber",
		MQTTClientIDConsole:  "optical-console-subscriber",
		TopicFrame:           "optical/frame",

		ProducerLogInterval: 100,

		WebServerPort: 8080,
	}
}

// Load reads the configuration file and returns a Config struct.
// Keys missing from the file keep their Defaults() value.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r on top of Defaults().
func Parse(r io.Reader) (*Config, error) {
	cfg := Defaults()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Tracker hardware
	case "HARDWARE":
		c.Hardware = strings.ToLower(value)
	case "BRIDGE_SERIAL_PORT":
		c.BridgeSerialPort = value
	case "BRIDGE_BAUD_RATE":
		return parseInt(key, value, 1, 4000000, &c.BridgeBaudRate)
	case "BRIDGE_ACK_TIMEOUT_MS":
		return parseInt(key, value, 1, 60000, &c.BridgeAckTimeoutMS)

	// Collection
	case "MARKER_COUNT":
		return parseInt(key, value, 1, 512, &c.MarkerCount)
	case "MARKER_PORT":
		return parseInt(key, value, 0, 3, &c.MarkerPort)
	case "FRAME_FREQUENCY":
		return parseFloat(key, value, &c.FrameFrequency)
	case "MARKER_FREQUENCY":
		return parseFloat(key, value, &c.MarkerFrequency)
	case "THRESHOLD":
		return parseInt(key, value, 0, 255, &c.Threshold)
	case "GAIN":
		return parseInt(key, value, 0, 255, &c.Gain)
	case "STREAM_MODE":
		return parseInt(key, value, 0, 2, &c.StreamMode)
	case "DUTY_CYCLE":
		return parseFloat(key, value, &c.DutyCycle)
	case "VOLTAGE":
		return parseFloat(key, value, &c.Voltage)
	case "COLLECT_TIME":
		return parseFloat(key, value, &c.CollectTime)
	case "TRIGGER_TIME":
		return parseFloat(key, value, &c.TriggerTime)
	case "BLOCKING":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid BLOCKING %q: %w", value, err)
		}
		c.Blocking = b
	case "SETTLE_DELAY_MS":
		return parseInt(key, value, 0, 60000, &c.SettleDelayMS)

	// Demo
	case "DEMO_ITERATIONS":
		return parseInt(key, value, 1, 1<<30, &c.DemoIterations)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "TOPIC_FRAME":
		c.TopicFrame = value

	case "PRODUCER_LOG_INTERVAL":
		return parseInt(key, value, 1, 1<<30, &c.ProducerLogInterval)

	case "SYNC_GPIO_PIN":
		c.SyncGPIOPin = value

	// Web Server
	case "WEB_SERVER_PORT":
		return parseInt(key, value, 1, 65535, &c.WebServerPort)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseInt(key, value string, min, max int, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min || v > max {
		return fmt.Errorf("%s must be %d-%d, got %d", key, min, max, v)
	}
	*dst = v
	return nil
}

func parseFloat(key, value string, dst *float64) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number, got %q", key, value)
	}
	*dst = v
	return nil
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	switch c.Hardware {
	case HardwareSerial:
		if c.BridgeSerialPort == "" {
			return fmt.Errorf("BRIDGE_SERIAL_PORT is required when HARDWARE=serial")
		}
	case HardwareMock:
	default:
		return fmt.Errorf("HARDWARE must be %q or %q, got %q", HardwareSerial, HardwareMock, c.Hardware)
	}
	if c.FrameFrequency <= 0 {
		return fmt.Errorf("FRAME_FREQUENCY must be positive, got %g", c.FrameFrequency)
	}
	if c.MarkerFrequency <= 0 {
		return fmt.Errorf("MARKER_FREQUENCY must be positive, got %g", c.MarkerFrequency)
	}
	if c.DutyCycle <= 0 || c.DutyCycle > 1 {
		return fmt.Errorf("DUTY_CYCLE must be in (0, 1], got %g", c.DutyCycle)
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicFrame == "" {
		return fmt.Errorf("TOPIC_FRAME is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// InitGlobalOrDefault behaves like InitGlobal but falls back to Defaults()
// when the file does not exist. It reports whether the file was used.
func InitGlobalOrDefault(configPath string) (bool, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configOnce.Do(func() {
			configMu.Lock()
			defer configMu.Unlock()
			globalConfig = Defaults()
		})
		return false, nil
	}
	return true, InitGlobal(configPath)
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/optical_tracker/internal/config"
	"github.com/relabs-tech/optical_tracker/internal/marker"
	"github.com/relabs-tech/optical_tracker/internal/plot"
)

const (
	plotDefaultSize = 480
	plotMaxSize     = 2048
	wsClientBuffer  = 16
)

// frameStore keeps the newest frame and fans it out to WebSocket clients.
type frameStore struct {
	mu        sync.RWMutex
	last      marker.Frame
	haveFrame bool
	clients   map[chan marker.Frame]struct{}
}

func newFrameStore() *frameStore {
	return &frameStore{clients: map[chan marker.Frame]struct{}{}}
}

func (s *frameStore) update(f marker.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = f
	s.haveFrame = true
	for ch := range s.clients {
		select {
		case ch <- f:
		default:
			// slow client, it will catch up with a later frame
		}
	}
}

func (s *frameStore) latest() (marker.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.haveFrame
}

func (s *frameStore) subscribe() chan marker.Frame {
	ch := make(chan marker.Frame, wsClientBuffer)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *frameStore) unsubscribe(ch chan marker.Frame) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

// handleMessage decodes one MQTT frame payload into the store.
func (s *frameStore) handleMessage(payload []byte) error {
	var f marker.Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	s.update(f)
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// newWebMux builds the viewer endpoints on top of store.
func newWebMux(store *frameStore, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	// latest frame as JSON
	mux.HandleFunc("/api/frame", func(w http.ResponseWriter, r *http.Request) {
		f, ok := store.latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(f); err != nil {
			log.Printf("json encode error: %v", err)
		}
	})

	// top-down plot of the latest frame, ?size=N for an N×N image
	mux.HandleFunc("/plot.png", func(w http.ResponseWriter, r *http.Request) {
		f, ok := store.latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		size := plotDefaultSize
		if v := r.URL.Query().Get("size"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 32 || n > plotMaxSize {
				http.Error(w, fmt.Sprintf("size must be 32-%d", plotMaxSize), http.StatusBadRequest)
				return
			}
			size = n
		}
		w.Header().Set("Content-Type", "image/png")
		if err := plot.WritePNG(w, f, size, size); err != nil {
			log.Printf("plot encode error: %v", err)
		}
	})

	// every frame as it arrives
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ch := store.subscribe()
		defer store.unsubscribe(ch)

		// the viewer never sends anything; reading only notices the close
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if f, ok := store.latest(); ok {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		for {
			select {
			case f := <-ch:
				if err := conn.WriteJSON(f); err != nil {
					log.Printf("WebSocket write error: %v", err)
					return
				}
			case <-closed:
				return
			}
		}
	})

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// RunWeb subscribes to the frame topic and serves the viewer.
func RunWeb(cfg *config.Config) error {
	store := newFrameStore()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicFrame, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := store.handleMessage(msg.Payload()); err != nil {
			log.Printf("MQTT payload unmarshal error: %v", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("subscribed to MQTT topic %s", cfg.TopicFrame)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, newWebMux(store, "web"))
}

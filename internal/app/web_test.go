package app

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/optical_tracker/internal/marker"
)

func testFrame(seq uint32) marker.Frame {
	return marker.Frame{Sequence: seq, Markers: []marker.Position{{X: 1, Y: 2, Z: -2000}, {X: 50, Y: 2, Z: -1990}}}
}

func TestFrameEndpoint(t *testing.T) {
	store := newFrameStore()
	srv := httptest.NewServer(newWebMux(store, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/frame")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status before data = %d, want 503", resp.StatusCode)
	}

	payload, _ := json.Marshal(testFrame(4))
	if err := store.handleMessage(payload); err != nil {
		t.Fatal(err)
	}
	if err := store.handleMessage([]byte("{not json")); err == nil {
		t.Fatal("bad payload accepted")
	}

	resp, err = http.Get(srv.URL + "/api/frame")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var f marker.Frame
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.Sequence != 4 || len(f.Markers) != 2 {
		t.Fatalf("frame = %+v", f)
	}
}

func TestPlotEndpoint(t *testing.T) {
	store := newFrameStore()
	store.update(testFrame(1))
	srv := httptest.NewServer(newWebMux(store, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/plot.png?size=128")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 128 || img.Bounds().Dy() != 128 {
		t.Fatalf("size = %v", img.Bounds())
	}

	bad, err := http.Get(srv.URL + "/plot.png?size=5")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("status for size=5: %d", bad.StatusCode)
	}
}

func TestWebSocketStreamsFrames(t *testing.T) {
	store := newFrameStore()
	store.update(testFrame(1))
	srv := httptest.NewServer(newWebMux(store, ""))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var f marker.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	if f.Sequence != 1 {
		t.Fatalf("first frame seq %d, want the stored frame 1", f.Sequence)
	}

	// wait until the handler has subscribed before publishing
	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.RLock()
		n := len(store.clients)
		store.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	store.update(testFrame(2))
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	if f.Sequence != 2 {
		t.Fatalf("streamed seq %d, want 2", f.Sequence)
	}
}

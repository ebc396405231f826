package sensors

import (
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestStrobeToggles(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", Num: 17, L: gpio.High}

	s, err := newStrobe(pin)
	if err != nil {
		t.Fatal(err)
	}
	if pin.Read() != gpio.Low {
		t.Fatal("strobe should start low")
	}

	want := []gpio.Level{gpio.High, gpio.Low, gpio.High}
	for i, w := range want {
		if err := s.Toggle(); err != nil {
			t.Fatal(err)
		}
		if got := pin.Read(); got != w {
			t.Fatalf("toggle %d: pin = %v, want %v", i, got, w)
		}
		if s.Level() != w {
			t.Fatalf("toggle %d: Level() = %v, want %v", i, s.Level(), w)
		}
	}
}

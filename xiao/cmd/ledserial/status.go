package main

import (
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

// status is the protocol state shown on the board's own RGB LED.
type status uint8

const (
	// statusWaiting means no strip length was received yet.
	statusWaiting status = iota
	// statusReading means a packet is being received.
	statusReading
	// statusReady means the strip is initialized and idle.
	statusReady
	// statusPanicked means the device halted.
	statusPanicked
)

var statusColors = [...][3]uint8{
	statusWaiting:  {0, 0, 32},
	statusReading:  {32, 32, 32},
	statusReady:    {0, 32, 0},
	statusPanicked: {255, 0, 0},
}

// statusLED drives the XIAO RP2040's onboard NeoPixel, which has its own
// power pin.
type statusLED struct {
	power machine.Pin
	led   ws2812.Device
}

func newStatusLED() *statusLED {
	// https://wiki.seeedstudio.com/XIAO-RP2040-with-Arduino/
	power := machine.GPIO11
	power.Configure(machine.PinConfig{Mode: machine.PinOutput})
	power.High()

	data := machine.GPIO12
	data.Configure(machine.PinConfig{Mode: machine.PinOutput})

	return &statusLED{power: power, led: ws2812.New(data)}
}

func (s *statusLED) set(st status) {
	writeLEDRGB(s.led, statusColors[st])
}

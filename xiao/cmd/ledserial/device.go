package main

import (
	"fmt"
	"io"
	"machine"
	"time"

	"libdb.so/turboglow/ledserial"
	"tinygo.org/x/drivers/ws2812"
)

// Device stores the current state of the device.
type Device struct {
	in     ledserial.Reader
	out    io.Writer
	led    ws2812.Device
	status *statusLED

	numLEDs uint16
}

// NewDevice creates a new device.
func NewDevice(serial machine.Serialer, ledPin machine.Pin) *Device {
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	port := serialPort{s: serial}
	d := &Device{
		in:     ledserial.NewReader(port),
		out:    port,
		led:    ws2812.New(ledPin),
		status: newStatusLED(),
	}
	d.status.set(statusWaiting)
	return d
}

// Run runs the device loop forever.
func (d *Device) Run() {
	for {
		p, err := d.readPacket()
		if err != nil {
			d.logError(err)
			continue
		}

		if err := d.handlePacket(p); err != nil {
			d.logError(err)
		}
	}
}

func (d *Device) log(msg string) {
	d.sendPacket(ledserial.LogPacket{Message: msg})
}

func (d *Device) logError(err error) {
	d.sendPacket(ledserial.ErrorPacket{Message: err.Error()})
}

// panic tells the host to stop sending and halts.
func (d *Device) panic(err error) {
	d.sendPacket(ledserial.PanicPacket{Message: err.Error()})
	d.status.set(statusPanicked)
	for {
		time.Sleep(time.Hour)
	}
}

func (d *Device) sendPacket(p ledserial.OutgoingPacket) {
	ledserial.WriteOutgoingPacket(d.out, p)
}

func (d *Device) readPacket() (ledserial.IncomingPacket, error) {
	d.status.set(statusReading)
	defer d.setIdle()

	return ledserial.ReadIncomingPacket(d.in, ledserial.ReadContext{
		NumLEDs: d.numLEDs,
	})
}

func (d *Device) setIdle() {
	if d.numLEDs == 0 {
		d.status.set(statusWaiting)
	} else {
		d.status.set(statusReady)
	}
}

func (d *Device) handlePacket(p ledserial.IncomingPacket) error {
	switch p := p.(type) {
	case ledserial.InitializePacket:
		if p.NumLEDs < 1 {
			d.panic(fmt.Errorf("invalid number of LEDs: %d", p.NumLEDs))
		}
		d.numLEDs = p.NumLEDs
		d.clearLEDs(true)
		d.setIdle()
		d.log(fmt.Sprintf("initialized %d LEDs", p.NumLEDs))

	case ledserial.ClearPacket:
		d.clearLEDs(false)

	case ledserial.SetPacket:
		if len(p.Pix) != 3*int(d.numLEDs) {
			return fmt.Errorf("invalid number of pixels: %d", len(p.Pix)/3)
		}
		for _, b := range p.Pix {
			d.led.WriteByte(b)
		}

	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	d.sendPacket(ledserial.AckPacket{
		IncomingPacketType: p.Type(),
	})
	return nil
}

// clearLEDs turns every LED off. If signalReady is true, the first LED is
// lit red and the last blue so the strip's ends can be checked.
func (d *Device) clearLEDs(signalReady bool) {
	n := int(d.numLEDs)
	for i := range n {
		switch {
		case signalReady && i == 0:
			writeLEDRGB(d.led, [3]uint8{255, 0, 0})
		case signalReady && i == n-1:
			writeLEDRGB(d.led, [3]uint8{0, 0, 255})
		default:
			writeLEDRGB(d.led, [3]uint8{})
		}
	}
}

func writeLEDRGB(led ws2812.Device, c [3]uint8) {
	led.WriteByte(c[0])
	led.WriteByte(c[1])
	led.WriteByte(c[2])
}

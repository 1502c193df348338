// Command ledserial is the firmware for a Seeed XIAO RP2040 driving a WS2812
// strip. It speaks the ledserial protocol over USB serial and is the peer of
// turboglow's serial connections.
package main

import "machine"

// stripPin is the data pin of the LED strip.
var stripPin = machine.D10

func main() {
	machine.Serial.Configure(machine.UARTConfig{BaudRate: 115200})
	NewDevice(machine.Serial, stripPin).Run()
}

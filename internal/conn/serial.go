package conn

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"libdb.so/turboglow/ledserial"
)

type serialTransport struct {
	device string
	baud   int
	logger *slog.Logger

	openPort func(string, *serial.Mode) (serial.Port, error)
	port     serial.Port
	numLEDs  int
	buf      []byte
	closing  atomic.Bool
}

func newSerialTransport(device string, baud int, logger *slog.Logger) *serialTransport {
	return &serialTransport{
		device:   device,
		baud:     baud,
		logger:   logger.With("device", device),
		openPort: serial.Open,
	}
}

func (t *serialTransport) open(ctx context.Context) error {
	port, err := t.openPort(t.device, &serial.Mode{BaudRate: t.baud})
	if err != nil {
		return errors.Wrap(err, "failed to open serial port")
	}

	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return errors.Wrap(err, "failed to reset read timeout")
	}

	t.port = port
	go t.readPackets()
	return nil
}

// write sends the frame as a set packet, re-initializing the controller first
// whenever the number of LEDs changes.
func (t *serialTransport) write(frame []byte) error {
	if n := len(frame) / 3; n != t.numLEDs {
		if n > math.MaxUint16 {
			return fmt.Errorf("too many LEDs for the serial protocol: %d", n)
		}
		if err := t.writePacket(ledserial.InitializePacket{NumLEDs: uint16(n)}); err != nil {
			return err
		}
		t.numLEDs = n
	}

	return t.writePacket(ledserial.SetPacket{Pix: frame})
}

func (t *serialTransport) writePacket(p ledserial.IncomingPacket) error {
	var err error
	t.buf, err = ledserial.AppendIncomingPacket(t.buf[:0], p)
	if err != nil {
		return err
	}
	if _, err := t.port.Write(t.buf); err != nil {
		return errors.Wrapf(err, "failed to write %s packet", p.Type())
	}
	return nil
}

func (t *serialTransport) close() error {
	t.closing.Store(true)
	return t.port.Close()
}

// readPackets logs what the controller reports. A panic from the controller
// closes the port, which fails the next write and kills the connection.
func (t *serialTransport) readPackets() {
	r := ledserial.NewReader(t.port)

	for {
		p, err := ledserial.ReadOutgoingPacket(r)
		if err != nil {
			if !t.closing.Load() {
				t.logger.Debug("stopped reading from controller", "err", err)
			}
			return
		}

		switch p := p.(type) {
		case ledserial.AckPacket:
			t.logger.Debug(
				"received ack packet from controller",
				"acked_for", p.IncomingPacketType)

		case ledserial.ErrorPacket:
			t.logger.Warn(
				"received error packet from controller",
				"message", p.Message)

		case ledserial.PanicPacket:
			t.logger.Error(
				"controller unrecoverably panicked",
				"message", p.Message)
			t.port.Close()
			return

		case ledserial.LogPacket:
			t.logger.Info(
				"received log packet from controller",
				"message", p.Message)
		}
	}
}

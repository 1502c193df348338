package main

import (
	"io"
	"machine"
	"time"
)

// serialPort turns a machine.Serialer into a blocking io.ReadWriter, which is
// what ledserial expects.
type serialPort struct {
	s machine.Serialer
}

var _ io.ReadWriter = serialPort{}

// Read waits until at least one byte is buffered, then returns as many as fit
// in b. It never returns 0 bytes without an error, so a bufio.Reader on top of
// it does not give up on an idle line.
func (p serialPort) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	for p.s.Buffered() == 0 {
		time.Sleep(time.Millisecond)
	}

	n := min(p.s.Buffered(), len(b))
	for i := range n {
		c, err := p.s.ReadByte()
		if err != nil {
			return i, err
		}
		b[i] = c
	}
	return n, nil
}

func (p serialPort) Write(b []byte) (int, error) {
	for i, c := range b {
		if err := p.s.WriteByte(c); err != nil {
			return i, err
		}
	}
	return len(b), nil
}

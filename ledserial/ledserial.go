// Package ledserial implements the framing used between the host and a
// serial LED controller.
//
// Every packet is a one byte type, a type specific payload and a little
// endian CRC32 (IEEE) of the type and payload. The host sends incoming
// packets (from the controller's point of view) and the controller replies
// with outgoing packets.
package ledserial

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// IncomingPacketType is the type of a packet sent to the controller.
type IncomingPacketType uint8

const (
	TypeInitializePacket IncomingPacketType = iota
	TypeClearPacket
	TypeSetPacket
)

// String returns a string representation of the packet type.
func (t IncomingPacketType) String() string {
	switch t {
	case TypeInitializePacket:
		return "initialize"
	case TypeClearPacket:
		return "clear"
	case TypeSetPacket:
		return "set"
	default:
		return fmt.Sprintf("IncomingPacketType(%d)", t)
	}
}

// IncomingPacket is a packet sent to the controller.
type IncomingPacket interface {
	Type() IncomingPacketType
}

// InitializePacket tells the controller how many LEDs it drives.
type InitializePacket struct {
	NumLEDs uint16
}

// ClearPacket turns every LED off.
type ClearPacket struct{}

// SetPacket sets every LED. Pix holds 3 bytes per LED.
type SetPacket struct {
	Pix []uint8
}

func (InitializePacket) Type() IncomingPacketType { return TypeInitializePacket }
func (ClearPacket) Type() IncomingPacketType      { return TypeClearPacket }
func (SetPacket) Type() IncomingPacketType        { return TypeSetPacket }

// OutgoingPacketType is the type of a packet sent by the controller.
type OutgoingPacketType uint8

const (
	TypeAckPacket OutgoingPacketType = iota
	TypeErrorPacket
	TypePanicPacket
	TypeLogPacket
)

// String returns a string representation of the packet type.
func (t OutgoingPacketType) String() string {
	switch t {
	case TypeAckPacket:
		return "ack"
	case TypeErrorPacket:
		return "error"
	case TypePanicPacket:
		return "panic"
	case TypeLogPacket:
		return "log"
	default:
		return fmt.Sprintf("OutgoingPacketType(%d)", t)
	}
}

// OutgoingPacket is a packet sent by the controller.
type OutgoingPacket interface {
	Type() OutgoingPacketType
}

// AckPacket acknowledges an incoming packet.
type AckPacket struct {
	IncomingPacketType IncomingPacketType
}

// ErrorPacket reports a recoverable error on the controller.
type ErrorPacket struct {
	Message string
}

// PanicPacket reports that the controller cannot recover.
type PanicPacket struct {
	Message string
}

// LogPacket carries a log message from the controller.
type LogPacket struct {
	Message string
}

func (AckPacket) Type() OutgoingPacketType   { return TypeAckPacket }
func (ErrorPacket) Type() OutgoingPacketType { return TypeErrorPacket }
func (PanicPacket) Type() OutgoingPacketType { return TypePanicPacket }
func (LogPacket) Type() OutgoingPacketType   { return TypeLogPacket }

// ReadContext is the state a reader needs to decode packets whose size is
// not self-describing.
type ReadContext struct {
	// NumLEDs is the number of LEDs in the strip.
	NumLEDs uint16
}

// AppendIncomingPacket appends the framed packet to dst.
func AppendIncomingPacket(dst []byte, p IncomingPacket) ([]byte, error) {
	start := len(dst)
	dst = append(dst, byte(p.Type()))

	switch p := p.(type) {
	case InitializePacket:
		dst = Endianness.AppendUint16(dst, p.NumLEDs)
	case ClearPacket:
	case SetPacket:
		dst = append(dst, p.Pix...)
	default:
		return dst[:start], fmt.Errorf("unknown packet type: %T", p)
	}

	return Endianness.AppendUint32(dst, crc32.ChecksumIEEE(dst[start:])), nil
}

// WriteIncomingPacket writes a framed packet to w in a single Write.
func WriteIncomingPacket(w io.Writer, p IncomingPacket) error {
	b, err := AppendIncomingPacket(nil, p)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write %s packet: %w", p.Type(), err)
	}
	return nil
}

// ReadIncomingPacket reads a framed packet sent to the controller.
func ReadIncomingPacket(r io.Reader, ctx ReadContext) (IncomingPacket, error) {
	fr := newFrameReader(r)

	ptype, err := fr.readByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read incoming packet type: %w", err)
	}

	var packet IncomingPacket
	switch ptype := IncomingPacketType(ptype); ptype {
	case TypeInitializePacket:
		n, err := fr.readUint16()
		if err != nil {
			return nil, fmt.Errorf("failed to read number of LEDs: %w", err)
		}
		packet = InitializePacket{NumLEDs: n}

	case TypeClearPacket:
		packet = ClearPacket{}

	case TypeSetPacket:
		pix, err := fr.readN(3 * int(ctx.NumLEDs))
		if err != nil {
			return nil, fmt.Errorf("failed to read pixel data: %w", err)
		}
		packet = SetPacket{Pix: pix}

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := fr.verify(); err != nil {
		return nil, err
	}
	return packet, nil
}

// AppendOutgoingPacket appends the framed packet to dst.
func AppendOutgoingPacket(dst []byte, p OutgoingPacket) ([]byte, error) {
	start := len(dst)
	dst = append(dst, byte(p.Type()))

	switch p := p.(type) {
	case AckPacket:
		dst = append(dst, byte(p.IncomingPacketType))
	case ErrorPacket:
		dst = appendMessage(dst, p.Message)
	case PanicPacket:
		dst = appendMessage(dst, p.Message)
	case LogPacket:
		dst = appendMessage(dst, p.Message)
	default:
		return dst[:start], fmt.Errorf("unknown packet type: %T", p)
	}

	return Endianness.AppendUint32(dst, crc32.ChecksumIEEE(dst[start:])), nil
}

func appendMessage(dst []byte, msg string) []byte {
	if len(msg) > math.MaxUint16 {
		msg = msg[:math.MaxUint16]
	}
	dst = Endianness.AppendUint16(dst, uint16(len(msg)))
	return append(dst, msg...)
}

// WriteOutgoingPacket writes a framed packet to w in a single Write.
func WriteOutgoingPacket(w io.Writer, p OutgoingPacket) error {
	b, err := AppendOutgoingPacket(nil, p)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write %s packet: %w", p.Type(), err)
	}
	return nil
}

// ReadOutgoingPacket reads a framed packet sent by the controller.
func ReadOutgoingPacket(r io.Reader) (OutgoingPacket, error) {
	fr := newFrameReader(r)

	ptype, err := fr.readByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read outgoing packet type: %w", err)
	}

	var packet OutgoingPacket
	switch ptype := OutgoingPacketType(ptype); ptype {
	case TypeAckPacket:
		t, err := fr.readByte()
		if err != nil {
			return nil, fmt.Errorf("failed to read acked packet type: %w", err)
		}
		packet = AckPacket{IncomingPacketType: IncomingPacketType(t)}

	case TypeErrorPacket, TypePanicPacket, TypeLogPacket:
		msg, err := fr.readMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s message: %w", ptype, err)
		}
		switch ptype {
		case TypeErrorPacket:
			packet = ErrorPacket{Message: msg}
		case TypePanicPacket:
			packet = PanicPacket{Message: msg}
		default:
			packet = LogPacket{Message: msg}
		}

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := fr.verify(); err != nil {
		return nil, err
	}
	return packet, nil
}

// frameReader reads a packet body while hashing it.
type frameReader struct {
	r    io.Reader
	hash hashWriter
}

type hashWriter interface {
	io.Writer
	Sum32() uint32
}

func newFrameReader(r io.Reader) *frameReader {
	hash := crc32.NewIEEE()
	return &frameReader{r: io.TeeReader(r, hash), hash: hash}
}

func (fr *frameReader) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (fr *frameReader) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(fr.r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (fr *frameReader) readUint16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(fr.r, b[:]); err != nil {
		return 0, err
	}
	return Endianness.Uint16(b[:]), nil
}

func (fr *frameReader) readMessage() (string, error) {
	n, err := fr.readUint16()
	if err != nil {
		return "", err
	}
	b, err := fr.readN(int(n))
	return string(b), err
}

// verify reads the trailing checksum. The checksum bytes still pass through
// the hash, so the sum is taken before reading them.
func (fr *frameReader) verify() error {
	want := fr.hash.Sum32()

	var checksum uint32
	if err := binary.Read(fr.r, Endianness, &checksum); err != nil {
		return fmt.Errorf("failed to read packet checksum: %w", err)
	}
	if checksum != want {
		return fmt.Errorf("packet checksum mismatch")
	}
	return nil
}

// Reader is a reader suitable for reading packets byte by byte.
type Reader interface {
	io.ByteReader
	io.Reader
}

// NewReader wraps r so small reads do not each hit the underlying port.
func NewReader(r io.Reader) Reader {
	if br, ok := r.(Reader); ok {
		return br
	}
	return bufio.NewReader(r)
}

// Package conn implements the transports LED frames are sent over.
//
// Every connection owns a bounded send queue drained by its own goroutine.
// Enqueueing never blocks. Once the transport fails the connection is dead for
// good and Enqueue returns ErrClosed; it is up to the owner to drop it.
package conn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Enqueue once the connection is dead.
var ErrClosed = errors.New("connection closed")

// Kind is a transport variant.
type Kind uint8

const (
	_ Kind = iota
	// KindStream is a TCP stream.
	KindStream
	// KindSerial is a serial port speaking the ledserial protocol.
	KindSerial
	// KindWebSocket is a websocket client sending binary messages.
	KindWebSocket
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindStream:
		return "tcp"
	case KindSerial:
		return "serial"
	case KindWebSocket:
		return "websocket"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// ParseKind parses a kind from its configuration name. Transports that have
// no send path are rejected here rather than at runtime.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "tcp", "stream":
		return KindStream, nil
	case "serial":
		return KindSerial, nil
	case "websocket", "ws":
		return KindWebSocket, nil
	default:
		return 0, fmt.Errorf("unsupported connection kind %q", s)
	}
}

// Connection is a destination for LED frames.
type Connection interface {
	// Enqueue queues a frame for sending. The connection takes ownership of
	// frame. It returns ErrClosed if the connection is dead. A full queue is
	// not an error; the frame is dropped.
	Enqueue(frame []byte) error
	// Alive reports whether the connection can still send.
	Alive() bool
	// Close stops the connection and drops pending frames.
	Close() error
}

// Config describes a connection.
type Config struct {
	Kind Kind
	// Address is host:port for KindStream and a ws:// URL for KindWebSocket.
	Address string
	// Device is the serial device path for KindSerial.
	Device string
	// Baud is the serial baud rate for KindSerial.
	Baud int
	// QueueSize is the number of frames that may be pending.
	QueueSize int
	// WriteTimeout bounds a single frame write. Zero means no timeout.
	WriteTimeout time.Duration
}

// DefaultQueueSize is used when Config.QueueSize is unset.
const DefaultQueueSize = 4

// Validate checks that the config describes a usable transport.
func (c Config) Validate() error {
	switch c.Kind {
	case KindStream, KindWebSocket:
		if c.Address == "" {
			return fmt.Errorf("%s connection needs an address", c.Kind)
		}
	case KindSerial:
		if c.Device == "" {
			return errors.New("serial connection needs a device")
		}
		if c.Baud <= 0 {
			return errors.New("serial connection needs a baud rate")
		}
	default:
		return fmt.Errorf("unsupported connection kind %v", c.Kind)
	}
	return nil
}

// transport is the variant specific half of a connection. All methods are
// called from the connection's goroutine.
type transport interface {
	open(ctx context.Context) error
	write(frame []byte) error
	close() error
}

// Conn is a Connection backed by a transport.
type Conn struct {
	id     int
	kind   Kind
	logger *slog.Logger

	transport transport
	queue     chan []byte
	alive     atomic.Bool
	cancel    context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
}

var _ Connection = (*Conn)(nil)

// Open creates a connection and starts its goroutine. The transport is
// opened in the background; if that fails, the connection dies and the next
// Enqueue reports ErrClosed.
func Open(ctx context.Context, id int, cfg Config, logger *slog.Logger) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var t transport
	switch cfg.Kind {
	case KindStream:
		t = &streamTransport{address: cfg.Address, timeout: cfg.WriteTimeout}
	case KindSerial:
		t = newSerialTransport(cfg.Device, cfg.Baud, logger)
	case KindWebSocket:
		t = &websocketTransport{url: cfg.Address, timeout: cfg.WriteTimeout}
	}

	return start(ctx, id, cfg.Kind, t, cfg.QueueSize, logger), nil
}

func start(ctx context.Context, id int, kind Kind, t transport, queueSize int, logger *slog.Logger) *Conn {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(ctx)

	c := &Conn{
		id:        id,
		kind:      kind,
		logger:    logger.With("connection", id, "kind", kind),
		transport: t,
		queue:     make(chan []byte, queueSize),
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}
	c.alive.Store(true)

	go c.run(ctx)
	return c
}

// ID returns the connection id.
func (c *Conn) ID() int { return c.id }

// Kind returns the transport kind.
func (c *Conn) Kind() Kind { return c.kind }

// Alive implements Connection.
func (c *Conn) Alive() bool { return c.alive.Load() }

// Enqueue implements Connection.
func (c *Conn) Enqueue(frame []byte) error {
	if !c.alive.Load() {
		return ErrClosed
	}

	select {
	case c.queue <- frame:
	default:
		c.logger.Debug("send queue full, dropping frame")
	}
	return nil
}

// Close implements Connection. It waits for the connection goroutine to
// release the transport.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		c.cancel()
	})
	<-c.stopped
	return nil
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.stopped)
	defer c.alive.Store(false)

	if err := c.transport.open(ctx); err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("failed to open connection", "err", err)
		}
		return
	}
	c.logger.Debug("connection opened")

	defer func() {
		if err := c.transport.close(); err != nil {
			c.logger.Debug("failed to close transport", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.queue:
			if err := c.transport.write(frame); err != nil {
				c.logger.Warn("connection lost", "err", err)
				return
			}
		}
	}
}

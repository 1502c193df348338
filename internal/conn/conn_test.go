package conn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"libdb.so/turboglow/ledserial"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// waitClosed enqueues frames until the connection reports ErrClosed.
func waitClosed(t *testing.T, c Connection) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := c.Enqueue([]byte{1, 2, 3}); errors.Is(err, ErrClosed) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("connection never reported ErrClosed")
}

type fakeTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	openErr error
	failAt  int
	closed  bool
}

func (t *fakeTransport) open(ctx context.Context) error { return t.openErr }

func (t *fakeTransport) write(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAt > 0 && len(t.frames)+1 >= t.failAt {
		return errors.New("broken pipe")
	}
	t.frames = append(t.frames, frame)
	return nil
}

func (t *fakeTransport) close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindStream, KindSerial, KindWebSocket} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("usb"); err == nil {
		t.Error("ParseKind accepted usb")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"tcp", Config{Kind: KindStream, Address: "127.0.0.1:1234"}, true},
		{"tcp without address", Config{Kind: KindStream}, false},
		{"serial", Config{Kind: KindSerial, Device: "/dev/ttyACM0", Baud: 115200}, true},
		{"serial without baud", Config{Kind: KindSerial, Device: "/dev/ttyACM0"}, false},
		{"websocket", Config{Kind: KindWebSocket, Address: "ws://localhost/leds"}, true},
		{"unknown", Config{}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := test.cfg.Validate(); (err == nil) != test.ok {
				t.Fatalf("Validate() = %v", err)
			}
		})
	}

	if _, err := Open(context.Background(), 1, Config{}, testLogger); err == nil {
		t.Fatal("Open accepted an invalid config")
	}
}

func TestConnSendsFrames(t *testing.T) {
	ft := &fakeTransport{}
	c := start(context.Background(), 1, KindStream, ft, 16, testLogger)
	defer c.Close()

	for i := range 3 {
		if err := c.Enqueue([]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for ft.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d frames sent", ft.count())
		}
		time.Sleep(time.Millisecond)
	}

	if !c.Alive() {
		t.Fatal("connection died")
	}
}

func TestConnDiesOnWriteError(t *testing.T) {
	ft := &fakeTransport{failAt: 1}
	c := start(context.Background(), 1, KindStream, ft, 16, testLogger)
	defer c.Close()

	waitClosed(t, c)
	if c.Alive() {
		t.Fatal("connection still alive")
	}

	c.Close()
	if !ft.closed {
		t.Fatal("transport was not closed")
	}
}

func TestConnDiesOnOpenError(t *testing.T) {
	ft := &fakeTransport{openErr: errors.New("no route to host")}
	c := start(context.Background(), 1, KindStream, ft, 16, testLogger)
	defer c.Close()

	waitClosed(t, c)
}

func TestConnClose(t *testing.T) {
	ft := &fakeTransport{}
	c := start(context.Background(), 1, KindStream, ft, 16, testLogger)

	c.Close()
	c.Close()

	if err := c.Enqueue([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue after Close = %v", err)
	}
}

func TestStream(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 6)
		if _, err := io.ReadFull(conn, buf); err == nil {
			received <- buf
		}
		conn.Close()
	}()

	c, err := Open(context.Background(), 1, Config{
		Kind:    KindStream,
		Address: l.Addr().String(),
	}, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Enqueue([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}

	select {
	case b := <-received:
		if !bytes.Equal(b, []byte{1, 2, 3, 4, 5, 6}) {
			t.Fatalf("received %v", b)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("frame never arrived")
	}

	// The peer hung up; writes eventually fail.
	waitClosed(t, c)
}

func TestStreamRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	c, err := Open(context.Background(), 1, Config{Kind: KindStream, Address: addr}, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	waitClosed(t, c)
}

func TestWebSocket(t *testing.T) {
	received := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		typ, msg, err := conn.ReadMessage()
		if err == nil && typ == websocket.BinaryMessage {
			received <- msg
		}
	}))
	defer srv.Close()

	c, err := Open(context.Background(), 1, Config{
		Kind:    KindWebSocket,
		Address: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Enqueue([]byte{9, 8, 7}); err != nil {
		t.Fatal(err)
	}

	select {
	case b := <-received:
		if !bytes.Equal(b, []byte{9, 8, 7}) {
			t.Fatalf("received %v", b)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("frame never arrived")
	}

	waitClosed(t, c)
}

// fakePort is a serial.Port backed by pipes. Methods not overridden panic.
type fakePort struct {
	serial.Port
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *fakePort) Read(b []byte) (int, error)         { return p.r.Read(b) }
func (p *fakePort) Write(b []byte) (int, error)        { return p.w.Write(b) }
func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Close() error {
	p.r.Close()
	p.w.Close()
	return nil
}

func TestSerial(t *testing.T) {
	// host -> controller
	hostR, hostW := io.Pipe()
	// controller -> host
	ctrlR, ctrlW := io.Pipe()

	port := &fakePort{r: ctrlR, w: hostW}

	st := newSerialTransport("/dev/fake", 115200, testLogger)
	st.openPort = func(device string, mode *serial.Mode) (serial.Port, error) {
		if mode.BaudRate != 115200 {
			t.Errorf("baud rate %d", mode.BaudRate)
		}
		return port, nil
	}

	c := start(context.Background(), 1, KindSerial, st, 16, testLogger)
	defer c.Close()

	if err := c.Enqueue([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}

	p, err := ledserial.ReadIncomingPacket(hostR, ledserial.ReadContext{})
	if err != nil {
		t.Fatal(err)
	}
	if p != (ledserial.InitializePacket{NumLEDs: 2}) {
		t.Fatalf("first packet %#v", p)
	}

	p, err = ledserial.ReadIncomingPacket(hostR, ledserial.ReadContext{NumLEDs: 2})
	if err != nil {
		t.Fatal(err)
	}
	set, ok := p.(ledserial.SetPacket)
	if !ok || !bytes.Equal(set.Pix, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("second packet %#v", p)
	}

	// A controller panic takes the connection down.
	go ledserial.WriteOutgoingPacket(ctrlW, ledserial.PanicPacket{Message: "out of memory"})
	waitClosed(t, c)
}

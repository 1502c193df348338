package conn

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

type websocketTransport struct {
	url     string
	timeout time.Duration
	conn    *websocket.Conn
}

func (t *websocketTransport) open(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to dial %s", t.url)
	}
	t.conn = conn

	// Control frames are only processed while reading. The peer is not
	// expected to send anything else; a read error means it is gone.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	return nil
}

func (t *websocketTransport) write(frame []byte) error {
	if t.timeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *websocketTransport) close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.conn.Close()
}

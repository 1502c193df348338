package conn

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

const dialTimeout = 5 * time.Second

type streamTransport struct {
	address string
	timeout time.Duration
	conn    net.Conn
}

func (t *streamTransport) open(ctx context.Context) error {
	d := net.Dialer{Timeout: dialTimeout}

	conn, err := d.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return errors.Wrapf(err, "failed to dial %s", t.address)
	}

	t.conn = conn
	return nil
}

func (t *streamTransport) write(frame []byte) error {
	if t.timeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	}
	_, err := t.conn.Write(frame)
	return err
}

func (t *streamTransport) close() error {
	return t.conn.Close()
}

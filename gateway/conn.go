package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ethgate-dev/ethgate/jsonrpc"
	"github.com/ethgate-dev/ethgate/origins"
)

// errConnClosed reports a write attempted after the connection's sink
// shut. Responses and pushes racing a close are dropped at this point.
var errConnClosed = errors.New("connection closed")

// conn is one live client channel. The transport hands it a write
// function; send serializes writes and refuses them once the
// connection has closed, so the transport never sees a frame for a
// dead peer.
type conn struct {
	id        string
	transport string
	meta      origins.ConnMeta

	mu     sync.Mutex
	closed bool
	write  func(data []byte) error
}

func newConn(transport string, meta origins.ConnMeta, write func(data []byte) error) *conn {
	return &conn{
		id:        uuid.NewString(),
		transport: transport,
		meta:      meta,
		write:     write,
	}
}

// send writes one raw frame iff the connection is still open.
func (c *conn) send(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}
	return c.write(raw)
}

// sendResponse marshals and writes one response frame.
func (c *conn) sendResponse(resp *jsonrpc.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return c.send(data)
}

// close marks the connection dead. Idempotent; in-flight sends racing
// the close either complete or observe errConnClosed.
func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Package network carries the session transport protocol: a JSON
// envelope per message over a websocket connection.
package network

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Connection is a live transport handle. Implementations must allow
// concurrent Send calls.
type Connection interface {
	Send(env *Envelope) error
	ReadEnvelope() (*Envelope, error)
	Close() error
	RemoteAddr() net.Addr
}

// WSConnection wraps a websocket connection. Writes are serialized by
// a mutex; gorilla allows only one concurrent writer.
type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn}
}

func (c *WSConnection) Send(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConnection) ReadEnvelope() (*Envelope, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *WSConnection) Close() error {
	return c.conn.Close()
}

// ClosePolicy sends a policy-violation close frame (1008) with a
// machine-readable reason, then closes. Used for rejected handshakes.
func (c *WSConnection) ClosePolicy(reason string) error {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)

	c.sendMutex.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.sendMutex.Unlock()

	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 16 * 1024           // Maximum frame size allowed from peer.
)

// Client is a middleman between the websocket connection and the Router.
type Client struct {
	router *Router
	ws     *websocket.Conn
	conn   *Conn
	log    *log.Logger
}

func NewClient(router *Router, ws *websocket.Conn, conn *Conn, logger *log.Logger) *Client {
	return &Client{router: router, ws: ws, conn: conn, log: logger}
}

// Run starts the pumps and returns when the peer is gone.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

// readPump hands frames to the Router one at a time, in arrival order.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.router.Disconnect(c.conn)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read", "conn", c.conn.ID, "err", err)
			}
			return
		}
		// Failures were already reported to the peer.
		_ = c.router.Handle(ctx, c.conn, frame)
	}
}

// writePump drains the connection's outbound queue to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.conn.Outbound():
			if err := c.write(frame); err != nil {
				return
			}
			// Flush whatever queued up meanwhile before selecting again.
			n := len(c.conn.Outbound())
			for i := 0; i < n; i++ {
				if err := c.write(<-c.conn.Outbound()); err != nil {
					return
				}
			}

		case <-c.conn.Done():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(frame []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

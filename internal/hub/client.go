package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/domain"
	"github.com/weiawesome/talkwire/pkg/log"
)

// Client is one websocket connection and its session binding.
type Client struct {
	ID   string
	IP   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	cfg config.ServerConfig

	sessionMu sync.RWMutex
	session   domain.Session

	errorCount atomic.Int32
}

// NewClient wraps an upgraded connection with the default anonymous session.
func NewClient(id, ip string, h *Hub, conn *websocket.Conn, cfg config.ServerConfig) *Client {
	return &Client{
		ID:      id,
		IP:      ip,
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		cfg:     cfg,
		session: domain.NewSession(id, ip),
	}
}

// Session returns the current session value.
func (c *Client) Session() domain.Session {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.session
}

// PersistSession stores an updated session value. Session mutation happens
// only through this call; reads never have side effects.
func (c *Client) PersistSession(s domain.Session) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.session = s
}

// CountError bumps the consecutive error counter and returns the total.
func (c *Client) CountError() int {
	return int(c.errorCount.Add(1))
}

// ResetErrors clears the consecutive error counter after a handled message.
func (c *Client) ResetErrors() {
	c.errorCount.Store(0)
}

// ReadPump reads client messages and hands them to handler. It owns the
// connection's read side; when it returns the client is unregistered.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.L().Debug().Err(err).Str(log.FieldConnID, c.ID).Msg("websocket read error")
			}
			break
		}
		handler(c, message)
	}
}

// WritePump writes outbound messages and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals and queues one message; a full send buffer drops the
// message rather than blocking the caller.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
	}
	return nil
}

package server

import (
	"encoding/json"
	"sync"
	"time"

	"p2p-coin-desk-go/internal/feed"
	"p2p-coin-desk-go/internal/models"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// streamClient pushes JSON snapshots over one websocket. Only the latest
// undelivered snapshot is kept since each one replaces the previous.
type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newStreamClient(conn *websocket.Conn) *streamClient {
	return &streamClient{
		conn: conn,
		send: make(chan []byte, 1),
		done: make(chan struct{}),
	}
}

func (c *streamClient) push(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("Failed to encode stream snapshot", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
		return
	default:
	}
	// drop the stale snapshot
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump discards inbound frames and returns once the peer goes away.
func (c *streamClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("Stream closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveStream upgrades the connection and forwards every snapshot the
// subscription delivers until either side closes.
func (s *Server) serveStream(c echo.Context, subscribe func(push func(any)) *feed.Subscription) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already answered the request
		zap.L().Warn("Websocket upgrade failed", zap.Error(err))
		return nil
	}

	client := newStreamClient(conn)
	sub := subscribe(client.push)
	defer sub.Cancel()

	go client.writePump()
	client.readPump()
	return nil
}

func (s *Server) streamMessages(c echo.Context) error {
	who := caller(c)
	req, adminView, err := s.deps.Desk.Access(c.Request().Context(), who, c.Param("id"))
	if err != nil {
		return err
	}

	viewer := models.ChatViewer{UserId: who.UserId, AdminView: adminView}
	return s.serveStream(c, func(push func(any)) *feed.Subscription {
		return s.deps.Chat.Subscribe(req.Id, func(msgs []models.ChatMessage) {
			push(messageViews(msgs, viewer))
		})
	})
}

func (s *Server) streamNotifications(c echo.Context) error {
	userId := caller(c).UserId
	return s.serveStream(c, func(push func(any)) *feed.Subscription {
		return s.deps.Notify.Subscribe(userId, func(f models.NotificationFeed) {
			push(f)
		})
	})
}

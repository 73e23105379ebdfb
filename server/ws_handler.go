package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/BigOnwer/Gusen-App/server/response"
	"github.com/BigOnwer/Gusen-App/ws"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 25 * time.Second
	wsSendBuffer = 64
)

// wsConn adapts one websocket connection to the hub's Sender. Events queue
// on a buffered channel; a full queue counts as a failed send so the hub
// drops the connection instead of blocking a broadcast.
type wsConn struct {
	conn *websocket.Conn
	send chan ws.Event
	done chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan ws.Event, wsSendBuffer),
		done: make(chan struct{}),
	}
}

func (w *wsConn) Send(ev ws.Event) error {
	select {
	case w.send <- ev:
		return nil
	default:
		return errors.New("send queue full")
	}
}

func (w *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case ev := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := w.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWS() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		wc := newWSConn(conn)
		connID := s.Hub.Register(userID, wc)
		go wc.writeLoop()

		// The read loop only watches for the peer going away; clients do not
		// send over this channel.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		s.Hub.Unregister(userID, connID)
		close(wc.done)
		_ = conn.Close()
		_ = s.AuthRepository.SetUserOnline(userID, false)
	}
}

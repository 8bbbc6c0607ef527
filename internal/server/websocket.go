package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	scribeerrors "github.com/conneroisu/scribe/internal/errors"
)

// Time allowed to write a message to the peer.
const writeWait = 10 * time.Second

// handleWebSocket bridges the event bus onto a WebSocket. Every delivery is
// sent as the text message "reload"; messages from the client are ignored.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sub := s.bus.Subscribe()
	defer sub.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Debug(r.Context(), "WebSocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.CloseNow()

	// CloseRead discards client frames and cancels ctx when the peer closes.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-sub.Ready():
			for {
				d, ok := sub.Next()
				if !ok {
					break
				}
				if d.Lagged {
					s.logger.Warn(ctx, scribeerrors.NewLaggedError(d.Missed), "WebSocket client lagged, forcing reload")
				}
				if err := s.writeMessage(ctx, conn, d.Event.Kind()); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) writeMessage(ctx context.Context, conn *websocket.Conn, msg string) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, []byte(msg))
}

// originPatterns allows pages served by this host, under any of the names it
// is commonly reached by.
func (s *Server) originPatterns() []string {
	port := strconv.Itoa(s.config.Server.Port)
	return []string{
		s.config.Server.Host + ":" + port,
		"localhost:" + port,
		"127.0.0.1:" + port,
	}
}

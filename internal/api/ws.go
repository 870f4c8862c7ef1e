package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/khojney/quiz/internal/errors"
	"github.com/khojney/quiz/internal/play"
)

// wsHandler streams live run updates to one websocket client: ticks,
// answer locks, question changes and the final result.
type wsHandler struct {
	play     *play.Service
	upgrader websocket.Upgrader
}

func newWSHandler(p *play.Service) *wsHandler {
	return &wsHandler{
		play: p,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin and auth are enforced by the fronting gateway; this
			// service never faces browsers directly. The stream is also
			// outbound-only, so a forged origin cannot mutate a run.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *wsHandler) serve(c *gin.Context) {
	attemptID := c.Param("id")

	updates, cancel, err := h.play.Subscribe(attemptID)
	if err != nil {
		e := errors.Convert(err)
		c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "api: ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The reader goroutine exists only to observe the client closing the
	// connection; this stream carries no inbound messages.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(u); err != nil {
				slog.ErrorContext(c.Request.Context(), "api: ws write failed",
					"attempt_id", attemptID,
					"error", err,
				)
				return
			}
		case <-closed:
			return
		}
	}
}

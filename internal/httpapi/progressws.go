// internal/httpapi/progressws.go
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer in front of the API.
	CheckOrigin: func(*http.Request) bool { return true },
}

const writeTimeout = 10 * time.Second

// progressSocket streams progress events for one upload id. The bearer
// token arrives as a query parameter because browsers cannot set
// headers on websocket dials; it is validated before any event is
// delivered and an invalid token closes with a policy-violation code.
func (a *API) progressSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if _, err := a.tokens.Parse(c.Query("token")); err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		return
	}

	uploadID := c.Param("uploadID")
	sub := a.hub.Subscribe(uploadID)
	defer a.hub.Unsubscribe(uploadID, sub)

	// Drain reads so client close frames are processed; a disconnect
	// only removes this subscriber, never the in-flight encode.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, open := <-sub.Events():
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				a.logger.Info("progress subscriber dropped", "upload_id", uploadID, "err", err)
				return
			}
			if evt.Stage == schema.StageCompleted || evt.Stage == schema.StageFailed {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
				return
			}
		case <-done:
			return
		}
	}
}

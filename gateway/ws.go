package gateway

import (
	"net/http"
	"time"

	"pairchat/domain/event"
	"pairchat/sink"

	"github.com/gin-gonic/gin"
)

const writeWait = 10 * time.Second

// wsFrame is the envelope pushed over the session socket.
type wsFrame struct {
	Type      string          `json:"type"`
	Message   *messagePayload `json:"message,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	ReaderID  string          `json:"readerId,omitempty"`
	At        time.Time       `json:"at,omitempty"`
}

// connectSession upgrades to a websocket, registers the session sink
// and streams events until the client goes away. Registration runs the
// reconnect catch-up, so the backlog arrives before any live event.
func (s *Server) connectSession(c *gin.Context) {
	claims, err := s.tokens.Validate(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	userID := claims.UserID

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	defer conn.Close()

	sessionSink := sink.NewSessionSink(s.log, s.connectionBufferSize)
	if err = s.chat.Connect(c.Request.Context(), userID, sessionSink); err != nil {
		s.log.Warn("Session attach failed", "user_id", userID, "error", err)
		s.chat.Disconnect(userID, sessionSink)
		return
	}
	// Teardown by own sink: a reconnect registered after this session
	// must survive this handler's exit.
	defer s.chat.Disconnect(userID, sessionSink)

	// Read pump: the socket is push-only, reads just detect the close.
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
		case <-done:
			s.log.Debug("Client disconnected", "user_id", userID)
			return
		case <-c.Request.Context().Done():
			return
		case evt := <-sessionSink.Events:
			frame, ok := toFrame(evt)
			if !ok {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				s.log.Warn("Failed to push event to session", "user_id", userID, "error", err)
				return
			}
		}
	}
}

func toFrame(e event.DomainEvent) (wsFrame, bool) {
	switch evt := e.(type) {
	case event.SanitizedMessage:
		payload := toMessagePayload(evt.Message)
		return wsFrame{Type: "message", Message: &payload}, true
	case event.MessageRead:
		return wsFrame{
			Type:      "read",
			MessageID: evt.MessageID.String(),
			ReaderID:  evt.ReaderID,
			At:        evt.At,
		}, true
	default:
		return wsFrame{}, false
	}
}

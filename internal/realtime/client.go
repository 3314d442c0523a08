package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/apperr"
	"github.com/inquiro/backend/pkg/response"
)

const (
	// EventSubscribed is sent to a client once it has joined its survey room.
	EventSubscribed = "subscribed"
	eventPing       = "ping"
	eventPong       = "pong"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // browsers cannot set headers on ws; auth is the token query param
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Authenticator turns a bearer token into an identity.
type Authenticator func(token string) (*models.Identity, error)

// Authorizer allows identity to watch a survey, e.g. the survey ownership check.
type Authorizer func(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) error

// Client represents a single WebSocket connection watching a survey.
type Client struct {
	ID       string
	SurveyID uuid.UUID
	UserID   uuid.UUID
	hub      *Hub
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// ServeWs handles GET /ws?survey_id=&token=: authenticates, checks the caller may watch the survey,
// upgrades and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, authenticate Authenticator, authorize Authorizer) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		surveyIDStr := c.Query("survey_id")
		token := c.Query("token")
		if surveyIDStr == "" || token == "" {
			response.BadRequest(c, "survey_id and token required")
			return
		}
		surveyID, err := uuid.Parse(surveyIDStr)
		if err != nil {
			response.BadRequest(c, "invalid survey_id")
			return
		}
		identity, err := authenticate(token)
		if err != nil || identity == nil {
			response.Error(c, apperr.ErrUnauthorized)
			return
		}
		if err := authorize(c.Request.Context(), surveyID, identity); err != nil {
			response.Error(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			SurveyID: surveyID,
			UserID:   identity.UserID,
			hub:      hub,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		hub.Register(client)
		client.reply(EventSubscribed, map[string]string{"survey_id": surveyID.String()})
		go client.writePump()
		client.readPump()
	}
}

// reply queues a message for this client only. Callers must run before Unregister.
func (c *Client) reply(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

// readPump keeps the connection alive. Watchers only receive events; the only inbound message
// with meaning is an application-level ping.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		if msg.Event == eventPing {
			c.reply(eventPong, map[string]int64{"at": time.Now().Unix()})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

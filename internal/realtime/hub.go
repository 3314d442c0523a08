package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventResponseSubmitted is sent to a survey's room after every accepted submission.
	EventResponseSubmitted = "response_submitted"
)

// ResponseSubmitted is the payload of EventResponseSubmitted.
type ResponseSubmitted struct {
	SurveyID      uuid.UUID  `json:"survey_id"`
	ResponseID    uuid.UUID  `json:"response_id"`
	IsAnonymous   bool       `json:"is_anonymous"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ResponseCount int        `json:"response_count"`
}

// Hub maintains survey_id -> set of owner connections and broadcasts messages.
// With Redis configured, events go through pub/sub so every API instance delivers them once.
type Hub struct {
	// surveyID -> map[clientID]*Client
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per survey
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishSurveyEvent(surveyID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to survey channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeSurvey(surveyID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a survey room. Starts the Redis subscription for this survey on first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.SurveyID] == nil {
		h.rooms[c.SurveyID] = make(map[string]*Client)
		if h.redisSub != nil {
			surveyID := c.SurveyID
			cancel, err := h.redisSub.SubscribeSurvey(surveyID, func(event string, payload []byte) {
				h.Broadcast(surveyID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("redis subscribe failed", zap.String("survey_id", surveyID.String()), zap.Error(err))
			} else {
				h.subs[surveyID] = cancel
			}
		}
	}
	h.rooms[c.SurveyID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client subscribed to survey", zap.String("client_id", c.ID), zap.String("survey_id", c.SurveyID.String()))
}

// Unregister removes a client from its room. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.SurveyID]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.rooms, c.SurveyID)
			if cancel, ok := h.subs[c.SurveyID]; ok {
				cancel()
				delete(h.subs, c.SurveyID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left survey", zap.String("client_id", c.ID), zap.String("survey_id", c.SurveyID.String()))
}

// Broadcast sends a message to all clients in a survey room on this instance.
func (h *Hub) Broadcast(surveyID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("marshal ws payload", zap.String("event", event), zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[surveyID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("ws send buffer full, dropping", zap.String("client_id", c.ID), zap.String("event", event))
		}
	}
}

// Publish delivers an event to every instance. With Redis the subscriber callback performs the local
// broadcast, so this instance's clients receive the event exactly once. Rooms whose subscription failed
// are served directly.
func (h *Hub) Publish(surveyID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal ws payload", zap.String("event", event), zap.Error(err))
		return
	}
	if h.redis == nil {
		h.Broadcast(surveyID, event, json.RawMessage(data))
		return
	}
	h.mu.RLock()
	_, subscribed := h.subs[surveyID]
	h.mu.RUnlock()
	if err := h.redis.PublishSurveyEvent(surveyID, event, data); err != nil {
		h.logger.Warn("redis publish failed, broadcasting locally", zap.String("survey_id", surveyID.String()), zap.Error(err))
		h.Broadcast(surveyID, event, json.RawMessage(data))
		return
	}
	if !subscribed {
		h.Broadcast(surveyID, event, json.RawMessage(data))
	}
}

// PublishResponseSubmitted announces an accepted submission to the survey's watchers.
func (h *Hub) PublishResponseSubmitted(ev ResponseSubmitted) {
	h.Publish(ev.SurveyID, EventResponseSubmitted, ev)
}

// Watchers returns the number of connected clients for a survey on this instance.
func (h *Hub) Watchers(surveyID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[surveyID])
}

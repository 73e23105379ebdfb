package ws

import (
	"sync"

	"github.com/BigOnwer/Gusen-App/metrics"
	"go.uber.org/zap"
)

// Event is the unit of push delivery. The same payloads the poll endpoints
// return travel here, so a client may pull or subscribe without the server
// caring which.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	EventMessageNew       = "message.new"
	EventConversationRead = "conversation.read"
	EventBadge            = "badge"
)

// Sender is one delivery channel to a connected client. The websocket
// handler adapts a connection to it; tests use fakes.
type Sender interface {
	Send(Event) error
}

// Hub fans events out to every connection a user has open. A user may be
// connected from several tabs or devices at once.
type Hub struct {
	mu     sync.RWMutex
	nextID int64
	conns  map[uint]map[int64]Sender
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		conns: make(map[uint]map[int64]Sender),
		log:   log,
	}
}

// Register adds a connection for a user and returns a handle for
// Unregister.
func (h *Hub) Register(userID uint, s Sender) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[int64]Sender)
	}
	h.conns[userID][id] = s
	metrics.WSConnections.Inc()
	return id
}

func (h *Hub) Unregister(userID uint, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.conns[userID]; ok {
		if _, ok := set[id]; ok {
			delete(set, id)
			metrics.WSConnections.Dec()
		}
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
}

// BroadcastToUsers delivers an event to every connection of the given
// users. A failing connection is dropped; delivery is best effort, the poll
// path remains the source of truth.
func (h *Hub) BroadcastToUsers(userIDs []uint, ev Event) {
	type failed struct {
		userID uint
		connID int64
	}
	var dead []failed
	delivered := 0

	h.mu.RLock()
	for _, uid := range userIDs {
		for id, s := range h.conns[uid] {
			if err := s.Send(ev); err != nil {
				h.log.Warn("ws send failed, dropping connection",
					zap.Uint("user_id", uid), zap.Error(err))
				dead = append(dead, failed{userID: uid, connID: id})
				continue
			}
			delivered++
		}
	}
	h.mu.RUnlock()

	for _, d := range dead {
		h.Unregister(d.userID, d.connID)
	}
	metrics.WSEvents.WithLabelValues(ev.Type).Add(float64(delivered))
}

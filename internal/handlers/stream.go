package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AdwelloTech/MathMentor-sub000/internal/identity"
	"github.com/AdwelloTech/MathMentor-sub000/internal/logging"
	"github.com/AdwelloTech/MathMentor-sub000/internal/notify"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The engine sits behind the application gateway; origin policy is
	// enforced there.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamHandler bridges the notification fabric onto websocket clients.
type StreamHandler struct {
	Fabric   Fabric
	Identity identity.Resolver
}

// Pool handles GET /api/v1/ws/pool: the shared pending-pool channel every
// available tutor watches. One logical channel is reused across all
// requests to keep claim latency low.
func (h StreamHandler) Pool(w http.ResponseWriter, r *http.Request) {
	if _, ok := authenticate(h.Identity, w, r, identity.RoleTutor); !ok {
		return
	}

	sub, err := h.Fabric.SubscribePool()
	if err != nil {
		respondJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"error": "notification fabric unavailable"})
		return
	}

	h.serve(w, r, sub)
}

// Request handles GET /api/v1/ws/requests/{id}: acceptance notifications for
// the student who owns the request.
func (h StreamHandler) Request(w http.ResponseWriter, r *http.Request) {
	if _, ok := authenticate(h.Identity, w, r, ""); !ok {
		return
	}

	sub, err := h.Fabric.SubscribeRequest(r.PathValue("id"))
	if err != nil {
		respondJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"error": "notification fabric unavailable"})
		return
	}

	h.serve(w, r, sub)
}

func (h StreamHandler) serve(w http.ResponseWriter, r *http.Request, sub *notify.Subscription) {
	logger := logging.FromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Cancel()
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	defer func() {
		sub.Cancel()
		conn.Close()
	}()

	// Reader only services control frames; a read error means the peer
	// went away and the writer should stop.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-sub.C:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				logger.Warn("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

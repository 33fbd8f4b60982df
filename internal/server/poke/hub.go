// Package poke рассылает клиентам пользователя сигнал "пора сделать pull".
package poke

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/boardsync/pkg/api"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// subscriber одно websocket соединение.
// Буфер на один poke: несколько poke подряд схлопываются в один.
type subscriber struct {
	pokes chan struct{}
}

// Hub хранит подписчиков по пользователям
type Hub struct {
	logger *slog.Logger
	rooms  map[string]map[*subscriber]struct{}
	mu     sync.Mutex
}

// NewHub creates a new poke hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[string]map[*subscriber]struct{}),
	}
}

// Notify pokes every connection of userID without blocking.
func (h *Hub) Notify(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.rooms[userID] {
		select {
		case sub.pokes <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of connections of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[userID])
}

func (h *Hub) subscribe(userID string) *subscriber {
	sub := &subscriber{pokes: make(chan struct{}, 1)}

	h.mu.Lock()
	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[*subscriber]struct{})
		h.rooms[userID] = room
	}
	room[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

func (h *Hub) unsubscribe(userID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[userID]
	delete(room, sub)
	if len(room) == 0 {
		delete(h.rooms, userID)
	}
}

// Serve pumps pokes to conn until the peer disconnects or ctx is done.
// The connection is closed on return.
func (h *Hub) Serve(ctx context.Context, userID string, conn *websocket.Conn) {
	sub := h.subscribe(userID)
	defer h.unsubscribe(userID, sub)
	defer conn.Close()

	h.logger.Debug("Poke subscriber connected", "user_id", userID, "remote_addr", conn.RemoteAddr().String())

	// Читаем только для обработки pong и закрытия соединения
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	message, err := json.Marshal(api.PokeMessage{Type: api.PokeTypePoke})
	if err != nil {
		h.logger.Error("Failed to marshal poke message", "error", err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-closed:
			h.logger.Debug("Poke subscriber disconnected", "user_id", userID)
			return
		case <-sub.pokes:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("Failed to write poke", "user_id", userID, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

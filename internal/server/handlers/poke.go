package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// PokeServer раздает poke по websocket, реализуется poke.Hub
type PokeServer interface {
	Serve(ctx context.Context, userID string, conn *websocket.Conn)
}

// ConnGauge учет открытых poke соединений
type ConnGauge interface {
	PokeConnected(delta int)
}

// PokeHandler апгрейдит соединение до websocket и подписывает его на poke
type PokeHandler struct {
	logger   *slog.Logger
	hub      PokeServer
	gauge    ConnGauge
	upgrader websocket.Upgrader
}

// NewPokeHandler creates a new poke handler
func NewPokeHandler(logger *slog.Logger, hub PokeServer, gauge ConnGauge) *PokeHandler {
	return &PokeHandler{
		logger: logger,
		hub:    hub,
		gauge:  gauge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Poke обрабатывает GET /api/v1/poke
func (h *PokeHandler) Poke(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		sendError(h.logger, w, "unauthorized", "", http.StatusUnauthorized)
		return
	}

	// Upgrade сам пишет ответ с ошибкой
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}

	h.gauge.PokeConnected(1)
	defer h.gauge.PokeConnected(-1)

	// контекст запроса отменяется при остановке сервера (BaseContext)
	h.hub.Serve(r.Context(), userID, conn)
}

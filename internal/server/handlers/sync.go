package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/boardsync/internal/server/rowsync"
	"github.com/iudanet/boardsync/internal/server/storage"
	"github.com/iudanet/boardsync/pkg/api"
)

// maxBodyBytes ограничение размера тела pull/push запроса
const maxBodyBytes = 4 << 20

// SyncService протокол синхронизации, реализуется rowsync.Service
type SyncService interface {
	Pull(ctx context.Context, userID string, req *api.PullRequest) (*api.PullResponse, error)
	Push(ctx context.Context, userID string, req *api.PushRequest) (*rowsync.PushResult, error)
}

// SyncHandler handles pull and push requests
type SyncHandler struct {
	logger  *slog.Logger
	service SyncService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, service SyncService) *SyncHandler {
	return &SyncHandler{
		logger:  logger,
		service: service,
	}
}

// Pull обрабатывает POST /api/v1/pull
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "user ID not found in context")
		sendError(h.logger, w, "unauthorized", "", http.StatusUnauthorized)
		return
	}

	var req api.PullRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode pull request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", rowsync.KindValidation.String(), http.StatusBadRequest)
		return
	}

	resp, err := h.service.Pull(ctx, userID, &req)
	if err != nil {
		h.sendSyncError(ctx, w, "pull", err)
		return
	}

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Push обрабатывает POST /api/v1/push
// Ошибки обработчиков мутаций не видны клиенту: мутация засчитана, ответ 200.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "user ID not found in context")
		sendError(h.logger, w, "unauthorized", "", http.StatusUnauthorized)
		return
	}

	var req api.PushRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode push request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", rowsync.KindValidation.String(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Push(ctx, userID, &req)
	if err != nil {
		h.sendSyncError(ctx, w, "push", err)
		return
	}

	for _, f := range result.Failures {
		h.logger.InfoContext(ctx, "mutation recorded in error mode",
			slog.String("user_id", userID),
			slog.String("client_id", f.ClientID),
			slog.Int64("mutation_id", f.ID),
			slog.Any("error", f.Err))
	}

	sendJSON(h.logger, w, api.PushResponse{}, http.StatusOK)
}

// sendSyncError переводит класс ошибки протокола в HTTP статус
func (h *SyncHandler) sendSyncError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	kind := rowsync.KindOf(err)

	var status int
	switch kind {
	case rowsync.KindValidation:
		status = http.StatusBadRequest
	case rowsync.KindAuthorization:
		status = http.StatusForbidden
	case rowsync.KindSequence:
		status = http.StatusConflict
	default:
		if storage.IsTransient(err) {
			h.logger.WarnContext(ctx, op+" failed: storage busy", slog.Any("error", err))
			sendError(h.logger, w, "storage busy, retry later", "", http.StatusServiceUnavailable)
			return
		}
		if errors.Is(err, context.Canceled) {
			h.logger.DebugContext(ctx, op+" canceled by client")
			return
		}
		h.logger.ErrorContext(ctx, op+" failed", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", "", http.StatusInternalServerError)
		return
	}

	h.logger.WarnContext(ctx, op+" rejected",
		slog.String("kind", kind.String()),
		slog.Any("error", err))
	message := err.Error()
	var syncErr *rowsync.Error
	if errors.As(err, &syncErr) && syncErr.Err != nil {
		message = syncErr.Err.Error()
	}
	sendError(h.logger, w, message, kind.String(), status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

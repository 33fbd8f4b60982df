package middleware

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// accessRecord собирает поля строки access лога, пока запрос проходит цепочку
type accessRecord struct {
	userID string
	status int
	bytes  int64
}

type accessRecordKey struct{}

// annotateUser дописывает пользователя в access лог текущего запроса
func annotateUser(ctx context.Context, userID string) {
	if rec, ok := ctx.Value(accessRecordKey{}).(*accessRecord); ok {
		rec.userID = userID
	}
}

// statusRecorder запоминает статус и размер ответа
type statusRecorder struct {
	http.ResponseWriter
	rec *accessRecord
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.rec.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.rec.bytes += int64(n)
	return n, err
}

// Hijack нужен для websocket upgrade на /poke
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sr.rec.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap для http.ResponseController
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// LoggingMiddleware пишет строку access лога на каждый запрос.
// Query не логируется: в нем может быть access_token.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return LoggingWithSkip(logger, nil)
}

// LoggingWithSkip как LoggingMiddleware, но не логирует перечисленные пути (health, metrics)
func LoggingWithSkip(logger *slog.Logger, skipPaths []string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &accessRecord{status: http.StatusOK}
			ctx := context.WithValue(r.Context(), accessRecordKey{}, rec)

			next.ServeHTTP(&statusRecorder{ResponseWriter: w, rec: rec}, r.WithContext(ctx))

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes_written", rec.bytes,
			}
			if rec.userID != "" {
				attrs = append(attrs, "user_id", rec.userID)
			}
			logger.Log(r.Context(), levelFor(rec.status), "HTTP request", attrs...)
		})
	}
}

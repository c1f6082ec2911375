package receiver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kursadbilgin/notedrop/internal/idempotency"
	"github.com/kursadbilgin/notedrop/internal/observability"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// NewRouter exposes the receiver over HTTP.
func NewRouter(rcv *Receiver, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(instrument(metrics))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Mount("/metrics", metrics.Handler())
	r.Post("/sink", handleSink(rcv, logger))
	return r
}

func handleSink(rcv *Receiver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read body"})
			return
		}
		if len(body) > 0 && !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}

		result, err := rcv.Receive(r.Context(), Delivery{
			Key:     r.Header.Get(idempotency.HeaderKey),
			NoteID:  r.Header.Get(idempotency.HeaderNoteID),
			Payload: body,
		})
		switch {
		case errors.Is(err, ErrMissingKey):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		case errors.Is(err, ErrForcedFailure):
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "forced": true})
		case err != nil:
			logger.Error("sink request failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false})
		case result.Duplicate:
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "duplicate": true})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		}
	}
}

func instrument(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}
			if path == "/metrics" || path == "/metrics/*" {
				return
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.RecordHTTPRequest(r.Method, path, status, time.Since(start))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

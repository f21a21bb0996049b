package enricher

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler exposes operational endpoints next to /metrics using go-chi.
type Handler struct {
	svc   *Service
	cache *Cache
	log   *slog.Logger
}

// NewHandler returns a Handler reporting on svc and cache.
func NewHandler(svc *Service, cache *Cache, log *slog.Logger) *Handler {
	return &Handler{svc: svc, cache: cache, log: log}
}

type statusBody struct {
	CycleStatus
	CacheInfo
}

type resolveBody struct {
	StreamID    string `json:"stream_id"`
	ChannelName string `json:"channel_name"`
	Resolved    bool   `json:"resolved"`
}

// Healthz handles GET /healthz. The process stays healthy through upstream
// failures, so this only reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, statusBody{
		CycleStatus: h.svc.LastCycle(),
		CacheInfo:   h.cache.Info(),
	})
}

// Resolve handles GET /resolve/{stream_id}.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := StreamID(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "stream_id"))))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	name, ok := h.cache.Lookup(id)
	if !ok {
		name = UnknownLabel(id)
	}
	h.writeJSON(w, http.StatusOK, resolveBody{
		StreamID:    string(id),
		ChannelName: name,
		Resolved:    ok,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", slog.String("error", err.Error()))
	}
}

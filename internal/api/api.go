// Package api serves the session HTTP API of ns-server.
package api

import (
	"NetSeismic/internal/model"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// SessionStore is the view of live and recent sessions the API serves.
type SessionStore interface {
	List() []model.Summary
	Get(id string) (*model.Report, bool)
	// Subscribe streams the samples of a live session. The channel is closed
	// when the session completes. ok is false for unknown or finished sessions.
	Subscribe(id string) (samples <-chan model.Sample, cancel func(), ok bool)
}

// Handler holds the dependencies of the API handlers.
type Handler struct {
	store    SessionStore
	metrics  http.Handler
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewRouter builds the API routes. metrics may be nil.
func NewRouter(store SessionStore, metrics http.Handler, logger *slog.Logger) *mux.Router {
	h := &Handler{
		store:   store,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthHandler).Methods("GET")
	r.HandleFunc("/api/v1/sessions", h.listSessionsHandler).Methods("GET")
	r.HandleFunc("/api/v1/sessions/{id}", h.getSessionHandler).Methods("GET")
	r.HandleFunc("/api/v1/sessions/{id}/live", h.liveSessionHandler).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}
	return r
}

func (h *Handler) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// listSessionsHandler returns summaries of live and recent sessions, newest first.
func (h *Handler) listSessionsHandler(w http.ResponseWriter, _ *http.Request) {
	sums := h.store.List()
	sort.Slice(sums, func(i, j int) bool {
		return sums[i].StartTime.After(sums[j].StartTime)
	})
	if sums == nil {
		sums = []model.Summary{}
	}
	h.writeJSON(w, http.StatusOK, sums)
}

func (h *Handler) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report, ok := h.store.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// liveSessionHandler upgrades to a websocket and pushes every sample of the
// session as a JSON text message until it completes.
func (h *Handler) liveSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	samples, cancel, ok := h.store.Subscribe(id)
	if !ok {
		http.Error(w, "session not live", http.StatusNotFound)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("session_id", id), slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// Reading is only needed to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case s, open := <-samples:
			if !open {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session completed"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(s); err != nil {
				h.logger.Debug("live feed write failed", slog.String("session_id", id), slog.String("error", err.Error()))
				return
			}
		case <-gone:
			return
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to marshal response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

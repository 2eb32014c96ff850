package main

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/logging"
	"NetSeismic/internal/model"
	"NetSeismic/internal/query"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
)

func main() {
	configPath := flag.String("config", "configs/seismic.yaml", "Path to the YAML configuration file")
	listenAddr := flag.String("listen", ":8081", "Address of the history API")
	logFlags := logging.RegisterFlags("", "", "")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.InitLogger("ns-api",
		logFlags.WithDefaults(cfg.Logging.Level, cfg.Logging.LogDir, cfg.Logging.LogName))

	// Find the first enabled ClickHouse writer config
	var chCfg *config.ClickHouseConfig
	for _, writerDef := range cfg.Writers {
		if writerDef.Enabled && writerDef.Type == "clickhouse" {
			chCfg = &writerDef.ClickHouse
			break
		}
	}
	if chCfg == nil {
		logger.Error("no enabled ClickHouse writer found in config, history API cannot start")
		os.Exit(1)
	}

	querier, err := query.NewClickHouseQuerier(*chCfg)
	if err != nil {
		logger.Error("failed to create querier", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              *listenAddr,
		Handler:           newRouter(&APIHandler{querier: querier, logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("history API starting", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("could not listen", slog.String("address", server.Addr), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("history API shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("history API exited")
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	querier query.Querier
	logger  *slog.Logger
}

func newRouter(h *APIHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/history/sessions", h.listSessionsHandler).Methods("GET")
	r.HandleFunc("/api/v1/history/sessions/{id}", h.sessionReportHandler).Methods("GET")
	return r
}

// listSessionsHandler lists stored sessions. Query parameters: role, peer,
// since and until (RFC 3339), limit.
func (h *APIHandler) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sums, err := h.querier.ListSessions(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list sessions", slog.String("error", err.Error()))
		http.Error(w, fmt.Sprintf("failed to query sessions: %v", err), http.StatusInternalServerError)
		return
	}
	if sums == nil {
		sums = []model.Summary{}
	}
	writeJSON(w, sums)
}

// sessionReportHandler returns one stored session with its samples.
func (h *APIHandler) sessionReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.querier.SessionReport(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, query.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load session", slog.String("error", err.Error()))
		http.Error(w, fmt.Sprintf("failed to query session: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

func parseFilter(values url.Values) (query.Filter, error) {
	f := query.Filter{Role: values.Get("role"), Peer: values.Get("peer")}
	for name, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		if v := values.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, fmt.Errorf("invalid %s: %w", name, err)
			}
			*dst = t
		}
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}

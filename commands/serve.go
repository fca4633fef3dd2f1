package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lordpython/aisoulstudio/config"
	"github.com/lordpython/aisoulstudio/metrics"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/queue"
	"github.com/lordpython/aisoulstudio/storage"
)

// maxRequestBodySize limits POST body sizes.
const maxRequestBodySize = 1 << 20 // 1 MB

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the production HTTP API",
		Long: `Serve exposes the production pipeline over HTTP. Productions are
enqueued on Redis and picked up by worker processes; with Postgres
configured, finished sessions can be fetched back.

  POST /v1/productions        enqueue a production
  GET  /v1/productions        list archived sessions
  GET  /v1/productions/{id}   fetch one archived session
  GET  /v1/queues             queue depths
  GET  /healthz               liveness
  GET  /metrics               Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			printBanner(cmd.OutOrStdout())
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	if cfg.Redis.URL == "" {
		return fmt.Errorf("serve needs Redis for the production queue: set redis.url or REDIS_URL")
	}
	producer, err := queue.NewProducer(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer producer.Close()

	var archive *storage.Archive
	if cfg.Postgres.URL != "" {
		archive, err = storage.NewArchive(cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect session archive: %w", err)
		}
		defer archive.Close()
	}

	api := &apiServer{
		redisURL: cfg.Redis.URL,
		producer: producer,
		archive:  archive,
		logger:   logger,
	}

	mux := http.NewServeMux()
	api.register(mux)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", slog.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down HTTP API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// apiServer holds the handlers' shared dependencies. The archive is nil
// when Postgres is not configured.
type apiServer struct {
	redisURL string
	producer *queue.Producer
	archive  *storage.Archive
	logger   *slog.Logger
}

func (s *apiServer) register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/productions", s.handleProductions)
	mux.HandleFunc("/v1/productions/", s.handleProduction)
	mux.HandleFunc("/v1/queues", s.handleQueues)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
}

type enqueueRequest struct {
	Prompt     string `json:"prompt"`
	SessionID  string `json:"sessionId,omitempty"`
	Priority   string `json:"priority,omitempty"`
	Supervised bool   `json:"supervised,omitempty"`
}

type enqueueResponse struct {
	TaskID    string `json:"taskId"`
	SessionID string `json:"sessionId"`
	Queue     string `json:"queue"`
}

// handleProductions enqueues a production (POST) or lists archived
// sessions (GET).
func (s *apiServer) handleProductions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.enqueueProduction(w, r)
	case http.MethodGet:
		s.listProductions(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *apiServer) enqueueProduction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	// Assign the session ID here so the client can poll for it.
	if req.SessionID == "" {
		req.SessionID = production.NewProductionID()
	}

	taskID, err := s.producer.Enqueue(r.Context(), queue.ProduceTask{
		SessionID:  req.SessionID,
		Prompt:     req.Prompt,
		Priority:   req.Priority,
		Supervised: req.Supervised,
	})
	if err != nil {
		s.logger.Error("Failed to enqueue production", slog.String("error", err.Error()))
		http.Error(w, "Failed to enqueue production", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, enqueueResponse{
		TaskID:    taskID,
		SessionID: req.SessionID,
		Queue:     queue.QueueFor(req.Priority),
	})
}

func (s *apiServer) listProductions(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "Session archive not configured: set postgres.url or DATABASE_URL", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list sessions", slog.String("error", err.Error()))
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Productions []storage.Record `json:"productions"`
	}{Productions: records})
}

// handleProduction fetches one archived session by ID.
func (s *apiServer) handleProduction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.archive == nil {
		http.Error(w, "Session archive not configured: set postgres.url or DATABASE_URL", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/productions/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	state, err := s.archive.Load(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Failed to load session", slog.String("session_id", id), slog.String("error", err.Error()))
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (s *apiServer) handleQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	depths, err := queue.QueueDepths(s.redisURL)
	if err != nil {
		s.logger.Error("Failed to inspect queues", slog.String("error", err.Error()))
		http.Error(w, "Failed to inspect queues", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Queues map[string]int `json:"queues"`
	}{Queues: depths})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response is already partially written; nothing useful to do.
		_ = err
	}
}

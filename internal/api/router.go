package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"focus_sched/internal/config"
	"focus_sched/internal/domain"
	"focus_sched/internal/experiment"
)

type Store interface {
	ListDatasets(ctx context.Context, kind domain.DatasetKind) ([]domain.Dataset, error)
	ListRuns(ctx context.Context, scheduler string, limit int) ([]domain.RunRecord, error)
	GetRun(ctx context.Context, runID string) (domain.RunRecord, error)
	ListRunEvents(ctx context.Context, runID string, limit int) ([]domain.Event, error)
}

type handler struct {
	store  Store
	logger *log.Logger
}

// NewRouter exposes stored datasets and runs read-only.
func NewRouter(store Store, cfg config.Server, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	h := &handler{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(h.logging)
	r.Get("/healthz", h.health)
	r.Get("/datasets", h.listDatasets)
	r.Get("/summary", h.summary)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.listRuns)
		r.Get("/{id}", h.getRun)
		r.Get("/{id}/events", h.listRunEvents)
	})

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (h *handler) listDatasets(w http.ResponseWriter, r *http.Request) {
	kind := domain.DatasetKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	switch kind {
	case "", domain.DatasetTrain, domain.DatasetTest:
	default:
		writeError(w, http.StatusBadRequest, errors.New("kind must be train or test"))
		return
	}
	items, err := h.store.ListDatasets(r.Context(), kind)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	scheduler := strings.TrimSpace(r.URL.Query().Get("scheduler"))
	items, err := h.store.ListRuns(r.Context(), scheduler, queryInt(r, "limit", 200))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handler) listRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		h.writeStoreError(w, err)
		return
	}
	items, err := h.store.ListRunEvents(r.Context(), runID, queryInt(r, "limit", 1000))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// summary averages the most recent stored runs per scheduler.
func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context(), "", queryInt(r, "limit", 1000))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	grouped := make(map[string][]domain.Result)
	for _, run := range runs {
		grouped[run.Scheduler] = append(grouped[run.Scheduler], run.Result)
	}
	writeJSON(w, http.StatusOK, experiment.Summarize(grouped))
}

func (h *handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Printf("api store error: %v", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

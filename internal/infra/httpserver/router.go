package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/clinimeta/dicomflow/internal/application/delivery"
	"github.com/clinimeta/dicomflow/internal/application/pipeline"
	"github.com/clinimeta/dicomflow/internal/domain/executions"
	"github.com/clinimeta/dicomflow/internal/infra/monitoring"
	"github.com/clinimeta/dicomflow/internal/middleware"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Pipeline *pipeline.Service
	Delivery *delivery.Service
	Recorder *monitoring.Recorder
	Logger   *slog.Logger
	APIKeys  []string
	Health   map[string]middleware.HealthChecker
}

type Router struct {
	pipeline *pipeline.Service
	delivery *delivery.Service
	logger   *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := &Router{pipeline: d.Pipeline, delivery: d.Delivery, logger: d.Logger}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.Logging(r.logger))
	mux.Use(middleware.Metrics)
	mux.Use(middleware.RateLimit(middleware.NewRateLimiter(100, 50)))
	if len(d.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(d.APIKeys))
	}

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/metrics", middleware.MetricsHandler(d.Recorder))

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/executions", r.wrap(r.handleStartExecution))
		rt.Get("/executions", r.wrap(r.handleListExecutions))
		rt.Get("/executions/{id}", r.wrap(r.handleGetExecution))
		rt.Post("/events/object-created", r.wrap(r.handleObjectCreated))
		rt.Post("/delivery/links", r.wrap(r.handleDeliveryLink))
		rt.Post("/delivery/links/batch", r.wrap(r.handleDeliveryBatch))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			var bad *badRequestError
			if errors.As(err, &bad) {
				http.Error(w, bad.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/executions
// Body: {"storage_location": "incoming/scan.dcm", "pseudonym_id": "", "wait": false}
// Without wait the workflow runs in the background and the caller polls
// GET /v1/executions for the outcome.
func (r *Router) handleStartExecution(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		StorageLocation string `json:"storage_location"`
		PseudonymID     string `json:"pseudonym_id"`
		Wait            bool   `json:"wait"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if body.StorageLocation == "" {
		return badRequest("storage_location is required")
	}

	cmd := pipeline.StartCommand{
		StorageLocation: body.StorageLocation,
		PseudonymID:     body.PseudonymID,
	}

	if body.Wait {
		e, err := r.pipeline.Start(req.Context(), cmd)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, e)
	}

	r.startBackground(cmd)
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"status":           "queued",
		"storage_location": body.StorageLocation,
		"queued_at":        time.Now().UTC(),
	})
}

// startBackground drives one execution to a terminal state off the request
// goroutine, so webhook callers get an immediate acknowledgement.
func (r *Router) startBackground(cmd pipeline.StartCommand) {
	go func() {
		e, err := r.pipeline.StartUntilDone(cmd)
		if err != nil {
			r.logger.Error("background execution error",
				"storage_location", cmd.StorageLocation, "error", err)
			return
		}
		r.logger.Info("execution finished",
			"id", e.ID, "status", e.Status, "output_key", e.OutputKey)
	}()
}

// GET /v1/executions?status=failed&limit=20
func (r *Router) handleListExecutions(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	var (
		list []*executions.Execution
		err  error
	)
	if status := req.URL.Query().Get("status"); status != "" {
		list, err = r.pipeline.ListByStatus(req.Context(), executions.Status(status), limit)
	} else {
		list, err = r.pipeline.Latest(req.Context(), limit)
	}
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/executions/{id}
func (r *Router) handleGetExecution(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")

	e, err := r.pipeline.Describe(req.Context(), executions.ID(id))
	if err != nil {
		return err
	}
	if e == nil {
		return sql.ErrNoRows
	}
	return writeJSON(w, http.StatusOK, e)
}

// POST /v1/events/object-created
// Accepts the S3-style notification envelope emitted by the object store
// and starts a background execution per matching record.
func (r *Router) handleObjectCreated(w http.ResponseWriter, req *http.Request) error {
	var ev pipeline.ObjectCreatedEvent
	if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
		return badRequest("invalid event: %v", err)
	}

	res := r.pipeline.HandleObjectCreated(ev, r.startBackground)
	return writeJSON(w, http.StatusAccepted, res)
}

// POST /v1/delivery/links
// Body: {"key": "cleaned/scan.dcm", "ttl_seconds": 3600}
func (r *Router) handleDeliveryLink(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Key        string `json:"key"`
		TTLSeconds int    `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if body.Key == "" {
		return badRequest("key is required")
	}

	out, err := r.delivery.Issue(req.Context(), body.Key, time.Duration(body.TTLSeconds)*time.Second, true)
	if err != nil {
		return err
	}
	if out.NotFound {
		http.Error(w, "object not found", http.StatusNotFound)
		return nil
	}
	return writeJSON(w, http.StatusOK, out.Descriptor)
}

// POST /v1/delivery/links/batch
// Body: {"keys": ["a.dcm", "b.dcm"], "ttl_seconds": 600}
func (r *Router) handleDeliveryBatch(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Keys       []string `json:"keys"`
		TTLSeconds int      `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if len(body.Keys) == 0 {
		return badRequest("keys is required")
	}

	out := r.delivery.IssueBatch(req.Context(), body.Keys, time.Duration(body.TTLSeconds)*time.Second)
	return writeJSON(w, http.StatusOK, out)
}

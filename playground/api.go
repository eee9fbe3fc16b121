package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/xingyi1145/Neural-Network-Playground/internal/dataset"
	"github.com/xingyi1145/Neural-Network-Playground/internal/nn"
	"github.com/xingyi1145/Neural-Network-Playground/internal/session"
	"github.com/xingyi1145/Neural-Network-Playground/internal/template"
)

type playgroundAPI struct {
	logger   *slog.Logger
	registry *dataset.Registry
	manager  *session.Manager
	models   *session.ModelStore
	catalog  *template.Catalog
}

func newPlaygroundAPI(
	logger *slog.Logger,
	registry *dataset.Registry,
	manager *session.Manager,
	models *session.ModelStore,
	catalog *template.Catalog,
) *playgroundAPI {
	return &playgroundAPI{
		logger:   logger,
		registry: registry,
		manager:  manager,
		models:   models,
		catalog:  catalog,
	}
}

func (api *playgroundAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", api.handleRoot)
	mux.HandleFunc("GET /health", api.handleHealth)

	mux.HandleFunc("GET /api/datasets", api.handleListDatasets)
	mux.HandleFunc("GET /api/datasets/{dataset_id}", api.handleGetDataset)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/preview", api.handleDatasetPreview)

	mux.HandleFunc("GET /api/templates", api.handleListTemplates)
	mux.HandleFunc("GET /api/templates/{template_id}", api.handleGetTemplate)

	mux.HandleFunc("POST /api/models", api.handleCreateModel)
	mux.HandleFunc("GET /api/models/{model_id}", api.handleGetModel)
	mux.HandleFunc("POST /api/models/{model_id}/train", api.handleStartTraining)

	mux.HandleFunc("GET /api/training/{session_id}/status", api.handleTrainingStatus)
	mux.HandleFunc("POST /api/training/{session_id}/pause", api.handlePauseTraining)
	mux.HandleFunc("POST /api/training/{session_id}/resume", api.handleResumeTraining)
	mux.HandleFunc("POST /api/training/{session_id}/stop", api.handleStopTraining)
	mux.HandleFunc("POST /api/training/{session_id}/predict", api.handlePredict)
}

func (api *playgroundAPI) handleRoot(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]any{"message": "API running"})
}

func (api *playgroundAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *playgroundAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *playgroundAPI) writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	api.writeJSON(w, status, map[string]any{
		"detail":     detail,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses:
// validation and compilation problems are 400, lookups 404, state
// conflicts 409, anything unrecognized 500. Training runtime failures
// never reach this path; they live in the session's error_message.
func (api *playgroundAPI) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var verr *nn.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, nn.ErrCompilationFailed):
		status = http.StatusBadRequest
	case errors.Is(err, dataset.ErrNotFound),
		errors.Is(err, session.ErrModelNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, template.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrActiveSessionExists),
		errors.Is(err, session.ErrIllegalTransition),
		errors.Is(err, session.ErrSessionNotReady):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		api.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	api.writeError(w, r, status, err.Error())
}

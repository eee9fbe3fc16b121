package main

import (
	"net/http"
	"strings"

	"github.com/xingyi1145/Neural-Network-Playground/internal/nn"
	"github.com/xingyi1145/Neural-Network-Playground/internal/session"
)

const (
	maxModelNameLength        = 100
	maxModelDescriptionLength = 500
)

type createModelRequest struct {
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	DatasetID   string     `json:"dataset_id"`
	Layers      []nn.Layer `json:"layers"`
}

func (api *playgroundAPI) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	var req createModelRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return
	}

	name := strings.TrimSpace(req.Name)
	if len(name) > maxModelNameLength {
		api.writeError(w, r, http.StatusBadRequest, "name must be at most 100 characters")
		return
	}
	description := strings.TrimSpace(req.Description)
	if len(description) > maxModelDescriptionLength {
		api.writeError(w, r, http.StatusBadRequest, "description must be at most 500 characters")
		return
	}
	if strings.TrimSpace(req.DatasetID) == "" {
		api.writeError(w, r, http.StatusBadRequest, "dataset_id is required")
		return
	}

	provider, err := api.registry.Get(req.DatasetID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	canonical, err := nn.Validate(req.Layers, provider.Spec())
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}

	record := api.models.Create(r.Context(), session.ModelConfig{
		Name:        name,
		Description: description,
		DatasetID:   req.DatasetID,
		Layers:      canonical,
	})
	api.writeJSON(w, http.StatusCreated, record)
}

func (api *playgroundAPI) handleGetModel(w http.ResponseWriter, r *http.Request) {
	record, err := api.models.Get(r.PathValue("model_id"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, record)
}

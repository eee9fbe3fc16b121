package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/xingyi1145/Neural-Network-Playground/internal/dataset"
	"github.com/xingyi1145/Neural-Network-Playground/internal/nn"
	"github.com/xingyi1145/Neural-Network-Playground/internal/session"
	"github.com/xingyi1145/Neural-Network-Playground/internal/training"
)

type trainRequest struct {
	DatasetID    string     `json:"dataset_id,omitempty"`
	Layers       []nn.Layer `json:"layers,omitempty"`
	Epochs       *int       `json:"epochs,omitempty"`
	LearningRate *float64   `json:"learning_rate,omitempty"`
	BatchSize    *int       `json:"batch_size,omitempty"`
	Optimizer    string     `json:"optimizer,omitempty"`
	MaxSamples   int        `json:"max_samples,omitempty"`
}

type trainStartResponse struct {
	SessionID           string          `json:"session_id"`
	Status              training.Status `json:"status"`
	TotalEpochs         int             `json:"total_epochs"`
	PollIntervalSeconds float64         `json:"poll_interval_seconds"`
}

// handleStartTraining admits a training run for a stored model, or for an
// ad-hoc architecture when model_id is the literal "new". Ad-hoc runs get
// a minted temp model id so they never contend for a stored model's slot.
func (api *playgroundAPI) handleStartTraining(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("model_id")

	// An absent body trains a stored model on its defaults.
	var req trainRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		api.writeError(w, r, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return
	}

	datasetID := req.DatasetID
	layers := req.Layers
	if modelID == "new" {
		if datasetID == "" || len(layers) == 0 {
			api.writeError(w, r, http.StatusBadRequest, "Dataset ID and layers are required for new models")
			return
		}
		modelID = "temp-" + uuid.NewString()
	} else {
		record, err := api.models.Get(modelID)
		if err != nil {
			api.writeDomainError(w, r, err)
			return
		}
		if datasetID == "" {
			datasetID = record.DatasetID
		}
		if len(layers) == 0 {
			layers = record.Layers
		}
	}

	snap, err := api.manager.StartTraining(r.Context(), modelID, datasetID, layers, session.StartOptions{
		Epochs:       req.Epochs,
		LearningRate: req.LearningRate,
		BatchSize:    req.BatchSize,
		Optimizer:    req.Optimizer,
		MaxSamples:   req.MaxSamples,
	})
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}

	api.writeJSON(w, http.StatusAccepted, trainStartResponse{
		SessionID:           snap.SessionID,
		Status:              snap.Status,
		TotalEpochs:         snap.TotalEpochs,
		PollIntervalSeconds: snap.PollIntervalSeconds,
	})
}

func (api *playgroundAPI) handleTrainingStatus(w http.ResponseWriter, r *http.Request) {
	sinceEpoch := 0
	if raw := r.URL.Query().Get("since_epoch"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.writeError(w, r, http.StatusUnprocessableEntity, "since_epoch must be an integer >= 0")
			return
		}
		sinceEpoch = n
	}

	snap, err := api.manager.GetSession(r.Context(), r.PathValue("session_id"), sinceEpoch)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	// Pollers must always see fresh state.
	w.Header().Set("Cache-Control", "no-store")
	api.writeJSON(w, http.StatusOK, snap)
}

func (api *playgroundAPI) handlePauseTraining(w http.ResponseWriter, r *http.Request) {
	snap, err := api.manager.Pause(r.Context(), r.PathValue("session_id"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, snap)
}

func (api *playgroundAPI) handleResumeTraining(w http.ResponseWriter, r *http.Request) {
	snap, err := api.manager.Resume(r.Context(), r.PathValue("session_id"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, snap)
}

func (api *playgroundAPI) handleStopTraining(w http.ResponseWriter, r *http.Request) {
	snap, err := api.manager.Stop(r.Context(), r.PathValue("session_id"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, snap)
}

type predictRequest struct {
	Inputs []float64 `json:"inputs"`
}

type predictResponse struct {
	Prediction    any       `json:"prediction"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	Confidence    *float64  `json:"confidence,omitempty"`
}

func (api *playgroundAPI) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Inputs) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "inputs must not be empty")
		return
	}

	pred, err := api.manager.Predict(r.Context(), r.PathValue("session_id"), req.Inputs)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}

	if pred.Task == dataset.TaskClassification {
		confidence := pred.Confidence
		api.writeJSON(w, http.StatusOK, predictResponse{
			Prediction:    pred.Class,
			Probabilities: pred.Probabilities,
			Confidence:    &confidence,
		})
		return
	}
	api.writeJSON(w, http.StatusOK, predictResponse{Prediction: pred.Value})
}

package main

import (
	"net/http"
	"strconv"

	"github.com/xingyi1145/Neural-Network-Playground/internal/dataset"
)

type datasetHyperparameters struct {
	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
	Epochs       int     `json:"epochs"`
	Optimizer    string  `json:"optimizer"`
}

type datasetSummary struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	TaskType        string                 `json:"task_type"`
	Description     string                 `json:"description"`
	NumSamples      int                    `json:"num_samples"`
	NumFeatures     int                    `json:"num_features"`
	NumClasses      int                    `json:"num_classes"`
	OutputShape     int                    `json:"output_shape"`
	Hyperparameters datasetHyperparameters `json:"hyperparameters"`
}

type datasetDetail struct {
	datasetSummary
	InputShape []int `json:"input_shape"`
}

func summarizeDataset(spec dataset.Spec) datasetSummary {
	return datasetSummary{
		ID:          spec.ID,
		Name:        spec.Name,
		TaskType:    string(spec.Task),
		Description: spec.Description,
		NumSamples:  spec.NumSamples,
		NumFeatures: spec.NumFeatures(),
		NumClasses:  spec.OutputArity,
		OutputShape: spec.OutputArity,
		Hyperparameters: datasetHyperparameters{
			LearningRate: spec.Recommended.LearningRate,
			BatchSize:    spec.Recommended.BatchSize,
			Epochs:       spec.Recommended.Epochs,
			Optimizer:    spec.Recommended.Optimizer,
		},
	}
}

func (api *playgroundAPI) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	specs := api.registry.List()
	out := make([]datasetSummary, 0, len(specs))
	for _, spec := range specs {
		out = append(out, summarizeDataset(spec))
	}
	api.writeJSON(w, http.StatusOK, out)
}

func (api *playgroundAPI) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	provider, err := api.registry.Get(r.PathValue("dataset_id"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	spec := provider.Spec()
	api.writeJSON(w, http.StatusOK, datasetDetail{
		datasetSummary: summarizeDataset(spec),
		InputShape:     spec.InputShape,
	})
}

func (api *playgroundAPI) handleDatasetPreview(w http.ResponseWriter, r *http.Request) {
	numSamples := 10
	if raw := r.URL.Query().Get("num_samples"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			api.writeError(w, r, http.StatusUnprocessableEntity, "num_samples must be an integer between 1 and 100")
			return
		}
		numSamples = n
	}

	features, labels, err := api.registry.Preview(r.Context(), r.PathValue("dataset_id"), numSamples)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"features":          features,
		"labels":            labels,
		"num_samples_shown": len(features),
	})
}

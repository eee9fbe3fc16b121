// Command demo drives a full training workflow against a running
// playground server: pick a dataset, create a model from its first
// template, train it, poll the session to completion and run one
// prediction. Useful as a smoke check and as living API documentation.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type apiClient struct {
	baseURL   string
	requestID string
	http      *http.Client
}

func newAPIClient(baseURL, requestID string) *apiClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &apiClient{
		baseURL:   baseURL,
		requestID: strings.TrimSpace(requestID),
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(req *http.Request) ([]byte, error) {
	if c.requestID != "" {
		req.Header.Set("X-Request-Id", c.requestID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, fmt.Errorf("http %s %s: status=%d body=%s", req.Method, req.URL.String(), resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (c *apiClient) getJSON(path string, out any) error {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	body, err := c.do(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *apiClient) postJSON(path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

type datasetSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	TaskType        string `json:"task_type"`
	NumSamples      int    `json:"num_samples"`
	NumFeatures     int    `json:"num_features"`
	Hyperparameters struct {
		LearningRate float64 `json:"learning_rate"`
		BatchSize    int     `json:"batch_size"`
		Epochs       int     `json:"epochs"`
		Optimizer    string  `json:"optimizer"`
	} `json:"hyperparameters"`
}

type modelTemplate struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Layers json.RawMessage `json:"layers"`
}

type modelRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type trainStart struct {
	SessionID           string  `json:"session_id"`
	Status              string  `json:"status"`
	TotalEpochs         int     `json:"total_epochs"`
	PollIntervalSeconds float64 `json:"poll_interval_seconds"`
}

type epochMetric struct {
	Epoch    int      `json:"epoch"`
	Loss     float64  `json:"loss"`
	Accuracy *float64 `json:"accuracy"`
}

type sessionSnapshot struct {
	SessionID           string        `json:"session_id"`
	Status              string        `json:"status"`
	TotalEpochs         int           `json:"total_epochs"`
	CurrentEpoch        int           `json:"current_epoch"`
	Progress            float64       `json:"progress"`
	Metrics             []epochMetric `json:"metrics"`
	ErrorMessage        string        `json:"error_message"`
	PollIntervalSeconds float64       `json:"poll_interval_seconds"`
}

type predictResult struct {
	Prediction    any       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
	Confidence    *float64  `json:"confidence"`
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	now := time.Now().UTC()
	defaultRequestID := fmt.Sprintf("demo-%s", now.Format("20060102T150405Z"))

	var (
		baseURL   = flag.String("server", envOr("PLAYGROUND_URL", "http://localhost:8000"), "Playground base URL")
		datasetID = flag.String("dataset", envOr("PLAYGROUND_DEMO_DATASET", "iris"), "Dataset to train on")
		epochs    = flag.Int("epochs", 0, "Epoch count (0 uses the dataset default)")
		inputs    = flag.String("inputs", "", "Comma-separated feature row for the final prediction (defaults to the dataset preview's first row)")
		requestID = flag.String("request-id", envOr("PLAYGROUND_DEMO_REQUEST_ID", defaultRequestID), "X-Request-Id for correlation")
	)
	flag.Parse()

	client := newAPIClient(*baseURL, *requestID)
	fmt.Printf("==> playground demo (server=%s, request_id=%s)\n", client.baseURL, client.requestID)

	// 1) Look up the dataset.
	var ds datasetSummary
	if err := client.getJSON("/api/datasets/"+*datasetID, &ds); err != nil {
		die("fetch dataset", err)
	}
	fmt.Printf("==> dataset: %s (%s, %d samples, %d features, default %d epochs of %s)\n",
		ds.ID, ds.TaskType, ds.NumSamples, ds.NumFeatures, ds.Hyperparameters.Epochs, ds.Hyperparameters.Optimizer)

	// 2) Pick the first prebuilt template for it.
	var templates []modelTemplate
	if err := client.getJSON("/api/templates?dataset_id="+*datasetID, &templates); err != nil {
		die("fetch templates", err)
	}
	if len(templates) == 0 {
		die("fetch templates", fmt.Errorf("dataset %q has no templates; pass an architecture by hand", *datasetID))
	}
	tpl := templates[0]
	fmt.Printf("==> template: %s (%s)\n", tpl.ID, tpl.Name)

	// 3) Create a model from the template's layer stack.
	var model modelRecord
	if err := client.postJSON("/api/models", map[string]any{
		"name":       fmt.Sprintf("demo-%s-%s", *datasetID, now.Format("20060102-150405")),
		"dataset_id": *datasetID,
		"layers":     tpl.Layers,
	}, &model); err != nil {
		die("create model", err)
	}
	fmt.Printf("==> created model: %s (%s)\n", model.ID, model.Name)

	// 4) Start training.
	trainReq := map[string]any{}
	if *epochs > 0 {
		trainReq["epochs"] = *epochs
	}
	var started trainStart
	if err := client.postJSON("/api/models/"+model.ID+"/train", trainReq, &started); err != nil {
		die("start training", err)
	}
	fmt.Printf("==> training session: %s (%d epochs)\n", started.SessionID, started.TotalEpochs)

	// 5) Poll at the interval the server asks for until terminal.
	final := pollUntilDone(client, started.SessionID)
	switch final.Status {
	case "completed":
		fmt.Printf("==> training completed: %d/%d epochs\n", final.CurrentEpoch, final.TotalEpochs)
	case "failed":
		die("training", fmt.Errorf("session failed: %s", final.ErrorMessage))
	default:
		die("training", fmt.Errorf("session ended %s", final.Status))
	}

	// 6) Predict on one row.
	row, err := predictionRow(ds, *inputs)
	if err != nil {
		die("build prediction input", err)
	}
	var pred predictResult
	if err := client.postJSON("/api/training/"+started.SessionID+"/predict", map[string]any{"inputs": row}, &pred); err != nil {
		die("predict", err)
	}
	if pred.Confidence != nil {
		fmt.Printf("==> prediction: class %v (confidence %.3f, inputs %v)\n", pred.Prediction, *pred.Confidence, row)
	} else {
		fmt.Printf("==> prediction: %v (inputs %v)\n", pred.Prediction, row)
	}
}

func pollUntilDone(client *apiClient, sessionID string) sessionSnapshot {
	lastEpoch := -1
	for {
		var snap sessionSnapshot
		if err := client.getJSON("/api/training/"+sessionID+"/status", &snap); err != nil {
			die("poll status", err)
		}
		if n := len(snap.Metrics); n > 0 && snap.Metrics[n-1].Epoch != lastEpoch {
			m := snap.Metrics[n-1]
			lastEpoch = m.Epoch
			if m.Accuracy != nil {
				fmt.Printf("    epoch %d/%d loss=%.4f accuracy=%.3f\n", m.Epoch, snap.TotalEpochs, m.Loss, *m.Accuracy)
			} else {
				fmt.Printf("    epoch %d/%d loss=%.4f\n", m.Epoch, snap.TotalEpochs, m.Loss)
			}
		}
		switch snap.Status {
		case "completed", "failed", "stopped":
			return snap
		}
		time.Sleep(time.Duration(snap.PollIntervalSeconds * float64(time.Second)))
	}
}

// predictionRow parses -inputs. When unset it falls back to a classic
// setosa row for iris and an all-zero row elsewhere; the server applies
// the dataset's scaler, so inputs are raw feature values.
func predictionRow(ds datasetSummary, raw string) ([]float64, error) {
	if strings.TrimSpace(raw) != "" {
		parts := strings.Split(raw, ",")
		row := make([]float64, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("parse input %q: %w", p, err)
			}
			row = append(row, v)
		}
		return row, nil
	}
	if ds.ID == "iris" {
		return []float64{5.1, 3.5, 1.4, 0.2}, nil
	}
	return make([]float64, ds.NumFeatures), nil
}

func die(step string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", step, err)
	os.Exit(1)
}

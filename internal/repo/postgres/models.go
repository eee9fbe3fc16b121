package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xingyi1145/Neural-Network-Playground/internal/session"
)

// ModelStore persists user-created model configs so they survive a
// restart. The in-memory model store hydrates from it at startup.
type ModelStore struct {
	db DB
}

const (
	upsertModelConfigQuery = `INSERT INTO model_configs (
		model_id,
		name,
		dataset_id,
		description,
		layers,
		status,
		created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (model_id) DO UPDATE SET
		name = EXCLUDED.name,
		dataset_id = EXCLUDED.dataset_id,
		description = EXCLUDED.description,
		layers = EXCLUDED.layers,
		status = EXCLUDED.status`

	listModelConfigsQuery = `SELECT model_id, name, dataset_id, description, layers, status, created_at
	 FROM model_configs
	 ORDER BY created_at ASC, model_id ASC`
)

func NewModelStore(db DB) *ModelStore {
	if db == nil {
		return nil
	}
	return &ModelStore{db: db}
}

var _ session.ModelRecorder = (*ModelStore)(nil)

func (s *ModelStore) SaveModelConfig(ctx context.Context, mc session.ModelConfig) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("model store not initialized")
	}
	id := strings.TrimSpace(mc.ID)
	if id == "" {
		return fmt.Errorf("model id is required")
	}
	layersJSON, err := json.Marshal(mc.Layers)
	if err != nil {
		return fmt.Errorf("encode layers: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		upsertModelConfigQuery,
		id,
		strings.TrimSpace(mc.Name),
		strings.TrimSpace(mc.DatasetID),
		nullIfEmpty(mc.Description),
		layersJSON,
		strings.TrimSpace(mc.Status),
		normalizeTime(mc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert model config: %w", err)
	}
	return nil
}

// LoadModelConfigs returns every stored config, oldest first.
func (s *ModelStore) LoadModelConfigs(ctx context.Context) ([]session.ModelConfig, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("model store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, listModelConfigsQuery)
	if err != nil {
		return nil, fmt.Errorf("list model configs: %w", err)
	}
	defer rows.Close()

	configs := make([]session.ModelConfig, 0)
	for rows.Next() {
		var mc session.ModelConfig
		var description sql.NullString
		var layersJSON []byte
		if err := rows.Scan(&mc.ID, &mc.Name, &mc.DatasetID, &description, &layersJSON, &mc.Status, &mc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan model config: %w", err)
		}
		if description.Valid {
			mc.Description = description.String
		}
		if err := json.Unmarshal(layersJSON, &mc.Layers); err != nil {
			return nil, fmt.Errorf("decode layers for %s: %w", mc.ID, err)
		}
		mc.CreatedAt = mc.CreatedAt.UTC()
		configs = append(configs, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list model configs: %w", err)
	}
	return configs, nil
}

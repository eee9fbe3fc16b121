package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xingyi1145/Neural-Network-Playground/internal/session"
	"github.com/xingyi1145/Neural-Network-Playground/internal/training"
)

// SessionStore mirrors session lifecycles and epoch metrics. Writes are
// upserts keyed by session id so a lost earlier write never wedges the
// write-through path.
type SessionStore struct {
	db DB
}

const (
	upsertSessionQuery = `INSERT INTO training_sessions (
		session_id,
		model_id,
		dataset_id,
		status,
		total_epochs,
		current_epoch,
		error_message,
		start_time,
		end_time
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (session_id) DO UPDATE SET
		status = EXCLUDED.status,
		current_epoch = EXCLUDED.current_epoch,
		error_message = EXCLUDED.error_message,
		end_time = EXCLUDED.end_time`

	selectSessionQuery = `SELECT session_id, model_id, dataset_id, status, total_epochs, current_epoch, error_message, start_time, end_time
	 FROM training_sessions
	 WHERE session_id = $1`

	insertMetricQuery = `INSERT INTO training_metrics (
		session_id,
		epoch,
		loss,
		accuracy,
		recorded_at
	) VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (session_id, epoch) DO NOTHING`

	listMetricsQuery = `SELECT epoch, loss, accuracy, recorded_at
	 FROM training_metrics
	 WHERE session_id = $1 AND epoch > $2
	 ORDER BY epoch ASC`

	markInterruptedQuery = `UPDATE training_sessions
	 SET status = 'failed',
	     error_message = 'UnexpectedInternal: training interrupted by service restart',
	     end_time = $1
	 WHERE status IN ('pending','running','paused')`
)

func NewSessionStore(db DB) *SessionStore {
	if db == nil {
		return nil
	}
	return &SessionStore{db: db}
}

var _ session.Store = (*SessionStore)(nil)

func (s *SessionStore) SaveSession(ctx context.Context, snap training.Snapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("session store not initialized")
	}
	id := strings.TrimSpace(snap.SessionID)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	var endTime sql.NullTime
	if snap.EndTime != nil {
		endTime = sql.NullTime{Time: snap.EndTime.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(
		ctx,
		upsertSessionQuery,
		id,
		strings.TrimSpace(snap.ModelID),
		strings.TrimSpace(snap.DatasetID),
		string(snap.Status),
		snap.TotalEpochs,
		snap.CurrentEpoch,
		nullIfEmpty(snap.ErrorMessage),
		normalizeTime(snap.StartTime),
		endTime,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SessionStore) UpdateSessionStatus(ctx context.Context, snap training.Snapshot) error {
	return s.SaveSession(ctx, snap)
}

func (s *SessionStore) SaveMetric(ctx context.Context, sessionID string, m training.Metric) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("session store not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	var accuracy sql.NullFloat64
	if m.Accuracy != nil {
		accuracy = sql.NullFloat64{Float64: *m.Accuracy, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, insertMetricQuery, sessionID, m.Epoch, m.Loss, accuracy, normalizeTime(m.Timestamp))
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// LoadSession reassembles a snapshot from the lifecycle row plus the
// metrics after sinceEpoch. found is false for unknown ids.
func (s *SessionStore) LoadSession(ctx context.Context, sessionID string, sinceEpoch int) (training.Snapshot, bool, error) {
	if s == nil || s.db == nil {
		return training.Snapshot{}, false, fmt.Errorf("session store not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return training.Snapshot{}, false, fmt.Errorf("session id is required")
	}

	var (
		snap         training.Snapshot
		status       string
		errorMessage sql.NullString
		endTime      sql.NullTime
	)
	row := s.db.QueryRowContext(ctx, selectSessionQuery, sessionID)
	err := row.Scan(
		&snap.SessionID,
		&snap.ModelID,
		&snap.DatasetID,
		&status,
		&snap.TotalEpochs,
		&snap.CurrentEpoch,
		&errorMessage,
		&snap.StartTime,
		&endTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return training.Snapshot{}, false, nil
		}
		return training.Snapshot{}, false, fmt.Errorf("select session: %w", err)
	}

	metrics, err := s.listMetrics(ctx, sessionID, sinceEpoch)
	if err != nil {
		return training.Snapshot{}, false, err
	}
	return assembleSnapshot(snap, status, errorMessage, endTime, metrics), true, nil
}

func (s *SessionStore) listMetrics(ctx context.Context, sessionID string, sinceEpoch int) ([]training.Metric, error) {
	rows, err := s.db.QueryContext(ctx, listMetricsQuery, sessionID, sinceEpoch)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]training.Metric, 0)
	for rows.Next() {
		var m training.Metric
		var accuracy sql.NullFloat64
		if err := rows.Scan(&m.Epoch, &m.Loss, &accuracy, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if accuracy.Valid {
			acc := accuracy.Float64
			m.Accuracy = &acc
		}
		m.Timestamp = m.Timestamp.UTC()
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	return metrics, nil
}

// assembleSnapshot fills the derived fields a live Session would compute.
func assembleSnapshot(snap training.Snapshot, status string, errorMessage sql.NullString, endTime sql.NullTime, metrics []training.Metric) training.Snapshot {
	snap.Status = training.Status(status)
	if errorMessage.Valid {
		snap.ErrorMessage = errorMessage.String
	}
	snap.StartTime = snap.StartTime.UTC()
	if endTime.Valid {
		ended := endTime.Time.UTC()
		snap.EndTime = &ended
	}
	snap.Metrics = metrics
	snap.Progress = training.Progress(snap.CurrentEpoch, snap.TotalEpochs)
	snap.PollIntervalSeconds = snap.Status.PollInterval()
	return snap
}

// MarkInterrupted fails every session a previous process left non-terminal.
// Runs once at startup, before new sessions are admitted.
func (s *SessionStore) MarkInterrupted(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("session store not initialized")
	}
	res, err := s.db.ExecContext(ctx, markInterruptedQuery, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return n, nil
}

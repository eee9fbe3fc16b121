package training

import (
	"testing"
	"time"
)

func TestSessionTerminalAbsorption(t *testing.T) {
	s := NewSession("s1", "m1", "iris", 10)
	if got := s.Status(); got != StatusPending {
		t.Fatalf("Status=%s, want pending", got)
	}

	s.MarkRunning()
	s.SetCurrentEpoch(3)
	s.AppendMetric(Metric{Epoch: 1, Loss: 0.9, Timestamp: time.Now()})
	s.Finish(StatusStopped, "Training stopped by user")

	// Nothing observable changes after a terminal transition.
	s.MarkRunning()
	s.MarkPaused()
	s.SetCurrentEpoch(7)
	s.AppendMetric(Metric{Epoch: 2, Loss: 0.5, Timestamp: time.Now()})
	s.Finish(StatusCompleted, "")

	snap := s.Snapshot(0)
	if snap.Status != StatusStopped {
		t.Fatalf("Status=%s, want stopped", snap.Status)
	}
	if snap.CurrentEpoch != 3 {
		t.Fatalf("CurrentEpoch=%d, want 3", snap.CurrentEpoch)
	}
	if len(snap.Metrics) != 1 {
		t.Fatalf("len(Metrics)=%d, want 1", len(snap.Metrics))
	}
	if snap.ErrorMessage != "Training stopped by user" {
		t.Fatalf("ErrorMessage=%q", snap.ErrorMessage)
	}
	if snap.EndTime == nil {
		t.Fatalf("EndTime=nil, want set")
	}
}

func TestSnapshotSinceEpoch(t *testing.T) {
	s := NewSession("s1", "m1", "iris", 5)
	s.MarkRunning()
	for epoch := 1; epoch <= 5; epoch++ {
		s.SetCurrentEpoch(epoch)
		s.AppendMetric(Metric{Epoch: epoch, Loss: 1 / float64(epoch), Timestamp: time.Now()})
	}

	snap := s.Snapshot(3)
	if len(snap.Metrics) != 2 {
		t.Fatalf("len(Metrics)=%d, want 2", len(snap.Metrics))
	}
	if snap.Metrics[0].Epoch != 4 || snap.Metrics[1].Epoch != 5 {
		t.Fatalf("epochs=%d,%d, want 4,5", snap.Metrics[0].Epoch, snap.Metrics[1].Epoch)
	}

	if got := len(s.Snapshot(0).Metrics); got != 5 {
		t.Fatalf("Snapshot(0) metrics=%d, want 5", got)
	}
}

func TestSnapshotProgressAndPollInterval(t *testing.T) {
	s := NewSession("s1", "m1", "iris", 4)
	s.MarkRunning()

	if got := s.Snapshot(0).Progress; got != 0 {
		t.Fatalf("Progress=%v, want 0", got)
	}
	if got := s.Snapshot(0).PollIntervalSeconds; got != 1.5 {
		t.Fatalf("PollIntervalSeconds=%v, want 1.5", got)
	}

	s.SetCurrentEpoch(2)
	if got := s.Snapshot(0).Progress; got != 0.5 {
		t.Fatalf("Progress=%v, want 0.5", got)
	}

	s.SetCurrentEpoch(9)
	if got := s.Snapshot(0).Progress; got != 1 {
		t.Fatalf("Progress=%v, want clamped to 1", got)
	}

	s.Finish(StatusCompleted, "")
	if got := s.Snapshot(0).PollIntervalSeconds; got != 5.0 {
		t.Fatalf("terminal PollIntervalSeconds=%v, want 5.0", got)
	}
}

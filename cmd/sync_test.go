package cmd

import (
	"errors"
	"testing"

	"github.com/Chirlanio/mercury-sync/sync"
)

type stubRuns struct {
	status   sync.Status
	finished []sync.Status
}

func (s *stubRuns) CreateRun(t sync.Type, by string) (*sync.Run, error) {
	return &sync.Run{ID: 1, Type: t, Status: sync.StatusPending, StartedBy: by}, nil
}

func (s *stubRuns) MarkRunning(int64) error { return nil }

func (s *stubRuns) RecordChunk(int64, sync.Progress) error { return nil }

func (s *stubRuns) RunStatus(int64) (sync.Status, error) { return s.status, nil }

func (s *stubRuns) FinishRun(_ int64, st sync.Status) error {
	if s.status.Terminal() {
		return errors.New("run 1 is already terminal")
	}
	s.status = st
	s.finished = append(s.finished, st)
	return nil
}

func TestFinishUnlessCancelled(t *testing.T) {
	rs := &stubRuns{status: sync.StatusRunning}
	e := sync.NewEngine(rs, nil, nil)
	run := &sync.Run{ID: 1, Status: sync.StatusRunning}
	if err := finishUnlessCancelled(e, rs, run); err != nil {
		t.Fatalf("expected the run to finish, got %v", err)
	}
	if len(rs.finished) != 1 || rs.finished[0] != sync.StatusCompleted {
		t.Errorf("expected one transition to completed, got %v", rs.finished)
	}
}

func TestFinishUnlessCancelledAfterLastChunk(t *testing.T) {
	// a cancel landing between the last chunk and the finalize must not
	// trip FinishRun's terminal-once guard
	rs := &stubRuns{status: sync.StatusCancelled}
	e := sync.NewEngine(rs, nil, nil)
	run := &sync.Run{ID: 1, Status: sync.StatusRunning}
	if err := finishUnlessCancelled(e, rs, run); err != nil {
		t.Fatalf("expected a cancelled run to be left alone, got %v", err)
	}
	if len(rs.finished) != 0 {
		t.Errorf("expected no terminal transition, got %v", rs.finished)
	}
}

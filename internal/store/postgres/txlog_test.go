package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"forgeplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestAppend_AssignsSeq(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()
	e := &store.Entry{
		Kind:      store.EntryJobTransition,
		JobID:     jobID,
		UnitID:    "unit-01",
		Prior:     store.JobStatusQueued,
		New:       store.JobStatusAllocated,
		Timestamp: time.Now(),
	}

	mock.ExpectQuery(`INSERT INTO transaction_log`).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)))

	if err := s.Append(context.Background(), e); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if e.Seq != 7 {
		t.Errorf("got seq %d, want 7", e.Seq)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAppend_DBError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`INSERT INTO transaction_log`).
		WillReturnError(errors.New("connection reset"))

	err := s.Append(context.Background(), &store.Entry{Kind: store.EntryUnitOnline, UnitID: "unit-01"})
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestReplay_StreamsInOrder(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()
	payload, _ := json.Marshal(map[string]bool{"ready": true})
	now := time.Now()

	mock.ExpectQuery(`SELECT seq, kind, job_id, unit_id, prior_status, new_status, payload, created_at FROM transaction_log`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "kind", "job_id", "unit_id", "prior_status", "new_status", "payload", "created_at"}).
			AddRow(int64(1), store.EntryJobSubmitted, jobID.String(), nil, nil, string(store.JobStatusQueued), payload, now).
			AddRow(int64(2), store.EntryUnitRegistered, nil, "unit-01", nil, nil, nil, now))

	var got []store.Entry
	err := s.Replay(context.Background(), func(e store.Entry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Seq != 1 || got[0].JobID != jobID || got[0].New != store.JobStatusQueued {
		t.Errorf("entry 1 mismatch: %+v", got[0])
	}
	if got[1].Seq != 2 || got[1].UnitID != "unit-01" || got[1].JobID != uuid.Nil {
		t.Errorf("entry 2 mismatch: %+v", got[1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReplay_CallbackErrorStops(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT seq, kind, job_id, unit_id, prior_status, new_status, payload, created_at FROM transaction_log`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "kind", "job_id", "unit_id", "prior_status", "new_status", "payload", "created_at"}).
			AddRow(int64(1), store.EntryUnitOnline, nil, "unit-01", nil, nil, nil, time.Now()).
			AddRow(int64(2), store.EntryUnitOnline, nil, "unit-02", nil, nil, nil, time.Now()))

	wantErr := errors.New("stop here")
	calls := 0
	err := s.Replay(context.Background(), func(store.Entry) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("got err %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("callback called %d times, want 1", calls)
	}
}

func TestLastSeq(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT MAX\(seq\) FROM transaction_log`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(42)))

	seq, err := s.LastSeq(context.Background())
	if err != nil {
		t.Fatalf("LastSeq failed: %v", err)
	}
	if seq != 42 {
		t.Errorf("got seq %d, want 42", seq)
	}
}

func TestLastSeq_EmptyLog(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT MAX\(seq\) FROM transaction_log`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	seq, err := s.LastSeq(context.Background())
	if err != nil {
		t.Fatalf("LastSeq failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("got seq %d, want 0 for empty log", seq)
	}
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// Append persists a Transaction Log entry and fills in the assigned
// sequence number. Entries are immutable once written.
func (s *Store) Append(ctx context.Context, e *store.Entry) error {
	var jobID any
	if e.JobID != uuid.Nil {
		jobID = e.JobID
	}
	var unitID any
	if e.UnitID != "" {
		unitID = e.UnitID
	}
	var payload any
	if len(e.Payload) > 0 {
		payload = []byte(e.Payload)
	}

	query := `
		INSERT INTO transaction_log (kind, job_id, unit_id, prior_status, new_status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq
	`
	err := s.db.QueryRowContext(ctx, query,
		e.Kind, jobID, unitID, nullableStatus(e.Prior), nullableStatus(e.New), payload, e.Timestamp,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	return nil
}

// Replay streams every entry in ascending sequence order.
func (s *Store) Replay(ctx context.Context, fn func(store.Entry) error) error {
	query := `
		SELECT seq, kind, job_id, unit_id, prior_status, new_status, payload, created_at
		FROM transaction_log
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("replay query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e       store.Entry
			jobID   sql.NullString
			unitID  sql.NullString
			prior   sql.NullString
			next    sql.NullString
			payload []byte
		)
		if err := rows.Scan(&e.Seq, &e.Kind, &jobID, &unitID, &prior, &next, &payload, &e.Timestamp); err != nil {
			return fmt.Errorf("replay scan: %w", err)
		}
		if jobID.Valid {
			id, err := uuid.Parse(jobID.String)
			if err != nil {
				return fmt.Errorf("replay: bad job id at seq %d: %w", e.Seq, err)
			}
			e.JobID = id
		}
		if unitID.Valid {
			e.UnitID = unitID.String
		}
		if prior.Valid {
			e.Prior = store.JobStatus(prior.String)
		}
		if next.Valid {
			e.New = store.JobStatus(next.String)
		}
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LastSeq returns the highest assigned sequence number, 0 if the log is
// empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM transaction_log").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

func nullableStatus(s store.JobStatus) any {
	if s == "" {
		return nil
	}
	return string(s)
}

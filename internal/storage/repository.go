package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        object_id, candid, topic, emitted_jd, received_utc, payload_json
    ) VALUES (?, ?, ?, ?, ?, ?);`

	insertDecisionSQL = `INSERT INTO decisions (
        object_id, candid, topic, decided_utc, passed, reason, metrics_json
    ) VALUES (?, ?, ?, ?, ?, ?, ?);`

	insertRegistryActionSQL = `INSERT INTO registry_actions (
        object_id, candid, action_utc, action, outcome, detail
    ) VALUES (?, ?, ?, ?, ?, ?);`

	hasSubmissionSQL = `SELECT 1 FROM registry_actions
    WHERE object_id = ? AND action = 'submit'
    LIMIT 1;`

	listRecentDecisionsSQL = `SELECT
        object_id, candid, topic, decided_utc, passed, reason, metrics_json
    FROM decisions
    ORDER BY id DESC
    LIMIT ?;`

	listDecisionsBetweenSQL = `SELECT
        object_id, candid, topic, decided_utc, passed, reason, metrics_json
    FROM decisions
    WHERE decided_utc >= ? AND decided_utc < ?
    ORDER BY id;`
)

// AuditLog is the write surface plus the single read query the duplicate
// resolver needs.
type AuditLog interface {
	InsertAlert(ctx context.Context, rec AlertRecord) error
	InsertDecision(ctx context.Context, rec DecisionRecord) error
	InsertRegistryAction(ctx context.Context, rec RegistryActionRecord) error
	HasSubmission(ctx context.Context, objectID string) (bool, error)
}

// DecisionReader serves the operator-facing show/export commands.
type DecisionReader interface {
	ListRecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error)
	ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]DecisionRecord, error)
}

// InsertAlert appends a received raw alert.
func (s *Store) InsertAlert(ctx context.Context, rec AlertRecord) error {
	_, err := s.db.ExecContext(ctx, insertAlertSQL,
		rec.ObjectID,
		rec.Candid,
		rec.Topic,
		rec.EmittedJD,
		rec.ReceivedAt.UTC().Format(time.RFC3339Nano),
		string(rec.Payload),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// InsertDecision appends a filter verdict.
func (s *Store) InsertDecision(ctx context.Context, rec DecisionRecord) error {
	passed := 0
	if rec.Passed {
		passed = 1
	}
	_, err := s.db.ExecContext(ctx, insertDecisionSQL,
		rec.ObjectID,
		rec.Candid,
		rec.Topic,
		rec.DecidedAt.UTC().Format(time.RFC3339Nano),
		passed,
		rec.Reason,
		string(rec.Metrics),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// InsertRegistryAction appends a dedup check or submission outcome.
func (s *Store) InsertRegistryAction(ctx context.Context, rec RegistryActionRecord) error {
	_, err := s.db.ExecContext(ctx, insertRegistryActionSQL,
		rec.ObjectID,
		rec.Candid,
		rec.At.UTC().Format(time.RFC3339Nano),
		rec.Action,
		rec.Outcome,
		rec.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert registry action: %w", err)
	}
	return nil
}

// HasSubmission reports whether a submit action was ever recorded for the
// object id, regardless of outcome. This is the local dedup layer.
func (s *Store) HasSubmission(ctx context.Context, objectID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, hasSubmissionSQL, objectID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query submissions: %w", err)
	}
	return true, nil
}

// ListRecentDecisions returns the newest decisions first.
func (s *Store) ListRecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, listRecentDecisionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// ListDecisionsBetween returns decisions in [from, to) in insertion order.
func (s *Store) ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, listDecisionsBetweenSQL,
		from.UTC().Format(time.RFC3339Nano),
		to.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions between: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanDecisions(rows rowScanner) ([]DecisionRecord, error) {
	decisions := make([]DecisionRecord, 0)
	for rows.Next() {
		var (
			rec     DecisionRecord
			decided string
			passed  int
			metrics string
		)
		if err := rows.Scan(&rec.ObjectID, &rec.Candid, &rec.Topic, &decided, &passed, &rec.Reason, &metrics); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, decided)
		if err != nil {
			return nil, fmt.Errorf("parse decided_utc: %w", err)
		}
		rec.DecidedAt = ts
		rec.Passed = passed != 0
		rec.Metrics = []byte(metrics)
		decisions = append(decisions, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return decisions, nil
}

var _ AuditLog = (*Store)(nil)
var _ DecisionReader = (*Store)(nil)

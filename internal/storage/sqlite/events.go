package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/slok/restorewatch/internal/model"
)

// AppendEvent appends an event to the operation log in a single transaction, the sequence is
// the next one of the operation.
func (r *Repository) AppendEvent(ctx context.Context, ev model.ProgressEvent) (*model.ProgressEvent, error) {
	details, err := encodeDetails(ev.Details)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // Rollback is safe to call after Commit

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations WHERE id = ?`, ev.OperationID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("could not query operation: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("operation %s: %w", ev.OperationID, model.ErrNotFound)
	}

	var lastSeq int
	var lastStage string
	query := `SELECT sequence, stage FROM progress_events WHERE operation_id = ? ORDER BY sequence DESC LIMIT 1`
	err = tx.QueryRowContext(ctx, query, ev.OperationID).Scan(&lastSeq, &lastStage)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("could not get last event: %w", err)
	}

	if err := model.ValidateServerTransition(model.Stage(lastStage), ev.Stage); err != nil {
		return nil, err
	}

	ev.ID = ulid.Make().String()
	ev.Sequence = lastSeq + 1
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now().UTC()
	}

	insertQuery := `
		INSERT INTO progress_events (id, operation_id, sequence, stage, progress, message, error, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, insertQuery, ev.ID, ev.OperationID, ev.Sequence, ev.Stage, ev.Progress, ev.Message, ev.Error, details, ev.Timestamp.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("could not insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Appended event %d (%s) for operation %s", ev.Sequence, ev.Stage, ev.OperationID)
	return &ev, nil
}

// ListEvents returns the events of an operation after a sequence.
func (r *Repository) ListEvents(ctx context.Context, operationID string, afterSeq int) ([]model.ProgressEvent, error) {
	query := `
		SELECT id, operation_id, sequence, stage, progress, message, error, details, created_at
		FROM progress_events
		WHERE operation_id = ? AND sequence > ?
		ORDER BY sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, operationID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("could not query events: %w", err)
	}
	defer rows.Close()

	events := []model.ProgressEvent{}
	for rows.Next() {
		var ev model.ProgressEvent
		var details string
		var createdAt int64
		err := rows.Scan(&ev.ID, &ev.OperationID, &ev.Sequence, &ev.Stage, &ev.Progress, &ev.Message, &ev.Error, &details, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		ev.Timestamp = timeFromMilli(createdAt)
		if ev.Details, err = decodeDetails(details); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}

func encodeDetails(d map[string]string) (string, error) {
	if len(d) == 0 {
		return "", nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("could not encode details: %w", err)
	}
	return string(data), nil
}

func decodeDetails(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var d map[string]string
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, fmt.Errorf("could not decode details: %w", err)
	}
	return d, nil
}

package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/storage/sqlite"
)

func TestRepositoryAppendEventErrors(t *testing.T) {
	ev := model.ProgressEvent{OperationID: "op1", Stage: model.StageValidating}

	tests := map[string]struct {
		mock   func(m sqlmock.Sqlmock)
		expErr error
	}{
		"A begin error should fail.": {
			mock: func(m sqlmock.Sqlmock) {
				m.ExpectBegin().WillReturnError(errors.New("locked"))
			},
		},
		"A missing operation should return not found.": {
			mock: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectQuery(`SELECT COUNT\(\*\) FROM operations`).WithArgs("op1").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
				m.ExpectRollback()
			},
			expErr: model.ErrNotFound,
		},
		"An invalid transition should be rejected without insert.": {
			mock: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectQuery(`SELECT COUNT\(\*\) FROM operations`).WithArgs("op1").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
				m.ExpectQuery(`SELECT sequence, stage FROM progress_events`).WithArgs("op1").
					WillReturnRows(sqlmock.NewRows([]string{"sequence", "stage"}).AddRow(5, "restore_completed"))
				m.ExpectRollback()
			},
			expErr: model.ErrNotValid,
		},
		"An insert error should fail.": {
			mock: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectQuery(`SELECT COUNT\(\*\) FROM operations`).WithArgs("op1").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
				m.ExpectQuery(`SELECT sequence, stage FROM progress_events`).WithArgs("op1").
					WillReturnRows(sqlmock.NewRows([]string{"sequence", "stage"}).AddRow(1, "uploaded"))
				m.ExpectExec(`INSERT INTO progress_events`).WillReturnError(errors.New("disk I/O error"))
				m.ExpectRollback()
			},
		},
		"A commit error should fail.": {
			mock: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectQuery(`SELECT COUNT\(\*\) FROM operations`).WithArgs("op1").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
				m.ExpectQuery(`SELECT sequence, stage FROM progress_events`).WithArgs("op1").
					WillReturnRows(sqlmock.NewRows([]string{"sequence", "stage"}).AddRow(1, "uploaded"))
				m.ExpectExec(`INSERT INTO progress_events`).WillReturnResult(sqlmock.NewResult(1, 1))
				m.ExpectCommit().WillReturnError(errors.New("disk full"))
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			db, m, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			test.mock(m)
			repo := sqlite.NewRepositoryFromDB(db, log.Noop)

			_, err = repo.AppendEvent(context.TODO(), ev)
			require.Error(t, err)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			}
			assert.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestRepositoryGetOperationQueryError(t *testing.T) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m.ExpectQuery(`SELECT id, kind, encrypted, filename, artifact_ref, started_at`).WithArgs("op1").
		WillReturnError(errors.New("connection reset"))

	repo := sqlite.NewRepositoryFromDB(db, log.Noop)
	_, err = repo.GetOperation(context.TODO(), "op1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, m.ExpectationsWereMet())
}

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/storage/sqlite"
)

var startedAt = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

func operationFixture(id string) model.Operation {
	return model.Operation{
		ID:          id,
		Kind:        model.KindDatabase,
		Encrypted:   true,
		Filename:    "backup.sql.enc",
		ArtifactRef: "artifacts/" + id,
		StartedAt:   startedAt,
	}
}

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepositoryOperations(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	op := operationFixture("op1")
	require.NoError(repo.CreateOperation(ctx, op))

	got, err := repo.GetOperation(ctx, "op1")
	require.NoError(err)
	assert.Equal(op, *got)

	op.ArtifactRef = ""
	require.NoError(repo.UpdateOperation(ctx, op))
	got, err = repo.GetOperation(ctx, "op1")
	require.NoError(err)
	assert.Empty(got.ArtifactRef)

	_, err = repo.GetOperation(ctx, "missing")
	assert.ErrorIs(err, model.ErrNotFound)

	err = repo.UpdateOperation(ctx, operationFixture("missing"))
	assert.ErrorIs(err, model.ErrNotFound)
}

func TestRepositoryConstraints(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.CreateOperation(ctx, operationFixture("op1")))
	err := repo.CreateOperation(ctx, operationFixture("op1"))
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	err = repo.CreateOperation(ctx, model.Operation{})
	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestRepositoryEvents(t *testing.T) {
	tests := map[string]struct {
		stages    []model.Stage
		expSeqs   []int
		expErrIdx int
	}{
		"A valid lifecycle should be sequenced.": {
			stages:    []model.Stage{model.StageUploaded, model.StageRestoreStarted, model.StageExtracting, model.StageRestoreCompleted},
			expSeqs:   []int{1, 2, 3, 4},
			expErrIdx: -1,
		},
		"A first event that is not uploaded should be rejected.": {
			stages:    []model.Stage{model.StageExtracting},
			expErrIdx: 0,
		},
		"An event after a terminal stage should be rejected.": {
			stages:    []model.Stage{model.StageUploaded, model.StageRestoreFailed, model.StageFinalizing},
			expSeqs:   []int{1, 2},
			expErrIdx: 2,
		},
		"A client local stage should be rejected.": {
			stages:    []model.Stage{model.StageUploaded, model.StageUploading},
			expSeqs:   []int{1},
			expErrIdx: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()
			repo := newRepo(t)
			require.NoError(repo.CreateOperation(ctx, operationFixture("op1")))

			for i, st := range test.stages {
				ev, err := repo.AppendEvent(ctx, model.ProgressEvent{
					OperationID: "op1",
					Stage:       st,
					Progress:    i * 10,
					Message:     string(st),
					Details:     map[string]string{"step": string(st)},
				})
				if i == test.expErrIdx {
					assert.ErrorIs(err, model.ErrNotValid)
					break
				}
				require.NoError(err)
				assert.NotEmpty(ev.ID)
				assert.False(ev.Timestamp.IsZero())
			}

			events, err := repo.ListEvents(ctx, "op1", 0)
			require.NoError(err)
			var seqs []int
			for _, e := range events {
				seqs = append(seqs, e.Sequence)
				assert.Equal(map[string]string{"step": string(e.Stage)}, e.Details)
			}
			assert.Equal(test.expSeqs, seqs)
		})
	}
}

func TestRepositoryListEventsAfter(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(repo.CreateOperation(ctx, operationFixture("op1")))

	for _, st := range []model.Stage{model.StageUploaded, model.StageValidating, model.StageExtracting} {
		_, err := repo.AppendEvent(ctx, model.ProgressEvent{OperationID: "op1", Stage: st, Timestamp: startedAt})
		require.NoError(err)
	}

	events, err := repo.ListEvents(ctx, "op1", 1)
	require.NoError(err)
	require.Len(events, 2)
	assert.Equal(model.StageValidating, events[0].Stage)
	assert.Equal(startedAt, events[0].Timestamp)

	events, err = repo.ListEvents(ctx, "unknown", 0)
	require.NoError(err)
	assert.Empty(events)

	_, err = repo.AppendEvent(ctx, model.ProgressEvent{OperationID: "unknown", Stage: model.StageUploaded})
	assert.ErrorIs(err, model.ErrNotFound)
}

func TestRepositoryListOperations(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	op1 := operationFixture("op1")
	op2 := operationFixture("op2")
	op2.StartedAt = startedAt.Add(time.Hour)
	require.NoError(repo.CreateOperation(ctx, op1))
	require.NoError(repo.CreateOperation(ctx, op2))

	_, err := repo.AppendEvent(ctx, model.ProgressEvent{OperationID: "op1", Stage: model.StageUploaded})
	require.NoError(err)
	_, err = repo.AppendEvent(ctx, model.ProgressEvent{OperationID: "op1", Stage: model.StageExtracting, Progress: 40})
	require.NoError(err)

	ops, err := repo.ListOperations(ctx)
	require.NoError(err)
	require.Len(ops, 2)

	assert.Equal("op2", ops[0].Operation.ID)
	assert.Nil(ops[0].Last)
	assert.Equal("op1", ops[1].Operation.ID)
	require.NotNil(ops[1].Last)
	assert.Equal(model.StageExtracting, ops[1].Last.Stage)
	assert.Equal(2, ops[1].Last.Sequence)
}

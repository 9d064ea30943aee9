package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/storage/memory"
)

func newRepo(t *testing.T) *memory.Repository {
	t.Helper()
	repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: log.Noop})
	require.NoError(t, err)
	return repo
}

func TestRepositoryCRUD(t *testing.T) {
	t0 := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, repo *memory.Repository) error
		expErr  error
	}{
		"Creating an operation should work.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				op := model.Operation{ID: "op1", Kind: model.KindFiles, Filename: "files.zip", StartedAt: t0}
				if err := repo.CreateOperation(ctx, op); err != nil {
					return err
				}
				got, err := repo.GetOperation(ctx, "op1")
				require.NoError(t, err)
				assert.Equal(t, op, *got)
				return nil
			},
		},
		"Creating a duplicated operation should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				op := model.Operation{ID: "op1", StartedAt: t0}
				require.NoError(t, repo.CreateOperation(ctx, op))
				return repo.CreateOperation(ctx, op)
			},
			expErr: model.ErrAlreadyExists,
		},
		"Getting a missing operation should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				_, err := repo.GetOperation(ctx, "op1")
				return err
			},
			expErr: model.ErrNotFound,
		},
		"Updating a missing operation should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				return repo.UpdateOperation(ctx, model.Operation{ID: "op1"})
			},
			expErr: model.ErrNotFound,
		},
		"Appending an event to a missing operation should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				_, err := repo.AppendEvent(ctx, model.ProgressEvent{OperationID: "op1", Stage: model.StageUploaded})
				return err
			},
			expErr: model.ErrNotFound,
		},
		"Appending an event after a terminal one should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.CreateOperation(ctx, model.Operation{ID: "op1"}))
				_, err := repo.AppendEvent(ctx, model.ProgressEvent{OperationID: "op1", Stage: model.StageUploaded})
				require.NoError(t, err)
				_, err = repo.AppendEvent(ctx, model.ProgressEvent{OperationID: "op1", Stage: model.StageRestoreCompleted, Progress: 100})
				require.NoError(t, err)
				_, err = repo.AppendEvent(ctx, model.ProgressEvent{OperationID: "op1", Stage: model.StageFinalizing})
				return err
			},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			err := test.actions(context.Background(), t, repo)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRepositoryEventsSequence(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(repo.CreateOperation(ctx, model.Operation{ID: "op1"}))
	_, err := repo.AppendEvent(ctx, model.ProgressEvent{OperationID: "op1", Stage: model.StageUploaded})
	require.NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.AppendEvent(ctx, model.ProgressEvent{OperationID: "op1", Stage: model.StageExtracting, Progress: i})
			assert.NoError(err)
		}(i)
	}
	wg.Wait()

	events, err := repo.ListEvents(ctx, "op1", 0)
	require.NoError(err)
	require.Len(events, 21)
	for i, ev := range events {
		assert.Equal(i+1, ev.Sequence)
	}

	events, err = repo.ListEvents(ctx, "op1", 19)
	require.NoError(err)
	assert.Len(events, 2)

	ops, err := repo.ListOperations(ctx)
	require.NoError(err)
	require.Len(ops, 1)
	require.NotNil(ops[0].Last)
	assert.Equal(21, ops[0].Last.Sequence)
}

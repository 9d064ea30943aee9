package server_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/app/restore"
	"github.com/slok/restorewatch/internal/artifact"
	"github.com/slok/restorewatch/internal/artifactstore"
	"github.com/slok/restorewatch/internal/credential"
	"github.com/slok/restorewatch/internal/emitter"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/reconcile"
	"github.com/slok/restorewatch/internal/runner"
	"github.com/slok/restorewatch/internal/server"
	"github.com/slok/restorewatch/internal/stream"
	"github.com/slok/restorewatch/internal/upload"
)

func newRestoreService(t *testing.T, c *api.Client) *restore.Service {
	t.Helper()

	creds, err := credential.NewServerProvider(credential.ServerProviderConfig{Bearer: c.Bearer(), Requester: c})
	require.NoError(t, err)
	orch, err := upload.NewOrchestrator(upload.OrchestratorConfig{Credentials: creds, Initiator: c})
	require.NoError(t, err)
	watcher, err := stream.NewWatcher(stream.WatcherConfig{Subscriber: stream.NewAPISubscriber(c)})
	require.NoError(t, err)
	rec, err := reconcile.NewReconciler(reconcile.ReconcilerConfig{History: c, Backoff: 10 * time.Millisecond})
	require.NoError(t, err)

	svc, err := restore.NewService(restore.ServiceConfig{Uploader: orch, Watcher: watcher, Reconciler: rec, Canceler: c})
	require.NoError(t, err)
	return svc
}

func TestRestoreEndToEnd(t *testing.T) {
	const dump = "CREATE TABLE grades (id INT);\nINSERT INTO grades VALUES (1);\nINSERT INTO grades VALUES (2);\n"

	tests := map[string]struct {
		key       string
		expStages []model.Stage
		expErr    string
	}{
		"An encrypted dump with the right key should be restored.": {
			key: "s3cret",
			expStages: []model.Stage{
				model.StageUploaded, model.StageRestoreStarted, model.StageValidating, model.StageDecrypting,
				model.StageExtracting, model.StageRestoringDatabase, model.StageFinalizing, model.StageRestoreCompleted,
			},
		},

		"An encrypted dump with a wrong key should fail with the server error.": {
			key:    "wrong",
			expErr: "could not decrypt artifact",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			// Real runner behind the server.
			var r *runner.Runner
			ts := newTestServer(t, func(hub *emitter.Hub, store artifactstore.Store) server.JobRunner {
				var err error
				r, err = runner.NewRunner(runner.RunnerConfig{Emitter: hub, Store: store, WorkDir: t.TempDir()})
				require.NoError(err)
				return r
			})

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			go func() { _ = r.Run(ctx) }()

			var sealed bytes.Buffer
			require.NoError(artifact.Seal(&sealed, bytes.NewBufferString(dump), "s3cret"))

			var terminals int
			svc := newRestoreService(t, ts.client(t, testBearer))
			resp, err := svc.Run(ctx, restore.Request{
				Artifact:      &sealed,
				Filename:      "grades.sql.enc",
				DecryptionKey: test.key,
				OnTerminal:    func(model.ClientView) { terminals++ },
			})

			assert.Equal(1, terminals)
			if test.expErr != "" {
				var tf *model.TerminalFailure
				require.True(errors.As(err, &tf), err)
				assert.Contains(tf.Message, test.expErr)
				return
			}
			require.NoError(err)

			assert.Equal(model.Classification{Kind: model.KindDatabase, Encrypted: true}, resp.Classification)
			assert.Equal(model.StageRestoreCompleted, resp.View.CurrentStage)
			assert.True(resp.View.Terminal)
			assert.Nil(resp.View.Remaining)
			assert.Equal("3", resp.View.Details["entries"])

			var stages []model.Stage
			for _, ev := range resp.View.History {
				if n := len(stages); n > 0 && stages[n-1] == ev.Stage {
					continue
				}
				stages = append(stages, ev.Stage)
			}
			assert.Equal(test.expStages, stages)
		})
	}
}

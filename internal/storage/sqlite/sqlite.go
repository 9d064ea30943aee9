package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	now    func() time.Time
	logger log.Logger
}

// NewRepository opens the database, runs the migrations and returns the repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return NewRepositoryFromDB(db, cfg.Logger), nil
}

// NewRepositoryFromDB returns a repository on an already migrated database.
func NewRepositoryFromDB(db *sql.DB, logger log.Logger) *Repository {
	if logger == nil {
		logger = log.Noop
	}
	return &Repository{db: db, now: time.Now, logger: logger}
}

// DB returns the underlying database.
func (r *Repository) DB() *sql.DB { return r.db }

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateOperation stores a new operation.
func (r *Repository) CreateOperation(ctx context.Context, op model.Operation) error {
	if op.ID == "" {
		return fmt.Errorf("operation id is required: %w", model.ErrNotValid)
	}

	query := `
		INSERT INTO operations (id, kind, encrypted, filename, artifact_ref, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, op.ID, op.Kind, op.Encrypted, op.Filename, op.ArtifactRef, op.StartedAt.UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: operations.") {
			return fmt.Errorf("operation already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert operation: %w", err)
	}

	r.logger.Debugf("Created operation in repository: %s", op.ID)
	return nil
}

// GetOperation retrieves an operation by ID.
func (r *Repository) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	query := `
		SELECT id, kind, encrypted, filename, artifact_ref, started_at
		FROM operations
		WHERE id = ?
	`

	var op model.Operation
	var startedAt int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&op.ID, &op.Kind, &op.Encrypted, &op.Filename, &op.ArtifactRef, &startedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query operation: %w", err)
	}
	op.StartedAt = timeFromMilli(startedAt)

	return &op, nil
}

// ListOperations returns all operations with their latest event.
func (r *Repository) ListOperations(ctx context.Context) ([]model.OperationSummary, error) {
	query := `
		SELECT
			o.id, o.kind, o.encrypted, o.filename, o.artifact_ref, o.started_at,
			e.id, e.sequence, e.stage, e.progress, e.message, e.error, e.details, e.created_at
		FROM operations o
		LEFT JOIN progress_events e ON e.operation_id = o.id AND e.sequence = (
			SELECT MAX(sequence) FROM progress_events WHERE operation_id = o.id
		)
		ORDER BY o.started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query operations: %w", err)
	}
	defer rows.Close()

	var ops []model.OperationSummary
	for rows.Next() {
		var (
			op                     model.Operation
			startedAt              int64
			evID, stage, msg, eErr sql.NullString
			details                sql.NullString
			seq, prog, createdAt   sql.NullInt64
		)
		err := rows.Scan(
			&op.ID, &op.Kind, &op.Encrypted, &op.Filename, &op.ArtifactRef, &startedAt,
			&evID, &seq, &stage, &prog, &msg, &eErr, &details, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		op.StartedAt = timeFromMilli(startedAt)

		s := model.OperationSummary{Operation: op}
		if evID.Valid {
			d, err := decodeDetails(details.String)
			if err != nil {
				return nil, err
			}
			s.Last = &model.ProgressEvent{
				ID:          evID.String,
				OperationID: op.ID,
				Sequence:    int(seq.Int64),
				Stage:       model.Stage(stage.String),
				Progress:    int(prog.Int64),
				Message:     msg.String,
				Error:       eErr.String,
				Details:     d,
				Timestamp:   timeFromMilli(createdAt.Int64),
			}
		}
		ops = append(ops, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ops, nil
}

// UpdateOperation updates an existing operation.
func (r *Repository) UpdateOperation(ctx context.Context, op model.Operation) error {
	query := `
		UPDATE operations
		SET kind = ?, encrypted = ?, filename = ?, artifact_ref = ?, started_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, op.Kind, op.Encrypted, op.Filename, op.ArtifactRef, op.StartedAt.UnixMilli(), op.ID)
	if err != nil {
		return fmt.Errorf("could not update operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("operation %s: %w", op.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated operation in repository: %s", op.ID)
	return nil
}

func timeFromMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/get2b/get2b-go/internal/repo"
)

// Store is the production repo.Store backed by Postgres.
type Store struct {
	db *sql.DB
	repositories
}

type repositories struct {
	projects  *ProjectStore
	scenarios *ScenarioStore
	deltas    *DeltaStore
	audit     *AuditStore
}

func newRepositories(db DB) repositories {
	return repositories{
		projects:  NewProjectStore(db),
		scenarios: NewScenarioStore(db),
		deltas:    NewDeltaStore(db),
		audit:     NewAuditStore(db),
	}
}

func (r repositories) Projects() repo.ProjectRepository   { return r.projects }
func (r repositories) Scenarios() repo.ScenarioRepository { return r.scenarios }
func (r repositories) Deltas() repo.DeltaRepository       { return r.deltas }
func (r repositories) Audit() repo.AuditRepository        { return r.audit }

func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db, repositories: newRepositories(db)}, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repo.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, newRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

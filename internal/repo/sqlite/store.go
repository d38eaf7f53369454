package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/get2b/get2b-go/internal/repo"
)

// Store is an embedded repo.Store for single-node deployments and tests.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
	repositories
}

type repositories struct {
	projects  *ProjectStore
	scenarios *ScenarioStore
	deltas    *DeltaStore
	audit     *AuditStore
}

func (r repositories) Projects() repo.ProjectRepository   { return r.projects }
func (r repositories) Scenarios() repo.ScenarioRepository { return r.scenarios }
func (r repositories) Deltas() repo.DeltaRepository       { return r.deltas }
func (r repositories) Audit() repo.AuditRepository        { return r.audit }

func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	s := &Store{db: db, now: time.Now, newID: defaultID}
	s.repositories = s.bind(db)
	return s, nil
}

// Open is OpenDB followed by NewStore.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewStore(db)
}

func (s *Store) bind(db DB) repositories {
	now := func() time.Time { return s.now() }
	newID := func() string { return s.newID() }
	return repositories{
		projects:  &ProjectStore{db: db, now: now},
		scenarios: &ScenarioStore{db: db, now: now, newID: newID},
		deltas:    &DeltaStore{db: db, now: now, newID: newID},
		audit:     &AuditStore{db: db},
	}
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

	if err := fn(ctx, s.bind(tx)); err != nil {
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

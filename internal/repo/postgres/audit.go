package postgres

import (
	"context"
	"fmt"

	"github.com/get2b/get2b-go/internal/platform/auditlog"
)

type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	if db == nil {
		return nil
	}
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(ctx context.Context, event auditlog.Event) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit store not initialized")
	}
	if _, err := auditlog.Insert(ctx, s.db, event); err != nil {
		return err
	}
	return nil
}

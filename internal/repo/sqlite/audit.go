package sqlite

import (
	"context"
	"fmt"

	"github.com/get2b/get2b-go/internal/platform/auditlog"
)

type AuditStore struct {
	db DB
}

func (s *AuditStore) Append(ctx context.Context, event auditlog.Event) error {
	rec, err := auditlog.Prepare(event)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (occurred_at, actor, action, resource_type, resource_id,
			request_id, ip, user_agent, payload, integrity_sha256)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(rec.OccurredAt), rec.Actor, rec.Action, rec.ResourceType, rec.ResourceID,
		rec.RequestID, rec.IP, rec.UserAgent, string(rec.PayloadJSON), rec.IntegritySHA256,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"log"
	"time"

	"univ_erp/backend/internal/shared"
)

// LogAuditEvent records an audit event on behalf of the caller in ctx.
// A failure is logged and returned; callers treat it as non-fatal.
func LogAuditEvent(ctx context.Context, audit AuditLog, action, resource string, details map[string]interface{}) error {
	if audit == nil {
		return nil
	}

	event := shared.AuditEvent{
		ID:        shared.GenerateAuditLogID(),
		Timestamp: time.Now().UTC(),
		UserID:    shared.CallerFromContext(ctx).UserID,
		Action:    action,
		Resource:  resource,
		Details:   details,
	}

	if err := audit.RecordAudit(ctx, event); err != nil {
		log.Printf("Warning: Failed to log audit event %s on %s: %v", action, resource, err)
		return err
	}
	return nil
}

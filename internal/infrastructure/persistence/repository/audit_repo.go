package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/workflow-station/task-engine/internal/application/port"
	"github.com/workflow-station/task-engine/internal/domain/entity"
	"go.uber.org/zap"
)

// AuditRepository implements port.AuditSink on SQLite. Events are append-only.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Record persists one audit event
func (r *AuditRepository) Record(ctx context.Context, event *entity.DelegationAudit) error {
	query := `
		INSERT INTO delegation_audits (
			event_id, delegator_id, delegate_id, task_id,
			operation_type, result, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var taskID sql.NullString
	if event.TaskID != "" {
		taskID = sql.NullString{String: event.TaskID, Valid: true}
	}

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		event.EventID,
		event.DelegatorID,
		event.DelegateID,
		taskID,
		event.OperationType,
		event.Result,
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record audit event",
			zap.String("event_id", event.EventID),
			zap.String("operation", event.OperationType),
			zap.Error(err))
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	return nil
}

// FindByDelegator lists audit events for a delegator, newest first
func (r *AuditRepository) FindByDelegator(ctx context.Context, delegatorID string, limit int) ([]*entity.DelegationAudit, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, delegator_id, delegate_id, task_id,
			operation_type, result, detail, created_at
		FROM delegation_audits
		WHERE delegator_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, delegatorID, limit)
	if err != nil {
		r.logger.Error("Failed to query audit events",
			zap.String("delegator_id", delegatorID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*entity.DelegationAudit
	for rows.Next() {
		var event entity.DelegationAudit
		var taskID sql.NullString

		err := rows.Scan(
			&event.EventID,
			&event.DelegatorID,
			&event.DelegateID,
			&taskID,
			&event.OperationType,
			&event.Result,
			&event.Detail,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if taskID.Valid {
			event.TaskID = taskID.String
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *AuditRepository) getExecutor(ctx context.Context) executor {
	if tx, ok := ctx.Value(contextKey("tx")).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.AuditSink = (*AuditRepository)(nil)

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/workflow-station/task-engine/internal/application/port"
	"github.com/workflow-station/task-engine/internal/domain/entity"
	"go.uber.org/zap"
)

const ruleColumns = `
	id, delegator_id, delegate_id, delegation_type, process_types,
	start_time, end_time, status, reason, created_at, updated_at
`

// DelegationRuleRepository implements port.DelegationRuleRepository on SQLite.
// Process type scopes are stored as a JSON array in a single column.
type DelegationRuleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDelegationRuleRepository creates a new delegation rule repository
func NewDelegationRuleRepository(db *sql.DB, logger *zap.Logger) port.DelegationRuleRepository {
	return &DelegationRuleRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID retrieves a rule by id, returning nil when absent
func (r *DelegationRuleRepository) FindByID(ctx context.Context, ruleID int64) (*entity.DelegationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM delegation_rules WHERE id = ?`

	rule, err := r.scanRule(r.getExecutor(ctx).QueryRowContext(ctx, query, ruleID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get delegation rule by ID",
			zap.Int64("rule_id", ruleID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get delegation rule: %w", err)
	}

	return rule, nil
}

// FindByDelegator retrieves all rules owned by the delegator
func (r *DelegationRuleRepository) FindByDelegator(ctx context.Context, delegatorID string) ([]*entity.DelegationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM delegation_rules
		WHERE delegator_id = ?
		ORDER BY created_at DESC
	`
	return r.queryRules(ctx, query, delegatorID)
}

// FindActiveByDelegator retrieves the delegator's ACTIVE rules
func (r *DelegationRuleRepository) FindActiveByDelegator(ctx context.Context, delegatorID string) ([]*entity.DelegationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM delegation_rules
		WHERE delegator_id = ? AND status = ?
		ORDER BY created_at DESC
	`
	return r.queryRules(ctx, query, delegatorID, entity.DelegationStatusActive)
}

// FindActiveByDelegate retrieves ACTIVE rules naming the user as delegate
func (r *DelegationRuleRepository) FindActiveByDelegate(ctx context.Context, delegateID string) ([]*entity.DelegationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM delegation_rules
		WHERE delegate_id = ? AND status = ?
		ORDER BY created_at DESC
	`
	return r.queryRules(ctx, query, delegateID, entity.DelegationStatusActive)
}

// Save inserts the rule (assigning ID) or updates it when ID is set
func (r *DelegationRuleRepository) Save(ctx context.Context, rule *entity.DelegationRule) error {
	processTypes, err := json.Marshal(rule.ProcessTypes)
	if err != nil {
		return fmt.Errorf("failed to encode process types: %w", err)
	}

	var startTime, endTime sql.NullTime
	if rule.StartTime != nil {
		startTime = sql.NullTime{Time: *rule.StartTime, Valid: true}
	}
	if rule.EndTime != nil {
		endTime = sql.NullTime{Time: *rule.EndTime, Valid: true}
	}

	if rule.ID == 0 {
		query := `
			INSERT INTO delegation_rules (
				delegator_id, delegate_id, delegation_type, process_types,
				start_time, end_time, status, reason
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		result, err := r.getExecutor(ctx).ExecContext(ctx, query,
			rule.DelegatorID,
			rule.DelegateID,
			rule.DelegationType,
			string(processTypes),
			startTime,
			endTime,
			rule.Status,
			rule.Reason,
		)
		if err != nil {
			r.logger.Error("Failed to create delegation rule",
				zap.String("delegator_id", rule.DelegatorID),
				zap.Error(err))
			return fmt.Errorf("failed to create delegation rule: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		rule.ID = id
		return nil
	}

	query := `
		UPDATE delegation_rules
		SET delegate_id = ?, delegation_type = ?, process_types = ?,
			start_time = ?, end_time = ?, status = ?, reason = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	_, err = r.getExecutor(ctx).ExecContext(ctx, query,
		rule.DelegateID,
		rule.DelegationType,
		string(processTypes),
		startTime,
		endTime,
		rule.Status,
		rule.Reason,
		rule.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update delegation rule",
			zap.Int64("rule_id", rule.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update delegation rule: %w", err)
	}

	return nil
}

// Delete removes the rule
func (r *DelegationRuleRepository) Delete(ctx context.Context, ruleID int64) error {
	query := `DELETE FROM delegation_rules WHERE id = ?`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query, ruleID)
	if err != nil {
		r.logger.Error("Failed to delete delegation rule",
			zap.Int64("rule_id", ruleID),
			zap.Error(err))
		return fmt.Errorf("failed to delete delegation rule: %w", err)
	}

	return nil
}

func (r *DelegationRuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*entity.DelegationRule, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query delegation rules", zap.Error(err))
		return nil, fmt.Errorf("failed to query delegation rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.DelegationRule
	for rows.Next() {
		rule, err := scanRuleFields(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delegation rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// scanRule scans a single rule row
func (r *DelegationRuleRepository) scanRule(row *sql.Row) (*entity.DelegationRule, error) {
	return scanRuleFields(row.Scan)
}

func scanRuleFields(scan func(dest ...interface{}) error) (*entity.DelegationRule, error) {
	var rule entity.DelegationRule
	var processTypes string
	var startTime, endTime sql.NullTime

	err := scan(
		&rule.ID,
		&rule.DelegatorID,
		&rule.DelegateID,
		&rule.DelegationType,
		&processTypes,
		&startTime,
		&endTime,
		&rule.Status,
		&rule.Reason,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if processTypes != "" {
		if err := json.Unmarshal([]byte(processTypes), &rule.ProcessTypes); err != nil {
			return nil, fmt.Errorf("failed to decode process types: %w", err)
		}
	}
	if startTime.Valid {
		rule.StartTime = &startTime.Time
	}
	if endTime.Valid {
		rule.EndTime = &endTime.Time
	}

	return &rule, nil
}

// getExecutor returns appropriate executor based on context
func (r *DelegationRuleRepository) getExecutor(ctx context.Context) executor {
	if tx, ok := ctx.Value(contextKey("tx")).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.DelegationRuleRepository = (*DelegationRuleRepository)(nil)

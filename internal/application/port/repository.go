package port

import (
	"context"

	"github.com/workflow-station/task-engine/internal/domain/entity"
)

// TaskRepository defines persistence operations for Task.
//
// ConditionalUpdate is the single atomic primitive the claim protocol relies
// on: the transition is applied only when the stored (assignment_type,
// assignee, delegator_id) triple still equals expected, and the boolean
// result reports whether this caller won the transition.
type TaskRepository interface {
	// FindByID retrieves a task by id, returning nil when absent.
	FindByID(ctx context.Context, taskID string) (*entity.Task, error)

	// FindByAssignee retrieves tasks whose assignee equals the given user id
	// with assignment type USER or DELEGATED.
	FindByAssignee(ctx context.Context, userID string) ([]*entity.Task, error)

	// FindByPoolKey retrieves pooled tasks for a group id or dept-role key.
	FindByPoolKey(ctx context.Context, poolType, poolKey string) ([]*entity.Task, error)

	// Save inserts or replaces a task record.
	Save(ctx context.Context, task *entity.Task) error

	// ConditionalUpdate transitions the guarded state iff it still equals
	// expected. Returns false (and no error) when the guard fails.
	ConditionalUpdate(ctx context.Context, taskID string, expected, next entity.TaskState) (bool, error)

	// Remove deletes a task from active visibility (terminal completion).
	Remove(ctx context.Context, taskID string) error
}

// DelegationRuleRepository defines persistence operations for DelegationRule.
// Writes for a given delegator are serialized by the delegation service; the
// repository itself only needs per-statement atomicity.
type DelegationRuleRepository interface {
	// FindByID retrieves a rule by id, returning nil when absent.
	FindByID(ctx context.Context, ruleID int64) (*entity.DelegationRule, error)

	// FindByDelegator retrieves all rules owned by the delegator.
	FindByDelegator(ctx context.Context, delegatorID string) ([]*entity.DelegationRule, error)

	// FindActiveByDelegator retrieves the delegator's ACTIVE rules.
	FindActiveByDelegator(ctx context.Context, delegatorID string) ([]*entity.DelegationRule, error)

	// FindActiveByDelegate retrieves ACTIVE rules naming the user as delegate.
	FindActiveByDelegate(ctx context.Context, delegateID string) ([]*entity.DelegationRule, error)

	// Save inserts the rule (assigning ID) or updates it when ID is set.
	Save(ctx context.Context, rule *entity.DelegationRule) error

	// Delete removes the rule.
	Delete(ctx context.Context, ruleID int64) error
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/workflow-station/task-engine/internal/application/port"
	"github.com/workflow-station/task-engine/internal/domain/entity"
	"go.uber.org/zap"
)

const taskColumns = `
	task_id, name, description, process_instance_id, process_definition_key,
	assignment_type, assignee, delegator_id,
	priority, status, create_time, due_time, overdue
`

// TaskRepository implements port.TaskRepository on SQLite
type TaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sql.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID retrieves a task by id, returning nil when absent
func (r *TaskRepository) FindByID(ctx context.Context, taskID string) (*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE task_id = ?`

	task, err := r.scanTask(r.getExecutor(ctx).QueryRowContext(ctx, query, taskID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get task by ID",
			zap.String("task_id", taskID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// FindByAssignee retrieves tasks directly held by the user
func (r *TaskRepository) FindByAssignee(ctx context.Context, userID string) ([]*entity.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE assignee = ? AND assignment_type IN (?, ?)
		ORDER BY create_time
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, userID, entity.AssignmentUser, entity.AssignmentDelegated)
	if err != nil {
		r.logger.Error("Failed to get tasks by assignee",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

// FindByPoolKey retrieves pooled tasks for a group id or dept-role key
func (r *TaskRepository) FindByPoolKey(ctx context.Context, poolType, poolKey string) ([]*entity.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE assignment_type = ? AND assignee = ?
		ORDER BY create_time
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, poolType, poolKey)
	if err != nil {
		r.logger.Error("Failed to get pooled tasks",
			zap.String("pool_type", poolType),
			zap.String("pool_key", poolKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get pooled tasks: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

// Save inserts or replaces a task record
func (r *TaskRepository) Save(ctx context.Context, task *entity.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			process_instance_id = excluded.process_instance_id,
			process_definition_key = excluded.process_definition_key,
			assignment_type = excluded.assignment_type,
			assignee = excluded.assignee,
			delegator_id = excluded.delegator_id,
			priority = excluded.priority,
			status = excluded.status,
			create_time = excluded.create_time,
			due_time = excluded.due_time,
			overdue = excluded.overdue
	`

	var delegatorID sql.NullString
	if task.DelegatorID != "" {
		delegatorID = sql.NullString{String: task.DelegatorID, Valid: true}
	}
	var dueTime sql.NullTime
	if task.DueTime != nil {
		dueTime = sql.NullTime{Time: *task.DueTime, Valid: true}
	}

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		task.TaskID,
		task.Name,
		task.Description,
		task.ProcessInstanceID,
		task.ProcessDefinitionKey,
		task.AssignmentType,
		task.Assignee,
		delegatorID,
		task.Priority,
		task.Status,
		task.CreateTime,
		dueTime,
		task.Overdue,
	)
	if err != nil {
		r.logger.Error("Failed to save task",
			zap.String("task_id", task.TaskID),
			zap.Error(err))
		return fmt.Errorf("failed to save task: %w", err)
	}

	return nil
}

// ConditionalUpdate applies the assignment transition only when the stored
// state still equals expected. The guard and the write are one statement, so
// concurrent claimers race on RowsAffected rather than on a read-then-write.
func (r *TaskRepository) ConditionalUpdate(ctx context.Context, taskID string, expected, next entity.TaskState) (bool, error) {
	query := `
		UPDATE tasks
		SET assignment_type = ?, assignee = ?, delegator_id = ?
		WHERE task_id = ?
			AND assignment_type = ?
			AND assignee = ?
			AND COALESCE(delegator_id, '') = ?
	`

	var nextDelegator sql.NullString
	if next.DelegatorID != "" {
		nextDelegator = sql.NullString{String: next.DelegatorID, Valid: true}
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		next.AssignmentType,
		next.Assignee,
		nextDelegator,
		taskID,
		expected.AssignmentType,
		expected.Assignee,
		expected.DelegatorID,
	)
	if err != nil {
		r.logger.Error("Failed to update task assignment",
			zap.String("task_id", taskID),
			zap.Error(err))
		return false, fmt.Errorf("failed to update task assignment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// Remove deletes a task from active visibility
func (r *TaskRepository) Remove(ctx context.Context, taskID string) error {
	query := `DELETE FROM tasks WHERE task_id = ?`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query, taskID)
	if err != nil {
		r.logger.Error("Failed to remove task",
			zap.String("task_id", taskID),
			zap.Error(err))
		return fmt.Errorf("failed to remove task: %w", err)
	}

	return nil
}

// scanTask scans a single task row
func (r *TaskRepository) scanTask(row *sql.Row) (*entity.Task, error) {
	var task entity.Task
	var delegatorID sql.NullString
	var dueTime sql.NullTime

	err := row.Scan(
		&task.TaskID,
		&task.Name,
		&task.Description,
		&task.ProcessInstanceID,
		&task.ProcessDefinitionKey,
		&task.AssignmentType,
		&task.Assignee,
		&delegatorID,
		&task.Priority,
		&task.Status,
		&task.CreateTime,
		&dueTime,
		&task.Overdue,
	)
	if err != nil {
		return nil, err
	}

	if delegatorID.Valid {
		task.DelegatorID = delegatorID.String
	}
	if dueTime.Valid {
		task.DueTime = &dueTime.Time
	}

	return &task, nil
}

// scanTasks scans multiple task rows
func (r *TaskRepository) scanTasks(rows *sql.Rows) ([]*entity.Task, error) {
	var tasks []*entity.Task

	for rows.Next() {
		var task entity.Task
		var delegatorID sql.NullString
		var dueTime sql.NullTime

		err := rows.Scan(
			&task.TaskID,
			&task.Name,
			&task.Description,
			&task.ProcessInstanceID,
			&task.ProcessDefinitionKey,
			&task.AssignmentType,
			&task.Assignee,
			&delegatorID,
			&task.Priority,
			&task.Status,
			&task.CreateTime,
			&dueTime,
			&task.Overdue,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		if delegatorID.Valid {
			task.DelegatorID = delegatorID.String
		}
		if dueTime.Valid {
			task.DueTime = &dueTime.Time
		}

		tasks = append(tasks, &task)
	}

	return tasks, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *TaskRepository) getExecutor(ctx context.Context) executor {
	if tx, ok := ctx.Value(contextKey("tx")).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type contextKey string

// WithTx returns a context that routes repository calls through tx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, contextKey("tx"), tx)
}

// Verify interface compliance
var _ port.TaskRepository = (*TaskRepository)(nil)

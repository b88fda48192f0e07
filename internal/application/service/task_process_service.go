package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/workflow-station/task-engine/internal/application/port"
	"github.com/workflow-station/task-engine/internal/domain/assignment"
	"github.com/workflow-station/task-engine/internal/domain/entity"
)

// TaskCompleteRequest carries a completion action for a task.
type TaskCompleteRequest struct {
	TaskID       string `json:"task_id"`
	Action       string `json:"action"`
	Comment      string `json:"comment,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`
}

// TaskProcessService implements claim, delegation, transfer, and completion
// of tasks. Authorization is re-derived on every mutation from the same
// engines the visibility query uses.
type TaskProcessService interface {
	Claim(ctx context.Context, taskID, userID string) (*entity.Task, error)
	Unclaim(ctx context.Context, taskID, userID, poolType, poolKey string) (*entity.Task, error)
	Delegate(ctx context.Context, taskID, fromUserID, toUserID, reason string) error
	Transfer(ctx context.Context, taskID, fromUserID, toUserID, reason string) error
	CompleteTask(ctx context.Context, req TaskCompleteRequest, userID string) error
	CanProcessTask(ctx context.Context, task *entity.Task, userID string) (bool, error)
}

type taskProcessServiceImpl struct {
	taskRepo    port.TaskRepository
	delegations DelegationService
	resolver    *assignment.Resolver
	directory   port.Directory
	audit       port.AuditSink
	notifier    port.ProcessEngineNotifier
	logger      Logger
}

// NewTaskProcessService creates a new TaskProcessService.
func NewTaskProcessService(
	taskRepo port.TaskRepository,
	delegations DelegationService,
	resolver *assignment.Resolver,
	directory port.Directory,
	audit port.AuditSink,
	notifier port.ProcessEngineNotifier,
	logger Logger,
) TaskProcessService {
	return &taskProcessServiceImpl{
		taskRepo:    taskRepo,
		delegations: delegations,
		resolver:    resolver,
		directory:   directory,
		audit:       audit,
		notifier:    notifier,
		logger:      logger,
	}
}

// CanProcessTask reports whether the user may act on the task: the current
// assignee, an effective delegate of the owner, or a pool member (pool
// members may act without claiming first).
func (s *taskProcessServiceImpl) CanProcessTask(ctx context.Context, task *entity.Task, userID string) (bool, error) {
	if userID == task.Assignee {
		return true, nil
	}

	// A USER task's owner may be stood in for by their effective delegates;
	// for a DELEGATED task the chain anchors on the original delegator.
	principal := ""
	switch {
	case task.AssignmentType == entity.AssignmentUser:
		principal = task.Assignee
	case task.DelegatorID != "":
		principal = task.DelegatorID
	}
	if principal != "" {
		delegators, err := s.delegations.EffectiveDelegatesFor(ctx, userID, task.ProcessDefinitionKey, time.Now())
		if err != nil {
			return false, err
		}
		for _, d := range delegators {
			if d == principal {
				return true, nil
			}
		}
	}

	if task.IsPooled() {
		candidates, err := s.poolCandidates(ctx, task)
		if err != nil {
			return false, err
		}
		for _, c := range candidates {
			if c == userID {
				return true, nil
			}
		}
	}

	return false, nil
}

// Claim transitions a pooled task to exclusive ownership. Exactly one of N
// concurrent claimers wins; the rest observe a conflict and may re-query.
func (s *taskProcessServiceImpl) Claim(ctx context.Context, taskID, userID string) (*entity.Task, error) {
	task, err := s.taskOrNotFound(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.IsPooled() {
		return nil, entity.ValidationError("task %s is not claimable", taskID)
	}

	candidates, err := s.poolCandidates(ctx, task)
	if err != nil {
		return nil, err
	}
	if !contains(candidates, userID) {
		return nil, entity.UnauthorizedError("user %s is not a candidate for task %s", userID, taskID)
	}

	next := entity.TaskState{AssignmentType: entity.AssignmentUser, Assignee: userID}
	won, err := s.taskRepo.ConditionalUpdate(ctx, taskID, task.State(), next)
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	if !won {
		return nil, entity.ConflictError("task %s already claimed", taskID)
	}

	task.AssignmentType = next.AssignmentType
	task.Assignee = next.Assignee
	task.DelegatorID = ""
	s.logger.Info("Task claimed", "task_id", taskID, "user_id", userID)
	return task, nil
}

// Unclaim returns a previously claimed task to its original pool. Only the
// current owner may release it.
func (s *taskProcessServiceImpl) Unclaim(ctx context.Context, taskID, userID, poolType, poolKey string) (*entity.Task, error) {
	if poolType != entity.AssignmentVirtualGroup && poolType != entity.AssignmentDeptRole {
		return nil, entity.ValidationError("invalid pool type: %s", poolType)
	}
	if poolKey == "" {
		return nil, entity.ValidationError("pool key not specified")
	}

	task, err := s.taskOrNotFound(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignmentType != entity.AssignmentUser || task.Assignee != userID {
		return nil, entity.UnauthorizedError("user %s does not own task %s", userID, taskID)
	}

	next := entity.TaskState{AssignmentType: poolType, Assignee: poolKey}
	won, err := s.taskRepo.ConditionalUpdate(ctx, taskID, task.State(), next)
	if err != nil {
		return nil, fmt.Errorf("unclaim task: %w", err)
	}
	if !won {
		return nil, entity.ConflictError("task %s changed concurrently", taskID)
	}

	task.AssignmentType = poolType
	task.Assignee = poolKey
	task.DelegatorID = ""
	s.logger.Info("Task unclaimed", "task_id", taskID, "user_id", userID, "pool", poolKey)
	return task, nil
}

// Delegate hands the task to another user while keeping the chain back to
// the delegator on the record.
func (s *taskProcessServiceImpl) Delegate(ctx context.Context, taskID, fromUserID, toUserID, reason string) error {
	if toUserID == "" {
		return entity.ValidationError("delegate target not specified")
	}

	task, err := s.taskOrNotFound(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.requireCanProcess(ctx, task, fromUserID); err != nil {
		return err
	}

	next := entity.TaskState{
		AssignmentType: entity.AssignmentDelegated,
		Assignee:       toUserID,
		DelegatorID:    fromUserID,
	}
	won, err := s.taskRepo.ConditionalUpdate(ctx, taskID, task.State(), next)
	if err != nil {
		return fmt.Errorf("delegate task: %w", err)
	}
	if !won {
		return entity.ConflictError("task %s changed concurrently", taskID)
	}

	s.recordTaskAudit(ctx, fromUserID, toUserID, taskID, entity.AuditDelegateTask, reason)
	s.logger.Info("Task delegated", "task_id", taskID, "from", fromUserID, "to", toUserID)
	return nil
}

// Transfer reassigns the task outright; unlike Delegate it leaves no chain
// behind.
func (s *taskProcessServiceImpl) Transfer(ctx context.Context, taskID, fromUserID, toUserID, reason string) error {
	if toUserID == "" {
		return entity.ValidationError("transfer target not specified")
	}

	task, err := s.taskOrNotFound(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.requireCanProcess(ctx, task, fromUserID); err != nil {
		return err
	}

	next := entity.TaskState{AssignmentType: entity.AssignmentUser, Assignee: toUserID}
	won, err := s.taskRepo.ConditionalUpdate(ctx, taskID, task.State(), next)
	if err != nil {
		return fmt.Errorf("transfer task: %w", err)
	}
	if !won {
		return entity.ConflictError("task %s changed concurrently", taskID)
	}

	s.recordTaskAudit(ctx, fromUserID, toUserID, taskID, entity.AuditTransferTask, reason)
	s.logger.Info("Task transferred", "task_id", taskID, "from", fromUserID, "to", toUserID)
	return nil
}

// CompleteTask executes a completion action. Request validation runs before
// any authorization or state change; APPROVE/REJECT are terminal and
// reported to the process engine.
func (s *taskProcessServiceImpl) CompleteTask(ctx context.Context, req TaskCompleteRequest, userID string) error {
	switch req.Action {
	case entity.ActionApprove:
	case entity.ActionReject:
		if strings.TrimSpace(req.Comment) == "" {
			return entity.ValidationError("reject requires a comment")
		}
	case entity.ActionDelegate, entity.ActionTransfer:
		if req.TargetUserID == "" {
			return entity.ValidationError("%s requires a target user", strings.ToLower(req.Action))
		}
	default:
		return entity.ValidationError("unsupported action: %s", req.Action)
	}

	switch req.Action {
	case entity.ActionDelegate:
		return s.Delegate(ctx, req.TaskID, userID, req.TargetUserID, req.Comment)
	case entity.ActionTransfer:
		return s.Transfer(ctx, req.TaskID, userID, req.TargetUserID, req.Comment)
	}

	task, err := s.taskOrNotFound(ctx, req.TaskID)
	if err != nil {
		return err
	}
	if err := s.requireCanProcess(ctx, task, userID); err != nil {
		return err
	}

	// Notify before removing so a failed callback leaves the task in place
	// and the caller can retry the completion.
	if err := s.notifier.OnTaskCompleted(ctx, req.TaskID, req.Action, req.Comment); err != nil {
		return fmt.Errorf("notify process engine: %w", err)
	}
	if err := s.taskRepo.Remove(ctx, req.TaskID); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	s.logger.Info("Task completed", "task_id", req.TaskID, "user_id", userID, "action", req.Action)
	return nil
}

func (s *taskProcessServiceImpl) taskOrNotFound(ctx context.Context, taskID string) (*entity.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	if task == nil {
		return nil, entity.NotFoundError("task %s", taskID)
	}
	return task, nil
}

func (s *taskProcessServiceImpl) requireCanProcess(ctx context.Context, task *entity.Task, userID string) error {
	ok, err := s.CanProcessTask(ctx, task, userID)
	if err != nil {
		return fmt.Errorf("authorization check: %w", err)
	}
	if !ok {
		return entity.UnauthorizedError("user %s may not act on task %s", userID, task.TaskID)
	}
	return nil
}

// poolCandidates resolves the current candidate set for a pooled task.
func (s *taskProcessServiceImpl) poolCandidates(ctx context.Context, task *entity.Task) ([]string, error) {
	switch task.AssignmentType {
	case entity.AssignmentVirtualGroup:
		res := s.resolver.Resolve(ctx, string(assignment.TypeVirtualGroup), task.Assignee, "")
		if !res.OK() {
			return nil, fmt.Errorf("resolve pool candidates: %s", res.ErrorMessage)
		}
		return res.CandidateUsers, nil
	case entity.AssignmentDeptRole:
		members, err := s.directory.DeptRoleMembers(ctx, task.Assignee)
		if err != nil {
			return nil, fmt.Errorf("resolve role candidates: %w", err)
		}
		return members, nil
	default:
		return nil, nil
	}
}

func (s *taskProcessServiceImpl) recordTaskAudit(ctx context.Context, fromUserID, toUserID, taskID, operation, detail string) {
	event := &entity.DelegationAudit{
		EventID:       uuid.NewString(),
		DelegatorID:   fromUserID,
		DelegateID:    toUserID,
		TaskID:        taskID,
		OperationType: operation,
		Result:        "SUCCESS",
		Detail:        detail,
		CreatedAt:     time.Now(),
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("Failed to record task audit", "operation", operation, "task_id", taskID, "error", err)
	}
}

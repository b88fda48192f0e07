package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/workflow-station/task-engine/internal/application/port"
	"github.com/workflow-station/task-engine/internal/domain/entity"
)

// TaskQueryRequest carries the query parameters for a visibility query.
type TaskQueryRequest struct {
	UserID          string   `json:"user_id"`
	AssignmentTypes []string `json:"assignment_types,omitempty"`
	Priorities      []string `json:"priorities,omitempty"`
	Keyword         string   `json:"keyword,omitempty"`
	Page            int      `json:"page"`
	Size            int      `json:"size"`
	SortBy          string   `json:"sort_by,omitempty"`
	SortDirection   string   `json:"sort_direction,omitempty"`
}

// TaskQueryService unions direct assignment, pool membership, and
// delegation-derived visibility into one deduplicated, paginated result.
type TaskQueryService interface {
	QueryTasks(ctx context.Context, req TaskQueryRequest) (*entity.PageResponse, error)
	GetTask(ctx context.Context, taskID string) (*entity.Task, error)
	GetTaskStatistics(ctx context.Context, userID string) (*entity.TaskStatistics, error)
}

type taskQueryServiceImpl struct {
	taskRepo    port.TaskRepository
	delegations DelegationService
	directory   port.Directory
	logger      Logger
}

// NewTaskQueryService creates a new TaskQueryService.
func NewTaskQueryService(
	taskRepo port.TaskRepository,
	delegations DelegationService,
	directory port.Directory,
	logger Logger,
) TaskQueryService {
	return &taskQueryServiceImpl{
		taskRepo:    taskRepo,
		delegations: delegations,
		directory:   directory,
		logger:      logger,
	}
}

// QueryTasks returns one page of the tasks the user can currently see.
// An unknown user or an empty store yields an empty page, not an error.
func (s *taskQueryServiceImpl) QueryTasks(ctx context.Context, req TaskQueryRequest) (*entity.PageResponse, error) {
	page := req.Page
	if page < 0 {
		page = 0
	}
	size := req.Size
	if size <= 0 {
		size = 20
	}

	tasks, err := s.collectVisible(ctx, req.UserID, req)
	if err != nil {
		return nil, err
	}

	sortTasks(tasks, req.SortBy, req.SortDirection)

	total := len(tasks)
	start := page * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return entity.NewPageResponse(tasks[start:end], page, size, total), nil
}

// GetTask retrieves a single task by id.
func (s *taskQueryServiceImpl) GetTask(ctx context.Context, taskID string) (*entity.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	if task == nil {
		return nil, entity.NotFoundError("task %s", taskID)
	}
	return task, nil
}

// GetTaskStatistics aggregates the user's visible tasks. Counts honor the
// same dedup as QueryTasks.
func (s *taskQueryServiceImpl) GetTaskStatistics(ctx context.Context, userID string) (*entity.TaskStatistics, error) {
	tasks, err := s.collectVisible(ctx, userID, TaskQueryRequest{UserID: userID})
	if err != nil {
		return nil, err
	}

	stats := &entity.TaskStatistics{TotalTasks: len(tasks)}
	for _, t := range tasks {
		switch t.AssignmentType {
		case entity.AssignmentUser:
			stats.DirectTasks++
		case entity.AssignmentVirtualGroup:
			stats.GroupTasks++
		case entity.AssignmentDeptRole:
			stats.DeptRoleTasks++
		case entity.AssignmentDelegated:
			stats.DelegatedTasks++
		}
		if t.Overdue {
			stats.OverdueTasks++
		}
		switch t.Priority {
		case entity.PriorityUrgent:
			stats.UrgentTasks++
		case entity.PriorityHigh:
			stats.HighTasks++
		}
	}
	return stats, nil
}

// collectVisible gathers the visibility union in most-direct-first order:
// direct assignment, then pools, then delegation-derived views. When a task
// is reachable through more than one dimension the first sighting wins, so
// the most direct label is the one reported.
func (s *taskQueryServiceImpl) collectVisible(ctx context.Context, userID string, req TaskQueryRequest) ([]*entity.Task, error) {
	seen := make(map[string]bool)
	var result []*entity.Task

	add := func(t *entity.Task) {
		if !matchesFilters(t, req) || seen[t.TaskID] {
			return
		}
		seen[t.TaskID] = true
		result = append(result, t)
	}

	direct, err := s.taskRepo.FindByAssignee(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find direct tasks: %w", err)
	}
	for _, t := range direct {
		add(t)
	}

	groups, err := s.directory.VirtualGroupsOf(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to resolve virtual groups", "user_id", userID, "error", err)
	}
	for _, groupID := range groups {
		pooled, err := s.taskRepo.FindByPoolKey(ctx, entity.AssignmentVirtualGroup, groupID)
		if err != nil {
			return nil, fmt.Errorf("find group tasks: %w", err)
		}
		for _, t := range pooled {
			add(t)
		}
	}

	roles, err := s.directory.DeptRolesOf(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to resolve dept roles", "user_id", userID, "error", err)
	}
	for _, roleKey := range roles {
		pooled, err := s.taskRepo.FindByPoolKey(ctx, entity.AssignmentDeptRole, roleKey)
		if err != nil {
			return nil, fmt.Errorf("find role tasks: %w", err)
		}
		for _, t := range pooled {
			add(t)
		}
	}

	delegated, err := s.delegatedTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, t := range delegated {
		add(t)
	}

	return result, nil
}

// delegatedTasks surfaces delegators' directly owned tasks as synthetic
// DELEGATED views for the delegate, honoring each rule's scope.
func (s *taskQueryServiceImpl) delegatedTasks(ctx context.Context, userID string) ([]*entity.Task, error) {
	rules, err := s.delegations.RulesForDelegate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find delegations: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	now := time.Now()
	byDelegator := make(map[string][]*entity.DelegationRule)
	for _, rule := range rules {
		byDelegator[rule.DelegatorID] = append(byDelegator[rule.DelegatorID], rule)
	}

	var views []*entity.Task
	for delegatorID, delegatorRules := range byDelegator {
		tasks, err := s.taskRepo.FindByAssignee(ctx, delegatorID)
		if err != nil {
			return nil, fmt.Errorf("find delegator tasks: %w", err)
		}
		for _, t := range tasks {
			if t.AssignmentType != entity.AssignmentUser {
				continue
			}
			for _, rule := range delegatorRules {
				if rule.Matches(t.ProcessDefinitionKey, now) {
					view := *t
					view.AssignmentType = entity.AssignmentDelegated
					view.Assignee = userID
					view.DelegatorID = delegatorID
					views = append(views, &view)
					break
				}
			}
		}
	}
	return views, nil
}

func matchesFilters(t *entity.Task, req TaskQueryRequest) bool {
	if len(req.AssignmentTypes) > 0 && !contains(req.AssignmentTypes, t.AssignmentType) {
		return false
	}
	if len(req.Priorities) > 0 && !contains(req.Priorities, t.Priority) {
		return false
	}
	if req.Keyword != "" &&
		!strings.Contains(t.Name, req.Keyword) &&
		!strings.Contains(t.Description, req.Keyword) {
		return false
	}
	return true
}

func contains(values []string, v string) bool {
	for _, c := range values {
		if c == v {
			return true
		}
	}
	return false
}

// sortTasks orders by the requested field with a stable taskId tie-break so
// pagination is deterministic regardless of direction.
func sortTasks(tasks []*entity.Task, sortBy, direction string) {
	desc := strings.EqualFold(direction, "desc")

	less := func(a, b *entity.Task) int {
		switch sortBy {
		case "priority":
			return strings.Compare(priorityRankString(a.Priority), priorityRankString(b.Priority))
		case "dueTime":
			return compareTimePtr(a.DueTime, b.DueTime)
		case "name":
			return strings.Compare(a.Name, b.Name)
		default: // createTime
			return compareTime(a.CreateTime, b.CreateTime)
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		c := less(tasks[i], tasks[j])
		if c == 0 {
			return tasks[i].TaskID < tasks[j].TaskID
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// priorityRankString maps priorities onto an ordering key so LOW < NORMAL <
// HIGH < URGENT rather than alphabetical.
func priorityRankString(p string) string {
	switch p {
	case entity.PriorityLow:
		return "0"
	case entity.PriorityNormal:
		return "1"
	case entity.PriorityHigh:
		return "2"
	case entity.PriorityUrgent:
		return "3"
	default:
		return "1"
	}
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// compareTimePtr treats nil as the latest possible time so unscheduled tasks
// sort after dated ones in ascending order.
func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return compareTime(*a, *b)
	}
}

package service

import (
	"context"
	"sync"

	"github.com/workflow-station/task-engine/internal/application/port"
	"github.com/workflow-station/task-engine/internal/domain/entity"
)

// testLogger discards log output.
type testLogger struct{}

func (testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (testLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (testLogger) Error(msg string, keysAndValues ...interface{}) {}

// memTaskRepo is an in-memory TaskRepository. ConditionalUpdate holds the
// mutex across the compare and the write, matching the atomicity the SQL
// implementation gets from a single guarded UPDATE.
type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*entity.Task
}

var _ port.TaskRepository = (*memTaskRepo)(nil)

func newMemTaskRepo(tasks ...*entity.Task) *memTaskRepo {
	r := &memTaskRepo{tasks: make(map[string]*entity.Task)}
	for _, t := range tasks {
		cp := *t
		r.tasks[t.TaskID] = &cp
	}
	return r
}

func (r *memTaskRepo) FindByID(ctx context.Context, taskID string) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTaskRepo) FindByAssignee(ctx context.Context, userID string) ([]*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Task
	for _, t := range r.tasks {
		if t.Assignee != userID {
			continue
		}
		if t.AssignmentType != entity.AssignmentUser && t.AssignmentType != entity.AssignmentDelegated {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memTaskRepo) FindByPoolKey(ctx context.Context, poolType, poolKey string) ([]*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Task
	for _, t := range r.tasks {
		if t.AssignmentType == poolType && t.Assignee == poolKey {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memTaskRepo) Save(ctx context.Context, task *entity.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	r.tasks[task.TaskID] = &cp
	return nil
}

func (r *memTaskRepo) ConditionalUpdate(ctx context.Context, taskID string, expected, next entity.TaskState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok || t.State() != expected {
		return false, nil
	}
	t.AssignmentType = next.AssignmentType
	t.Assignee = next.Assignee
	t.DelegatorID = next.DelegatorID
	return true, nil
}

func (r *memTaskRepo) Remove(ctx context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
	return nil
}

// memRuleRepo is an in-memory DelegationRuleRepository with auto-assigned ids.
type memRuleRepo struct {
	mu     sync.Mutex
	nextID int64
	rules  map[int64]*entity.DelegationRule
}

var _ port.DelegationRuleRepository = (*memRuleRepo)(nil)

func newMemRuleRepo() *memRuleRepo {
	return &memRuleRepo{nextID: 1, rules: make(map[int64]*entity.DelegationRule)}
}

func (r *memRuleRepo) FindByID(ctx context.Context, ruleID int64) (*entity.DelegationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[ruleID]
	if !ok {
		return nil, nil
	}
	cp := *rule
	return &cp, nil
}

func (r *memRuleRepo) FindByDelegator(ctx context.Context, delegatorID string) ([]*entity.DelegationRule, error) {
	return r.filter(func(rule *entity.DelegationRule) bool {
		return rule.DelegatorID == delegatorID
	}), nil
}

func (r *memRuleRepo) FindActiveByDelegator(ctx context.Context, delegatorID string) ([]*entity.DelegationRule, error) {
	return r.filter(func(rule *entity.DelegationRule) bool {
		return rule.DelegatorID == delegatorID && rule.Status == entity.DelegationStatusActive
	}), nil
}

func (r *memRuleRepo) FindActiveByDelegate(ctx context.Context, delegateID string) ([]*entity.DelegationRule, error) {
	return r.filter(func(rule *entity.DelegationRule) bool {
		return rule.DelegateID == delegateID && rule.Status == entity.DelegationStatusActive
	}), nil
}

func (r *memRuleRepo) Save(ctx context.Context, rule *entity.DelegationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == 0 {
		rule.ID = r.nextID
		r.nextID++
	}
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *memRuleRepo) Delete(ctx context.Context, ruleID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, ruleID)
	return nil
}

func (r *memRuleRepo) filter(keep func(*entity.DelegationRule) bool) []*entity.DelegationRule {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.DelegationRule
	for _, rule := range r.rules {
		if keep(rule) {
			cp := *rule
			out = append(out, &cp)
		}
	}
	return out
}

// memAuditSink collects recorded events.
type memAuditSink struct {
	mu     sync.Mutex
	events []*entity.DelegationAudit
}

var _ port.AuditSink = (*memAuditSink)(nil)

func (s *memAuditSink) Record(ctx context.Context, event *entity.DelegationAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memAuditSink) operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]string, 0, len(s.events))
	for _, e := range s.events {
		ops = append(ops, e.OperationType)
	}
	return ops
}

// stubDirectory answers organizational lookups from function fields; unset
// fields return empty results.
type stubDirectory struct {
	UserInfoFunc            func(userID string) (*port.UserInfo, error)
	DepartmentInfoFunc      func(departmentID string) (*port.DepartmentInfo, error)
	DepartmentMembersFunc   func(departmentID string) ([]string, error)
	VirtualGroupMembersFunc func(groupID string) ([]string, error)
	DeptRoleMembersFunc     func(roleKey string) ([]string, error)
	VirtualGroupsOfFunc     func(userID string) ([]string, error)
	DeptRolesOfFunc         func(userID string) ([]string, error)
}

var _ port.Directory = (*stubDirectory)(nil)

func (d *stubDirectory) UserInfo(ctx context.Context, userID string) (*port.UserInfo, error) {
	if d.UserInfoFunc != nil {
		return d.UserInfoFunc(userID)
	}
	return nil, nil
}

func (d *stubDirectory) DepartmentInfo(ctx context.Context, departmentID string) (*port.DepartmentInfo, error) {
	if d.DepartmentInfoFunc != nil {
		return d.DepartmentInfoFunc(departmentID)
	}
	return nil, nil
}

func (d *stubDirectory) DepartmentMembers(ctx context.Context, departmentID string) ([]string, error) {
	if d.DepartmentMembersFunc != nil {
		return d.DepartmentMembersFunc(departmentID)
	}
	return nil, nil
}

func (d *stubDirectory) VirtualGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	if d.VirtualGroupMembersFunc != nil {
		return d.VirtualGroupMembersFunc(groupID)
	}
	return nil, nil
}

func (d *stubDirectory) DeptRoleMembers(ctx context.Context, roleKey string) ([]string, error) {
	if d.DeptRoleMembersFunc != nil {
		return d.DeptRoleMembersFunc(roleKey)
	}
	return nil, nil
}

func (d *stubDirectory) VirtualGroupsOf(ctx context.Context, userID string) ([]string, error) {
	if d.VirtualGroupsOfFunc != nil {
		return d.VirtualGroupsOfFunc(userID)
	}
	return nil, nil
}

func (d *stubDirectory) DeptRolesOf(ctx context.Context, userID string) ([]string, error) {
	if d.DeptRolesOfFunc != nil {
		return d.DeptRolesOfFunc(userID)
	}
	return nil, nil
}

// stubNotifier records completion callbacks.
type stubNotifier struct {
	mu        sync.Mutex
	completed []string
	err       error
}

var _ port.ProcessEngineNotifier = (*stubNotifier)(nil)

func (n *stubNotifier) OnTaskCompleted(ctx context.Context, taskID, action, comment string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.completed = append(n.completed, taskID+":"+action)
	return nil
}

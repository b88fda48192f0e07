package entity

import "time"

// Task represents a unit of work surfaced by the external process engine.
// The engine owns task creation and the downstream effects of completion;
// this service owns who can see the task, who can act on it, and how pooled
// tasks transition to an exclusive owner.
type Task struct {
	TaskID               string `json:"task_id"`
	Name                 string `json:"name"`
	Description          string `json:"description,omitempty"`
	ProcessInstanceID    string `json:"process_instance_id"`
	ProcessDefinitionKey string `json:"process_definition_key"`

	// AssignmentType describes how the task is currently owned; Assignee is a
	// user id for USER/DELEGATED and a pool key (group id / role key) for
	// VIRTUAL_GROUP/DEPT_ROLE.
	AssignmentType string `json:"assignment_type"`
	Assignee       string `json:"assignee"`

	// DelegatorID is set iff AssignmentType == DELEGATED.
	DelegatorID string `json:"delegator_id,omitempty"`

	Priority   string     `json:"priority"`
	Status     string     `json:"status"`
	CreateTime time.Time  `json:"create_time"`
	DueTime    *time.Time `json:"due_time,omitempty"`
	Overdue    bool       `json:"overdue"`
}

// Persisted assignment type constants
const (
	AssignmentUser         = "USER"
	AssignmentVirtualGroup = "VIRTUAL_GROUP"
	AssignmentDeptRole     = "DEPT_ROLE"
	AssignmentDelegated    = "DELEGATED"
)

// Priority constants
const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// Task status constants
const (
	TaskStatusPending    = "PENDING"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusCompleted  = "COMPLETED"
)

// Completion action constants
const (
	ActionApprove  = "APPROVE"
	ActionReject   = "REJECT"
	ActionDelegate = "DELEGATE"
	ActionTransfer = "TRANSFER"
)

// TaskState is the (assignment_type, assignee, delegator) triple guarded by
// the conditional update at the store boundary.
type TaskState struct {
	AssignmentType string
	Assignee       string
	DelegatorID    string
}

// State returns the task's current guarded state.
func (t *Task) State() TaskState {
	return TaskState{
		AssignmentType: t.AssignmentType,
		Assignee:       t.Assignee,
		DelegatorID:    t.DelegatorID,
	}
}

// IsPooled reports whether the task is held by a candidate pool rather than
// a single owner.
func (t *Task) IsPooled() bool {
	return t.AssignmentType == AssignmentVirtualGroup || t.AssignmentType == AssignmentDeptRole
}

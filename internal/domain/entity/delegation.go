package entity

import "time"

// DelegationRule is a standing grant letting a delegate act on a delegator's
// directly assigned tasks, optionally bounded by process type or time window.
// Only the delegator may mutate the rule.
type DelegationRule struct {
	ID             int64      `json:"id"`
	DelegatorID    string     `json:"delegator_id"`
	DelegateID     string     `json:"delegate_id"`
	DelegationType string     `json:"delegation_type"`
	ProcessTypes   []string   `json:"process_types,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Delegation type constants
const (
	DelegationAll       = "ALL"
	DelegationPartial   = "PARTIAL"
	DelegationTemporary = "TEMPORARY"
)

// Delegation status constants
const (
	DelegationStatusActive    = "ACTIVE"
	DelegationStatusSuspended = "SUSPENDED"
)

// Matches reports whether the rule covers the given process type at the given
// instant. ALL rules always match; PARTIAL rules match when processType is
// named (an empty processType means "any"); TEMPORARY rules match inside
// [StartTime, EndTime], a nil bound being unbounded.
func (r *DelegationRule) Matches(processType string, asOf time.Time) bool {
	switch r.DelegationType {
	case DelegationAll:
		return true
	case DelegationPartial:
		if processType == "" {
			return true
		}
		for _, pt := range r.ProcessTypes {
			if pt == processType {
				return true
			}
		}
		return false
	case DelegationTemporary:
		if r.StartTime != nil && asOf.Before(*r.StartTime) {
			return false
		}
		if r.EndTime != nil && asOf.After(*r.EndTime) {
			return false
		}
		return true
	default:
		return false
	}
}

// DelegationAudit is an immutable record of a delegation-related operation.
// Records are append-only; writes are best-effort and never block business
// operations.
type DelegationAudit struct {
	EventID       string    `json:"event_id"`
	DelegatorID   string    `json:"delegator_id"`
	DelegateID    string    `json:"delegate_id"`
	TaskID        string    `json:"task_id,omitempty"`
	OperationType string    `json:"operation_type"`
	Result        string    `json:"result"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Audit operation type constants
const (
	AuditCreateDelegation  = "CREATE_DELEGATION"
	AuditUpdateDelegation  = "UPDATE_DELEGATION"
	AuditSuspendDelegation = "SUSPEND_DELEGATION"
	AuditResumeDelegation  = "RESUME_DELEGATION"
	AuditDeleteDelegation  = "DELETE_DELEGATION"
	AuditDelegateTask      = "DELEGATE_TASK"
	AuditTransferTask      = "TRANSFER_TASK"
)

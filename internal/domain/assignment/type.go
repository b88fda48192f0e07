package assignment

import "strings"

// Type enumerates the assignment type codes a process definition may declare
// for a task. Direct types resolve to a single assignee; claim types resolve
// to a candidate pool that requires a claim before exclusive ownership.
type Type string

const (
	TypeFunctionManager Type = "FUNCTION_MANAGER"
	TypeEntityManager   Type = "ENTITY_MANAGER"
	TypeInitiator       Type = "INITIATOR"
	TypeDeptOthers      Type = "DEPT_OTHERS"
	TypeParentDept      Type = "PARENT_DEPT"
	TypeFixedDept       Type = "FIXED_DEPT"
	TypeVirtualGroup    Type = "VIRTUAL_GROUP"
)

// ParseType parses a type code case-insensitively. Unknown codes are
// rejected rather than defaulted.
func ParseType(code string) (Type, bool) {
	switch Type(strings.ToUpper(strings.TrimSpace(code))) {
	case TypeFunctionManager:
		return TypeFunctionManager, true
	case TypeEntityManager:
		return TypeEntityManager, true
	case TypeInitiator:
		return TypeInitiator, true
	case TypeDeptOthers:
		return TypeDeptOthers, true
	case TypeParentDept:
		return TypeParentDept, true
	case TypeFixedDept:
		return TypeFixedDept, true
	case TypeVirtualGroup:
		return TypeVirtualGroup, true
	default:
		return "", false
	}
}

// RequiresClaim reports whether tasks of this type start in a candidate pool.
func (t Type) RequiresClaim() bool {
	switch t {
	case TypeDeptOthers, TypeParentDept, TypeFixedDept, TypeVirtualGroup:
		return true
	default:
		return false
	}
}

// Persisted collapses the resolution-time tag to the assignment type stored
// on the task record.
func (t Type) Persisted() string {
	switch t {
	case TypeVirtualGroup:
		return "VIRTUAL_GROUP"
	case TypeDeptOthers, TypeParentDept, TypeFixedDept:
		return "DEPT_ROLE"
	default:
		return "USER"
	}
}

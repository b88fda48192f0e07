package assignment

import (
	"context"
	"fmt"

	"github.com/workflow-station/task-engine/internal/application/port"
)

// Resolution is the outcome of resolving an assignment type code for a task.
// Exactly one of DirectAssignee or CandidateUsers is populated on success;
// ErrorMessage is set when resolution cannot produce either.
type Resolution struct {
	Type           Type     `json:"type"`
	RequiresClaim  bool     `json:"requires_claim"`
	DirectAssignee string   `json:"direct_assignee,omitempty"`
	CandidateUsers []string `json:"candidate_users,omitempty"`
	CandidateGroup string   `json:"candidate_group,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
}

// OK reports whether resolution succeeded.
func (r Resolution) OK() bool {
	return r.ErrorMessage == ""
}

// Resolver maps an assignment type code and its context to a direct assignee
// or a candidate pool. It has no side effects and is safe to call
// concurrently; all organizational data comes from the directory.
type Resolver struct {
	dir port.Directory
}

// NewResolver creates a Resolver backed by the given directory.
func NewResolver(dir port.Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve resolves typeCode for a task initiated by initiatorID. value
// carries the department id (FIXED_DEPT) or group id (VIRTUAL_GROUP) and is
// ignored for the other types.
func (r *Resolver) Resolve(ctx context.Context, typeCode, value, initiatorID string) Resolution {
	t, ok := ParseType(typeCode)
	if !ok {
		return Resolution{ErrorMessage: fmt.Sprintf("unknown assignment type: %s", typeCode)}
	}

	switch t {
	case TypeFunctionManager:
		return r.resolveManager(ctx, t, initiatorID)
	case TypeEntityManager:
		return r.resolveManager(ctx, t, initiatorID)
	case TypeInitiator:
		return Resolution{Type: t, DirectAssignee: initiatorID}
	case TypeDeptOthers:
		return r.resolveDeptOthers(ctx, initiatorID)
	case TypeParentDept:
		return r.resolveParentDept(ctx, initiatorID)
	case TypeFixedDept:
		return r.resolveFixedDept(ctx, value)
	case TypeVirtualGroup:
		return r.resolveVirtualGroup(ctx, value)
	default:
		return Resolution{ErrorMessage: fmt.Sprintf("unknown assignment type: %s", typeCode)}
	}
}

func (r *Resolver) resolveManager(ctx context.Context, t Type, initiatorID string) Resolution {
	info, err := r.dir.UserInfo(ctx, initiatorID)
	if err != nil {
		return Resolution{Type: t, ErrorMessage: fmt.Sprintf("user lookup failed: %v", err)}
	}
	if info == nil {
		return Resolution{Type: t, ErrorMessage: fmt.Sprintf("user not found: %s", initiatorID)}
	}

	managerID := info.FunctionManagerID
	if t == TypeEntityManager {
		managerID = info.EntityManagerID
	}
	if managerID == "" {
		return Resolution{Type: t, ErrorMessage: fmt.Sprintf("no manager configured for user %s", initiatorID)}
	}
	return Resolution{Type: t, DirectAssignee: managerID}
}

func (r *Resolver) resolveDeptOthers(ctx context.Context, initiatorID string) Resolution {
	info, err := r.dir.UserInfo(ctx, initiatorID)
	if err != nil {
		return Resolution{Type: TypeDeptOthers, RequiresClaim: true, ErrorMessage: fmt.Sprintf("user lookup failed: %v", err)}
	}
	if info == nil || info.DepartmentID == "" {
		return Resolution{Type: TypeDeptOthers, RequiresClaim: true, ErrorMessage: fmt.Sprintf("user has no department: %s", initiatorID)}
	}

	members, err := r.dir.DepartmentMembers(ctx, info.DepartmentID)
	if err != nil {
		return Resolution{Type: TypeDeptOthers, RequiresClaim: true, ErrorMessage: fmt.Sprintf("member lookup failed: %v", err)}
	}

	// The initiator never reviews their own submission.
	candidates := make([]string, 0, len(members))
	for _, m := range members {
		if m != initiatorID {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return Resolution{Type: TypeDeptOthers, RequiresClaim: true, ErrorMessage: "department has no other members"}
	}
	return Resolution{Type: TypeDeptOthers, RequiresClaim: true, CandidateUsers: candidates}
}

func (r *Resolver) resolveParentDept(ctx context.Context, initiatorID string) Resolution {
	info, err := r.dir.UserInfo(ctx, initiatorID)
	if err != nil {
		return Resolution{Type: TypeParentDept, RequiresClaim: true, ErrorMessage: fmt.Sprintf("user lookup failed: %v", err)}
	}
	if info == nil || info.DepartmentID == "" {
		return Resolution{Type: TypeParentDept, RequiresClaim: true, ErrorMessage: fmt.Sprintf("user has no department: %s", initiatorID)}
	}

	dept, err := r.dir.DepartmentInfo(ctx, info.DepartmentID)
	if err != nil {
		return Resolution{Type: TypeParentDept, RequiresClaim: true, ErrorMessage: fmt.Sprintf("department lookup failed: %v", err)}
	}
	if dept == nil || dept.ParentID == "" {
		return Resolution{Type: TypeParentDept, RequiresClaim: true, ErrorMessage: fmt.Sprintf("department has no parent: %s", info.DepartmentID)}
	}

	members, err := r.dir.DepartmentMembers(ctx, dept.ParentID)
	if err != nil {
		return Resolution{Type: TypeParentDept, RequiresClaim: true, ErrorMessage: fmt.Sprintf("member lookup failed: %v", err)}
	}
	if len(members) == 0 {
		return Resolution{Type: TypeParentDept, RequiresClaim: true, ErrorMessage: fmt.Sprintf("parent department has no members: %s", dept.ParentID)}
	}
	return Resolution{Type: TypeParentDept, RequiresClaim: true, CandidateUsers: members}
}

func (r *Resolver) resolveFixedDept(ctx context.Context, departmentID string) Resolution {
	if departmentID == "" {
		return Resolution{Type: TypeFixedDept, RequiresClaim: true, ErrorMessage: "department not specified"}
	}

	members, err := r.dir.DepartmentMembers(ctx, departmentID)
	if err != nil {
		return Resolution{Type: TypeFixedDept, RequiresClaim: true, ErrorMessage: fmt.Sprintf("member lookup failed: %v", err)}
	}
	if len(members) == 0 {
		return Resolution{Type: TypeFixedDept, RequiresClaim: true, ErrorMessage: fmt.Sprintf("department has no members: %s", departmentID)}
	}
	return Resolution{Type: TypeFixedDept, RequiresClaim: true, CandidateUsers: members}
}

func (r *Resolver) resolveVirtualGroup(ctx context.Context, groupID string) Resolution {
	if groupID == "" {
		return Resolution{Type: TypeVirtualGroup, RequiresClaim: true, ErrorMessage: "group not specified"}
	}

	members, err := r.dir.VirtualGroupMembers(ctx, groupID)
	if err != nil {
		return Resolution{Type: TypeVirtualGroup, RequiresClaim: true, ErrorMessage: fmt.Sprintf("member lookup failed: %v", err)}
	}

	// A group may be empty; the group itself still carries the candidacy.
	return Resolution{
		Type:           TypeVirtualGroup,
		RequiresClaim:  true,
		CandidateUsers: members,
		CandidateGroup: groupID,
	}
}

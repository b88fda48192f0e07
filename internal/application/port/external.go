package port

import (
	"context"

	"github.com/workflow-station/task-engine/internal/domain/entity"
)

// UserInfo is the organizational record for a user as served by admin-center.
type UserInfo struct {
	UserID            string `json:"user_id"`
	DepartmentID      string `json:"department_id"`
	FunctionManagerID string `json:"function_manager_id"`
	EntityManagerID   string `json:"entity_manager_id"`
}

// DepartmentInfo is the organizational record for a department.
type DepartmentInfo struct {
	DepartmentID string `json:"department_id"`
	ParentID     string `json:"parent_id"`
}

// Directory is the organizational lookup collaborator (admin-center). All
// membership and manager resolution flows through it; this core never stores
// organizational data of its own.
type Directory interface {
	UserInfo(ctx context.Context, userID string) (*UserInfo, error)
	DepartmentInfo(ctx context.Context, departmentID string) (*DepartmentInfo, error)
	DepartmentMembers(ctx context.Context, departmentID string) ([]string, error)
	VirtualGroupMembers(ctx context.Context, groupID string) ([]string, error)
	DeptRoleMembers(ctx context.Context, roleKey string) ([]string, error)
	VirtualGroupsOf(ctx context.Context, userID string) ([]string, error)
	DeptRolesOf(ctx context.Context, userID string) ([]string, error)
}

// AuditSink records immutable delegation audit events. Writes are
// best-effort: callers log failures and continue.
type AuditSink interface {
	Record(ctx context.Context, event *entity.DelegationAudit) error
}

// ProcessEngineNotifier reports terminal task completion back to the
// external process engine that owns workflow sequencing.
type ProcessEngineNotifier interface {
	OnTaskCompleted(ctx context.Context, taskID, action, comment string) error
}

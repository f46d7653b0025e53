// Package security implements role-based access control (spec §4.3)
// and the deterministic encryption-context derivation the storage
// engine relies on.
package security

import (
	"github.com/aml-core/agentmemory/internal/aml/types"
)

// Operation enumerates every access-controlled action, per spec §4.3.
type Operation string

const (
	OpPatternRead    Operation = "pattern_read"
	OpPatternWrite   Operation = "pattern_write"
	OpPatternDelete  Operation = "pattern_delete"
	OpSolutionRead   Operation = "solution_read"
	OpSolutionWrite  Operation = "solution_write"
	OpSolutionDelete Operation = "solution_delete"
	OpDecisionRead   Operation = "decision_read"
	OpDecisionWrite  Operation = "decision_write"
	OpDecisionDelete Operation = "decision_delete"
	OpMemoryExport   Operation = "memory_export"
	OpMemoryImport   Operation = "memory_import"
	OpMemoryClear    Operation = "memory_clear"
	OpBackupCreate   Operation = "backup_create"
	OpBackupRestore  Operation = "backup_restore"
	OpConfigRead     Operation = "config_read"
	OpConfigWrite    Operation = "config_write"
	OpKeyRotate      Operation = "key_rotate"
	OpUserDelete     Operation = "user_delete"
)

// minRole maps every operation to the minimum role that may perform it.
var minRole = map[Operation]types.Role{
	OpPatternRead:    types.RoleReadOnly,
	OpSolutionRead:   types.RoleReadOnly,
	OpDecisionRead:   types.RoleReadOnly,
	OpConfigRead:     types.RoleReadOnly,

	OpPatternWrite:   types.RoleDeveloper,
	OpSolutionWrite:  types.RoleDeveloper,
	OpDecisionWrite:  types.RoleDeveloper,
	OpMemoryExport:   types.RoleDeveloper,
	OpBackupCreate:   types.RoleDeveloper,

	OpPatternDelete:  types.RoleAdmin,
	OpSolutionDelete: types.RoleAdmin,
	OpDecisionDelete: types.RoleAdmin,
	OpMemoryImport:   types.RoleAdmin,
	OpMemoryClear:    types.RoleAdmin,
	OpBackupRestore:  types.RoleAdmin,
	OpConfigWrite:    types.RoleAdmin,
	OpKeyRotate:      types.RoleAdmin,
	OpUserDelete:     types.RoleAdmin,
}

// destructiveOps additionally requires ownership for non-admins,
// per spec §4.3 rule 4.
var destructiveOps = map[Operation]bool{
	OpPatternDelete:  true,
	OpSolutionDelete: true,
	OpDecisionDelete: true,
	OpMemoryClear:    true,
}

// Decision is the outcome of CheckAccess.
type Decision struct {
	Allowed bool
	Reason  string
}

// AccessControl enforces the role hierarchy and resource isolation
// rules from spec §4.3.
type AccessControl struct{}

func NewAccessControl() *AccessControl {
	return &AccessControl{}
}

// CheckAccess implements spec §4.3's four-rule decision, never
// panicking — callers that want an error use RequireAccess.
func (a *AccessControl) CheckAccess(p types.Principal, op Operation, resource *types.Resource) Decision {
	required, known := minRole[op]
	if !known {
		return Decision{Allowed: false, Reason: "unknown operation"}
	}
	if !p.HasRole(required) {
		return Decision{Allowed: false, Reason: "role below minimum required for operation"}
	}

	if resource != nil && p.Role < types.RoleAdmin {
		if resource.ProjectID != "" && resource.ProjectID != p.ProjectID {
			return Decision{Allowed: false, Reason: "resource belongs to a different project"}
		}
		if resource.AgentName != "" && resource.AgentName != p.AgentName {
			return Decision{Allowed: false, Reason: "resource belongs to a different agent"}
		}
	}

	if destructiveOps[op] && resource != nil && resource.OwnerID != "" && p.Role < types.RoleAdmin {
		if resource.OwnerID != p.UserID {
			return Decision{Allowed: false, Reason: "only the resource owner or an admin may perform this destructive operation"}
		}
	}

	return Decision{Allowed: true}
}

// RequireAccess returns an AccessDenied *types.Error carrying the
// violated rule when CheckAccess disallows the operation.
func (a *AccessControl) RequireAccess(p types.Principal, op Operation, resource *types.Resource) *types.Error {
	d := a.CheckAccess(p, op, resource)
	if d.Allowed {
		return nil
	}
	return types.NewError(types.ErrAccessDenied, "%s", d.Reason).WithDetail("operation", string(op))
}

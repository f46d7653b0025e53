package types

// Role is the three-tier access level from spec §4.3, forming a total
// order read-only < developer < admin.
type Role int

const (
	RoleReadOnly Role = iota
	RoleDeveloper
	RoleAdmin
)

// ParseRole defaults unknown role strings to developer, per spec §6.
func ParseRole(s string) Role {
	switch s {
	case "read-only":
		return RoleReadOnly
	case "admin":
		return RoleAdmin
	case "developer":
		return RoleDeveloper
	default:
		return RoleDeveloper
	}
}

func (r Role) String() string {
	switch r {
	case RoleReadOnly:
		return "read-only"
	case RoleAdmin:
		return "admin"
	default:
		return "developer"
	}
}

// Principal is the (userId, role, projectId, agentName?) tuple used
// for every access decision.
type Principal struct {
	UserID    string
	Role      Role
	ProjectID string
	AgentName string
}

// HasRole holds if the principal's role is at least `r`.
func (p Principal) HasRole(r Role) bool {
	return p.Role >= r
}

// Resource describes the object an operation acts on, for the
// project/agent isolation and owner checks in AccessControl.CheckAccess.
type Resource struct {
	ProjectID string
	AgentName string
	OwnerID   string
	Kind      string
	ID        string
}

// PatternFilter narrows getPatterns-style queries.
type PatternFilter struct {
	Agent          string
	Type           string
	MinConfidence  float64
	MinSuccessRate float64
	Limit          int
}

// SolutionFilter narrows solution queries by fingerprint or agent.
type SolutionFilter struct {
	Agent       string
	Fingerprint string
	Limit       int
}

// DecisionFilter narrows decision queries.
type DecisionFilter struct {
	Agent string
	Limit int
}

// AuditFilter narrows audit log queries, per spec §4.4.
type AuditFilter struct {
	Agent         string
	Type          string
	ResourceID    string
	Since         *TimeRange
	Success       *bool
	SensitiveData *bool
	Limit         int
}

// TimeRange bounds a query by [Start, End).
type TimeRange struct {
	Start, End int64 // unix nanos, avoids importing time here for a trivial pair
}

package welfare

// =============================================================================
// REVIEWER ROLES - Explicit capability table
// =============================================================================
//
// Who the caller IS is established by the external identity provider; this
// table only answers what a given role may do. The elevated "primary" role
// may act at either approval step.

type ReviewerRole string

const (
	RoleAdmin   ReviewerRole = "admin"
	RoleManager ReviewerRole = "manager"
	RolePrimary ReviewerRole = "primary"
)

// Reviewer is the identity handed to the engine by the access-control
// collaborator. The engine trusts it as given.
type Reviewer struct {
	ID   string
	Role ReviewerRole
}

type Capability string

const (
	CapAdminApprove   Capability = "admin_approve"
	CapManagerApprove Capability = "manager_approve"
	CapReject         Capability = "reject"
)

var capabilities = map[Capability]map[ReviewerRole]bool{
	CapAdminApprove:   {RoleAdmin: true, RolePrimary: true},
	CapManagerApprove: {RoleManager: true, RolePrimary: true},
	CapReject:         {RoleAdmin: true, RoleManager: true, RolePrimary: true},
}

// Can reports whether the role holds the capability.
func (r ReviewerRole) Can(c Capability) bool {
	return capabilities[c][r]
}

// ParseReviewerRole validates a role string from the transport layer.
func ParseReviewerRole(s string) (ReviewerRole, error) {
	switch ReviewerRole(s) {
	case RoleAdmin, RoleManager, RolePrimary:
		return ReviewerRole(s), nil
	}
	return "", &ValidationError{Field: "role", Message: "unknown reviewer role: " + s}
}

package domain

// Roles recognized by the core. Authentication and session handling happen
// upstream; every request arrives with an already verified actor.
const (
	RoleAdmin = "admin"
	RolePOS   = "pos"
	RolePrep  = "prep"
)

// Actor identifies the verified user performing an operation.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Validate checks that the actor carries an id and a known role.
func (a Actor) Validate() error {
	if a.ID == "" {
		return NewValidationError(ReasonInvalidActor, "id", "actor id is required")
	}
	switch a.Role {
	case RoleAdmin, RolePOS, RolePrep:
		return nil
	}
	return NewValidationError(ReasonInvalidActor, "role", "unknown role "+a.Role)
}

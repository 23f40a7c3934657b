package command

// CreatePrincipalPayload creates a User, Group, or Role depending on which
// command Kind wraps it. ParentGroupID is optional; when set, the new
// principal is linked as a child of that group in the same executor turn.
type CreatePrincipalPayload struct {
	Name          string `validate:"required,min=1,max=255"`
	ParentGroupID *int64 `validate:"omitempty,gt=0"`
}

// UpdatePrincipalPayload renames an existing principal.
type UpdatePrincipalPayload struct {
	PrincipalID int64  `validate:"required,gt=0"`
	Name        string `validate:"required,min=1,max=255"`
}

// DeletePrincipalPayload deletes a principal and cascades deletion of its
// owned permissions (spec.md §9 Open Questions, resolved).
type DeletePrincipalPayload struct {
	PrincipalID int64 `validate:"required,gt=0"`
}

// LinkPayload covers every Add/Remove edge command: user↔group,
// user↔role, group↔role, group↔group. The envelope's Kind distinguishes
// which edge kind a given instance targets.
type LinkPayload struct {
	ParentID int64 `validate:"required,gt=0"`
	ChildID  int64 `validate:"required,gt=0"`
}

// PermissionPayload grants or revokes a permission on an entity.
type PermissionPayload struct {
	PrincipalID int64  `validate:"required,gt=0"`
	URI         string `validate:"required,min=1"`
	Verb        string `validate:"required"`
	Deny        bool
	ResourceID  *int64 `validate:"omitempty,gt=0"`
}

package entity

// Resource is a registered URI template, versioned so at most one version
// per template is active at a time (spec.md §3).
type Resource struct {
	ID               int64
	URITemplate      string
	ResourceType     string
	Version          int
	Active           bool
	ParentResourceID *int64
}

// UriAccess joins a Permission to a Resource for a given verb/scheme,
// unique on (resource, verb, scheme) per spec.md §3.
type UriAccess struct {
	ID         int64
	ResourceID int64
	Verb       Verb
	Scheme     Scheme
	Grant      bool
	Deny       bool
}

// Key returns the uniqueness tuple for a UriAccess row.
func (u *UriAccess) Key() [3]any {
	return [3]any{u.ResourceID, u.Verb, u.Scheme}
}

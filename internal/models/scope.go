package models

import "fmt"

// Project is a tenant the caller is a direct member of
type Project struct {
	ID   string
	Name string
}

// Trust is a delegation allowing the caller to act inside another identity's project
type Trust struct {
	ID        string
	ProjectID string
}

// Scope is the authorization context a store client is bound to.
// Exactly one of ProjectID or TrustID identifies the scope; ProjectID is
// informational for trust scopes.
type Scope struct {
	TrustID   string
	ProjectID string
}

// IsTrust reports whether the scope is reached through a delegated trust
func (s Scope) IsTrust() bool {
	return s.TrustID != ""
}

func (s Scope) String() string {
	if s.IsTrust() {
		return fmt.Sprintf("trust:%s", s.TrustID)
	}
	return fmt.Sprintf("project:%s", s.ProjectID)
}

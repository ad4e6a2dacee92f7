package models

// Summary is the outcome of one per-tenant processor invocation
type Summary struct {
	Scope Scope
	// Processed counts snapshots created (creator) or destroyed (destroyer)
	Processed int
	Errors    int
}

// Success reports whether the tenant was processed without internal errors
func (s Summary) Success() bool {
	return s.Errors == 0
}

// AllSucceeded reports whether every collected tenant summary is a success.
// Tenants skipped for authorization never produce a summary.
func AllSucceeded(summaries []Summary) bool {
	for _, s := range summaries {
		if !s.Success() {
			return false
		}
	}
	return true
}

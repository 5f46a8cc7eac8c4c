package tools

import "fmt"

// ValidationError rejects a tool call whose arguments are malformed
// or physically implausible. It names the offending field so the
// model can correct and retry; it is never shown raw to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

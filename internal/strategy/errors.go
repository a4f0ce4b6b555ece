package strategy

import "fmt"

// NotFoundError reports a signal routed to an unknown user or strategy.
type NotFoundError struct {
	Kind string
	User string
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "user" {
		return fmt.Sprintf("user %q not found", e.User)
	}
	return fmt.Sprintf("strategy %q not found for user %q", e.Name, e.User)
}

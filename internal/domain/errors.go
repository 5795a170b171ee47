package domain

import "fmt"

// NotFoundError indicates the target item, project or account does not exist.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// ConflictError indicates a uniqueness or referential conflict, such as a
// slug that could not be allocated.
type ConflictError struct {
	Kind   string
	Key    string
	Reason string
}

func (e ConflictError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s conflict: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s %s conflict: %s", e.Kind, e.Key, e.Reason)
}

// ValidationError indicates malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

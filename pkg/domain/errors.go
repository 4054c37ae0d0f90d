package domain

import "fmt"

// ValidationError reports malformed input detected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing referenced entity, possibly removed by a
// concurrent caller between the read and the write.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// CrossProjectError reports a phase, parent, or dependency reference that
// crosses a project boundary.
type CrossProjectError struct {
	Entity    EntityType
	ID        string
	ProjectID string
}

func (e CrossProjectError) Error() string {
	return fmt.Sprintf("%s %s does not belong to project %s", e.Entity, e.ID, e.ProjectID)
}

// CycleError reports a dependency or parent-chain assignment that would
// close a cycle.
type CycleError struct {
	TaskID       string
	DependencyID string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("dependency %s -> %s would create a cycle", e.TaskID, e.DependencyID)
}

// ConflictError reports an invariant violated by concurrent state, or
// stored state too corrupt to evaluate (e.g. a dependency walk exceeding
// the task count).
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

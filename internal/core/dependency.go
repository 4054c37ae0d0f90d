package core

import (
	"plancore/pkg/domain"
)

// isBlocked reports whether the task has an incomplete blocking dependency.
// A dangling reference counts as not blocked; cascade cleanup should make
// that unreachable, but a read model never fails on it.
func isBlocked(view domain.TransactionView, t Task) bool {
	if t.DependencyID == nil {
		return false
	}
	dep, ok := view.FindTask(*t.DependencyID)
	if !ok {
		return false
	}
	return dep.Status != domain.TaskStatusCompleted
}

// wouldCreateCycle walks the dependency chain starting at depID looking for
// taskID. The walk is bounded by the snapshot's task count; exceeding it
// means the stored graph is already cyclic, which is surfaced as a conflict
// rather than looping forever.
func wouldCreateCycle(view domain.TransactionView, taskID, depID string) (bool, error) {
	if taskID == depID {
		return true, nil
	}
	limit := len(view.ListTasks())
	current := depID
	for steps := 0; current != ""; steps++ {
		if steps > limit {
			return false, domain.ConflictError{Reason: "dependency graph walk exceeded task count, stored state is cyclic"}
		}
		t, ok := view.FindTask(current)
		if !ok {
			return false, nil
		}
		if t.ID == taskID {
			return true, nil
		}
		if t.DependencyID == nil {
			return false, nil
		}
		current = *t.DependencyID
	}
	return false, nil
}

package core

import (
	"context"

	"plancore/pkg/domain"
)

// NewRulesEngine builds the engine evaluated on every commit. Structural
// rules always block; the completion gate's severity follows the configured
// policy.
func NewRulesEngine(gate GatePolicy) *domain.RulesEngine {
	if !gate.Valid() {
		gate = GatePolicyAdvisory
	}
	engine := domain.NewRulesEngine()
	engine.Register(dependencyIntegrityRule{})
	engine.Register(hierarchyIntegrityRule{})
	engine.Register(completionConsistencyRule{})
	engine.Register(completionGateRule{gate: gate})
	return engine
}

// changedTasks extracts the post-state of every task touched by the change
// set, deduplicated by id with the last write winning.
func changedTasks(changes []domain.Change) []Task {
	byID := make(map[string]Task)
	var order []string
	for _, ch := range changes {
		if ch.Entity != domain.EntityTask || ch.After == nil {
			continue
		}
		t, ok := ch.After.(Task)
		if !ok {
			continue
		}
		if _, seen := byID[t.ID]; !seen {
			order = append(order, t.ID)
		}
		byID[t.ID] = t
	}
	out := make([]Task, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// dependencyIntegrityRule re-validates every written task's blocking
// dependency against the post-mutation snapshot: the target must exist,
// share the project, differ from the task, and not close a cycle.
type dependencyIntegrityRule struct{}

func (dependencyIntegrityRule) Name() string { return "task.dependency.integrity" }

func (dependencyIntegrityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (Result, error) {
	var res Result
	for _, t := range changedTasks(changes) {
		if t.DependencyID == nil {
			continue
		}
		depID := *t.DependencyID
		if depID == t.ID {
			res.Violations = append(res.Violations, violation("task.dependency.integrity", t.ID, "task depends on itself"))
			continue
		}
		dep, ok := view.FindTask(depID)
		if !ok {
			res.Violations = append(res.Violations, violation("task.dependency.integrity", t.ID, "dependency target "+depID+" does not exist"))
			continue
		}
		if dep.ProjectID != t.ProjectID {
			res.Violations = append(res.Violations, violation("task.dependency.integrity", t.ID, "dependency target "+depID+" belongs to another project"))
			continue
		}
		cyclic, err := wouldCreateCycle(view, t.ID, depID)
		if err != nil {
			return Result{}, err
		}
		if cyclic {
			res.Violations = append(res.Violations, violation("task.dependency.integrity", t.ID, "dependency on "+depID+" closes a cycle"))
		}
	}
	return res, nil
}

// hierarchyIntegrityRule checks phase and parent references of every written
// task: both must exist within the task's own project, and the parent chain
// must stay acyclic.
type hierarchyIntegrityRule struct{}

func (hierarchyIntegrityRule) Name() string { return "task.hierarchy.integrity" }

func (hierarchyIntegrityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (Result, error) {
	var res Result
	for _, t := range changedTasks(changes) {
		if t.PhaseID != nil {
			ph, ok := view.FindPhase(*t.PhaseID)
			if !ok {
				res.Violations = append(res.Violations, violation("task.hierarchy.integrity", t.ID, "phase "+*t.PhaseID+" does not exist"))
			} else if ph.ProjectID != t.ProjectID {
				res.Violations = append(res.Violations, violation("task.hierarchy.integrity", t.ID, "phase "+*t.PhaseID+" belongs to another project"))
			}
		}
		if t.ParentTaskID == nil {
			continue
		}
		parentID := *t.ParentTaskID
		if parentID == t.ID {
			res.Violations = append(res.Violations, violation("task.hierarchy.integrity", t.ID, "task is its own parent"))
			continue
		}
		parent, ok := view.FindTask(parentID)
		if !ok {
			res.Violations = append(res.Violations, violation("task.hierarchy.integrity", t.ID, "parent task "+parentID+" does not exist"))
			continue
		}
		if parent.ProjectID != t.ProjectID {
			res.Violations = append(res.Violations, violation("task.hierarchy.integrity", t.ID, "parent task "+parentID+" belongs to another project"))
			continue
		}
		// Walk the parent chain bounded by the task count.
		limit := len(view.ListTasks())
		current := parentID
		for steps := 0; ; steps++ {
			if steps > limit {
				return Result{}, domain.ConflictError{Reason: "parent chain walk exceeded task count, stored state is cyclic"}
			}
			node, ok := view.FindTask(current)
			if !ok || node.ParentTaskID == nil {
				break
			}
			if *node.ParentTaskID == t.ID {
				res.Violations = append(res.Violations, violation("task.hierarchy.integrity", t.ID, "parent chain through "+parentID+" closes a cycle"))
				break
			}
			current = *node.ParentTaskID
		}
	}
	return res, nil
}

// completionConsistencyRule enforces that CompletedAt is set exactly when a
// task's status is completed.
type completionConsistencyRule struct{}

func (completionConsistencyRule) Name() string { return "task.completion.consistency" }

func (completionConsistencyRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (Result, error) {
	var res Result
	for _, t := range changedTasks(changes) {
		completed := t.Status == domain.TaskStatusCompleted
		if completed && t.CompletedAt == nil {
			res.Violations = append(res.Violations, violation("task.completion.consistency", t.ID, "completed task missing completion timestamp"))
		}
		if !completed && t.CompletedAt != nil {
			res.Violations = append(res.Violations, violation("task.completion.consistency", t.ID, "non-completed task carries a completion timestamp"))
		}
	}
	return res, nil
}

// completionGateRule fires when a task reaches completed while its blocking
// dependency is still incomplete. Severity depends on the gate policy:
// advisory warns, strict blocks.
type completionGateRule struct {
	gate GatePolicy
}

func (completionGateRule) Name() string { return "task.completion.gate" }

func (r completionGateRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (Result, error) {
	var res Result
	for _, ch := range changes {
		if ch.Entity != domain.EntityTask || ch.After == nil {
			continue
		}
		after, ok := ch.After.(Task)
		if !ok || after.Status != domain.TaskStatusCompleted {
			continue
		}
		if before, ok := ch.Before.(Task); ok && before.Status == domain.TaskStatusCompleted {
			continue // already completed, not a transition
		}
		if !isBlocked(view, after) {
			continue
		}
		severity := domain.SeverityWarn
		if r.gate == GatePolicyStrict {
			severity = domain.SeverityBlock
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "task.completion.gate",
			Severity: severity,
			Message:  "task completed while blocking dependency " + *after.DependencyID + " is incomplete",
			Entity:   domain.EntityTask,
			EntityID: after.ID,
		})
	}
	return res, nil
}

func violation(rule, taskID, msg string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityTask,
		EntityID: taskID,
	}
}

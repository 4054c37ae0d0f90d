package core

import (
	"context"
	"errors"
	"testing"

	"plancore/pkg/domain"
)

func TestCreateTaskValidation(t *testing.T) {
	svc := newTestService(GatePolicyAdvisory)
	ctx := context.Background()
	p := seedProject(t, svc, "p")

	_, _, err := svc.CreateTask(ctx, TaskInput{ProjectID: p.ID, Title: "   "})
	var ve domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}

	_, _, err = svc.CreateTask(ctx, TaskInput{ProjectID: "missing", Title: "t"})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for missing project, got %v", err)
	}

	task, _, err := svc.CreateTask(ctx, TaskInput{ProjectID: p.ID, Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != domain.TaskStatusPending || task.Priority != domain.PriorityNormal {
		t.Fatalf("defaults not applied: %s/%s", task.Status, task.Priority)
	}

	entries, err := svc.ListChangeLog(ctx, task.ID, 0)
	if err != nil {
		t.Fatalf("changelog: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.ChangeCreated {
		t.Fatalf("creation must append a created entry, got %+v", entries)
	}
}

func TestCreateTaskCrossProjectPhase(t *testing.T) {
	svc := newTestService(GatePolicyAdvisory)
	ctx := context.Background()
	p := seedProject(t, svc, "p")
	other := seedProject(t, svc, "other")
	foreignPhase, _, err := svc.CreatePhase(ctx, other.ID, PhaseInput{Name: "theirs", Order: -1})
	if err != nil {
		t.Fatalf("create phase: %v", err)
	}

	_, _, err = svc.CreateTask(ctx, TaskInput{ProjectID: p.ID, PhaseID: &foreignPhase.ID, Title: "t"})
	var cross domain.CrossProjectError
	if !errors.As(err, &cross) {
		t.Fatalf("expected CrossProjectError, got %v", err)
	}

	foreignTask := seedTask(t, svc, TaskInput{ProjectID: other.ID, Title: "foreign"})
	_, _, err = svc.CreateTask(ctx, TaskInput{ProjectID: p.ID, ParentTaskID: &foreignTask.ID, Title: "t"})
	if !errors.As(err, &cross) {
		t.Fatalf("expected CrossProjectError for foreign parent, got %v", err)
	}
}

func TestSubtaskInheritsParentPhase(t *testing.T) {
	svc := newTestService(GatePolicyAdvisory)
	ctx := context.Background()
	p := seedProject(t, svc, "p")
	ph, _, err := svc.CreatePhase(ctx, p.ID, PhaseInput{Name: "phase", Order: -1})
	if err != nil {
		t.Fatalf("create phase: %v", err)
	}
	parent := seedTask(t, svc, TaskInput{ProjectID: p.ID, PhaseID: &ph.ID, Title: "parent"})

	sub := seedTask(t, svc, TaskInput{ProjectID: p.ID, ParentTaskID: &parent.ID, Title: "sub"})
	if sub.PhaseID == nil || *sub.PhaseID != ph.ID {
		t.Fatalf("subtask did not inherit parent phase: %+v", sub.PhaseID)
	}
}

func TestToggleCompletionTwiceLeavesTwoLogEntries(t *testing.T) {
	svc := newTestService(GatePolicyAdvisory)
	ctx := context.Background()
	p := seedProject(t, svc, "p")
	task := seedTask(t, svc, TaskInput{ProjectID: p.ID, Title: "t"})

	completed, _, err := svc.ToggleCompletion(ctx, task.ID, true)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if completed.Status != domain.TaskStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("toggle did not complete: %+v", completed)
	}

	reopened, _, err := svc.ToggleCompletion(ctx, task.ID, false)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if reopened.Status != domain.TaskStatusPending || reopened.CompletedAt != nil {
		t.Fatalf("toggle did not reopen: %+v", reopened)
	}

	entries, err := svc.ListChangeLog(ctx, task.ID, 0)
	if err != nil {
		t.Fatalf("changelog: %v", err)
	}
	// created + completed + reopened, newest first.
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Action != domain.ChangeReopened || entries[1].Action != domain.ChangeCompleted {
		t.Fatalf("toggle history wrong: %+v", entries)
	}
}

func TestDependencyCycleRejectedAndGraphUnchanged(t *testing.T) {
	svc := newTestService(GatePolicyAdvisory)
	ctx := context.Background()
	p := seedProject(t, svc, "p")
	a := seedTask(t, svc, TaskInput{ProjectID: p.ID, Title: "a"})
	b := seedTask(t, svc, TaskInput{ProjectID: p.ID, Title: "b"})
	c := seedTask(t, svc, TaskInput{ProjectID: p.ID, Title: "c"})

	if _, _, err := svc.SetDependency(ctx, b.ID, &a.ID); err != nil {
		t.Fatalf("b->a: %v", err)
	}
	if _, _, err := svc.SetDependency(ctx, c.ID, &b.ID); err != nil {
		t.Fatalf("c->b: %v", err)
	}

	_, _, err := svc.SetDependency(ctx, a.ID, &c.ID)
	var cycle domain.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError closing a->c, got %v", err)
	}
	_, _, err = svc.SetDependency(ctx, a.ID, &a.ID)
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError for self dependency, got %v", err)
	}

	got, err := svc.GetTask(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DependencyID != nil {
		t.Fatalf("rejected assignment mutated the graph: %+v", got.DependencyID)
	}
	logEntries, err := svc.ListChangeLog(ctx, a.ID, 0)
	if err != nil {
		t.Fatalf("changelog: %v", err)
	}
	for _, e := range logEntries {
		if e.Action == domain.ChangeDependencySet {
			t.Fatalf("rejected assignment left a dependency_set entry")
		}
	}
}

func TestDependencyCrossProjectAndMissingTarget(t *testing.T) {
	svc := newTestService(GatePolicyAdvisory)
	ctx := context.Background()
	p := seedProject(t, svc, "p")
	other := seedProject(t, svc, "other")
	task := seedTask(t, svc, TaskInput{ProjectID: p.ID, Title: "t"})
	foreign := seedTask(t, svc, TaskInput{ProjectID: other.ID, Title: "foreign"})

	_, _, err := svc.SetDependency(ctx, task.ID, &foreign.ID)
	var cross domain.CrossProjectError
	if !errors.As(err, &cross) {
		t.Fatalf("expected CrossProjectError, got %v", err)
	}

	victim := seedTask(t, svc, TaskInput{ProjectID: p.ID, Title: "victim"})
	if _, err := svc.DeleteTask(ctx, victim.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, _, err = svc.SetDependency(ctx, task.ID, &victim.ID)
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for deleted target, got %v", err)
	}
}

func TestClearDependencyLogsEntry(t *testing.T) {
	svc := newTestService(GatePolicyAdvisory)
	ctx := context.Background()
	p := seedProject(t, svc, "p")
	a := seedTask(t, svc, TaskInput{ProjectID: p.ID, Title: "a"})
	b := seedTask(t, svc, TaskInput{ProjectID: p.ID, Title: "b"})

	if _, _, err := svc.SetDependency(ctx, b.ID, &a.ID); err != nil {
		t.Fatalf("set: %v", err)
	}
	cleared, _, err := svc.SetDependency(ctx, b.ID, nil)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared.DependencyID != nil {
		t.Fatalf("dependency not cleared")
	}
	entries, err := svc.ListChangeLog(ctx, b.ID, 1)
	if err != nil {
		t.Fatalf("changelog: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.ChangeDependencyCleared {
		t.Fatalf("expected dependency_cleared entry, got %+v", entries)
	}
}

func TestGatePolicyAdvisoryWarnsStrictBlocks(t *testing.T) {
	ctx := context.Background()

	advisory := newTestService(GatePolicyAdvisory)
	p := seedProject(t, advisory, "p")
	dep := seedTask(t, advisory, TaskInput{ProjectID: p.ID, Title: "dep"})
	task := seedTask(t, advisory, TaskInput{ProjectID: p.ID, Title: "t"})
	if _, _, err := advisory.SetDependency(ctx, task.ID, &dep.ID); err != nil {
		t.Fatalf("set dependency: %v", err)
	}
	completed, res, err := advisory.ToggleCompletion(ctx, task.ID, true)
	if err != nil {
		t.Fatalf("advisory gate must allow completion: %v", err)
	}
	if completed.Status != domain.TaskStatusCompleted {
		t.Fatalf("task not completed under advisory gate")
	}
	if len(res.Warnings()) == 0 {
		t.Fatalf("advisory gate must surface a warning")
	}

	strict := newTestService(GatePolicyStrict)
	p2 := seedProject(t, strict, "p2")
	dep2 := seedTask(t, strict, TaskInput{ProjectID: p2.ID, Title: "dep"})
	task2 := seedTask(t, strict, TaskInput{ProjectID: p2.ID, Title: "t"})
	if _, _, err := strict.SetDependency(ctx, task2.ID, &dep2.ID); err != nil {
		t.Fatalf("set dependency: %v", err)
	}
	_, _, err = strict.ToggleCompletion(ctx, task2.ID, true)
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("strict gate must block completion, got %v", err)
	}
	got, err := strict.GetTask(ctx, task2.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.TaskStatusPending {
		t.Fatalf("blocked completion leaked: %s", got.Status)
	}

	// Complete the dependency, then the gated task goes through cleanly.
	if _, _, err := strict.ToggleCompletion(ctx, dep2.ID, true); err != nil {
		t.Fatalf("complete dependency: %v", err)
	}
	if _, res, err := strict.ToggleCompletion(ctx, task2.ID, true); err != nil || len(res.Warnings()) != 0 {
		t.Fatalf("completion with satisfied dependency should be clean: %v %v", err, res.Warnings())
	}
}

func TestDeleteTaskLogsOnSurvivingParent(t *testing.T) {
	svc := newTestService(GatePolicyAdvisory)
	ctx := context.Background()
	p := seedProject(t, svc, "p")
	parent := seedTask(t, svc, TaskInput{ProjectID: p.ID, Title: "parent"})
	sub := seedTask(t, svc, TaskInput{ProjectID: p.ID, ParentTaskID: &parent.ID, Title: "sub"})

	if _, err := svc.DeleteTask(ctx, sub.ID); err != nil {
		t.Fatalf("delete subtask: %v", err)
	}
	entries, err := svc.ListChangeLog(ctx, parent.ID, 1)
	if err != nil {
		t.Fatalf("changelog: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.ChangeDeleted {
		t.Fatalf("expected deleted entry on parent log, got %+v", entries)
	}
}

func TestUpdateTaskStatusManagesCompletionTimestamp(t *testing.T) {
	svc := newTestService(GatePolicyAdvisory)
	ctx := context.Background()
	p := seedProject(t, svc, "p")
	task := seedTask(t, svc, TaskInput{ProjectID: p.ID, Title: "t"})

	completed := domain.TaskStatusCompleted
	updated, _, err := svc.UpdateTask(ctx, task.ID, TaskPatch{Status: &completed})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatalf("status change to completed must set the timestamp")
	}

	inProgress := domain.TaskStatusInProgress
	updated, _, err = svc.UpdateTask(ctx, task.ID, TaskPatch{Status: &inProgress})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CompletedAt != nil {
		t.Fatalf("leaving completed must clear the timestamp")
	}

	entries, err := svc.ListChangeLog(ctx, task.ID, 0)
	if err != nil {
		t.Fatalf("changelog: %v", err)
	}
	if entries[0].Action != domain.ChangeStatusChanged {
		t.Fatalf("status change must log status_changed, got %+v", entries[0])
	}
}

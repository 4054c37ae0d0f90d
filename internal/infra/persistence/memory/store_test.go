package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"plancore/pkg/domain"
)

func newTestStore() *Store {
	return NewStore(domain.NewRulesEngine())
}

func mustCreateProject(t *testing.T, s *Store, name string) Project {
	t.Helper()
	var created Project
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		created, txErr = tx.CreateProject(Project{Name: name, Status: domain.ProjectStatusPlanning, Priority: domain.PriorityNormal})
		return txErr
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return created
}

func mustCreateTask(t *testing.T, s *Store, task Task) Task {
	t.Helper()
	var created Task
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		created, txErr = tx.CreateTask(task)
		return txErr
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return created
}

func TestTransactionRollbackOnError(t *testing.T) {
	s := newTestStore()
	sentinel := errors.New("boom")
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, txErr := tx.CreateProject(Project{Name: "doomed"}); txErr != nil {
			return txErr
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if got := len(s.ListProjects()); got != 0 {
		t.Fatalf("failed transaction leaked state: %d projects", got)
	}
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	s := NewStore(engine)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.CreateProject(Project{Name: "p"})
		return txErr
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if got := len(s.ListProjects()); got != 0 {
		t.Fatalf("blocked transaction leaked state: %d projects", got)
	}
}

type blockEverything struct{}

func (blockEverything) Name() string { return "test.block" }

func (blockEverything) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (Result, error) {
	if len(changes) == 0 {
		return Result{}, nil
	}
	return Result{Violations: []domain.Violation{{Rule: "test.block", Severity: domain.SeverityBlock}}}, nil
}

func TestReturnedRecordsAreClones(t *testing.T) {
	s := newTestStore()
	p := mustCreateProject(t, s, "original")
	unit := "u1"
	task := mustCreateTask(t, s, Task{ProjectID: p.ID, Title: "t", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal})

	got, _ := s.GetTask(task.ID)
	got.Title = "mutated"
	got.PhaseID = &unit
	again, _ := s.GetTask(task.ID)
	if again.Title != "t" || again.PhaseID != nil {
		t.Fatalf("mutating a returned task leaked into the store: %+v", again)
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	s := newTestStore()
	p := mustCreateProject(t, s, "p")
	task := mustCreateTask(t, s, Task{ProjectID: p.ID, Title: "t", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal})
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.AppendChangeLog(ChangeLogEntry{TaskID: task.ID, Action: domain.ChangeCreated, Description: "task created"})
		return txErr
	})
	if err != nil {
		t.Fatalf("append changelog: %v", err)
	}

	snap := s.ExportState()
	restored := NewStore(domain.NewRulesEngine())
	restored.ImportState(snap)

	if !reflect.DeepEqual(restored.ExportState(), snap) {
		t.Fatalf("snapshot did not roundtrip")
	}
	if _, ok := restored.GetTask(task.ID); !ok {
		t.Fatalf("restored store lost task %s", task.ID)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	s := newTestStore()
	p := mustCreateProject(t, s, "p")
	other := mustCreateProject(t, s, "other")
	otherTask := mustCreateTask(t, s, Task{ProjectID: other.ID, Title: "keep", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal})

	var task Task
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		ph, txErr := tx.CreatePhase(Phase{ProjectID: p.ID, Name: "phase 1"})
		if txErr != nil {
			return txErr
		}
		task, txErr = tx.CreateTask(Task{ProjectID: p.ID, PhaseID: &ph.ID, Title: "t", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal})
		if txErr != nil {
			return txErr
		}
		if _, txErr = tx.CreateTeamMembership(TeamMembership{ProjectID: p.ID, Person: domain.PartyRef{Kind: domain.PartyStaff, ID: "s1"}}); txErr != nil {
			return txErr
		}
		if _, txErr = tx.CreateAttachment(Attachment{ProjectID: p.ID, TaskID: task.ID, FileName: "f", StorageKey: "k"}); txErr != nil {
			return txErr
		}
		if _, txErr = tx.CreateComment(Comment{TaskID: task.ID, Author: domain.PartyRef{Kind: domain.PartyStaff, ID: "s1"}, Body: "hi"}); txErr != nil {
			return txErr
		}
		_, txErr = tx.AppendChangeLog(ChangeLogEntry{TaskID: task.ID, Action: domain.ChangeCreated})
		return txErr
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteProject(p.ID)
	}); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	snap := s.ExportState()
	if len(snap.Phases) != 0 || len(snap.Memberships) != 0 || len(snap.Attachments) != 0 || len(snap.Comments) != 0 || len(snap.ChangeLog) != 0 {
		t.Fatalf("cascade left residue: %+v", snap)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].ID != otherTask.ID {
		t.Fatalf("cascade touched another project's tasks: %+v", snap.Tasks)
	}
}

func TestDeleteTaskRemovesSubtreeAndClearsDependencies(t *testing.T) {
	s := newTestStore()
	p := mustCreateProject(t, s, "p")
	parent := mustCreateTask(t, s, Task{ProjectID: p.ID, Title: "parent", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal})
	child := mustCreateTask(t, s, Task{ProjectID: p.ID, ParentTaskID: &parent.ID, Title: "child", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal})
	grandchild := mustCreateTask(t, s, Task{ProjectID: p.ID, ParentTaskID: &child.ID, Title: "grandchild", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal})
	dependent := mustCreateTask(t, s, Task{ProjectID: p.ID, DependencyID: &child.ID, Title: "dependent", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal})

	var deleted []Task
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		deleted, txErr = tx.DeleteTask(parent.ID)
		return txErr
	})
	if err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if len(deleted) != 3 {
		t.Fatalf("expected 3 deleted tasks, got %d", len(deleted))
	}
	for _, id := range []string{parent.ID, child.ID, grandchild.ID} {
		if _, ok := s.GetTask(id); ok {
			t.Fatalf("task %s survived subtree deletion", id)
		}
	}
	survivor, ok := s.GetTask(dependent.ID)
	if !ok {
		t.Fatalf("dependent task should survive")
	}
	if survivor.DependencyID != nil {
		t.Fatalf("dangling dependency reference left on %s", survivor.ID)
	}
}

func TestDeletePhaseDetachesTasks(t *testing.T) {
	s := newTestStore()
	p := mustCreateProject(t, s, "p")
	var ph Phase
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		ph, txErr = tx.CreatePhase(Phase{ProjectID: p.ID, Name: "phase"})
		return txErr
	})
	if err != nil {
		t.Fatalf("create phase: %v", err)
	}
	task := mustCreateTask(t, s, Task{ProjectID: p.ID, PhaseID: &ph.ID, Title: "t", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal})

	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeletePhase(ph.ID)
	}); err != nil {
		t.Fatalf("delete phase: %v", err)
	}
	got, ok := s.GetTask(task.ID)
	if !ok {
		t.Fatalf("task deleted with its phase")
	}
	if got.PhaseID != nil {
		t.Fatalf("task still references deleted phase")
	}
}

func TestChangeLogOrderingAndLimit(t *testing.T) {
	s := newTestStore()
	p := mustCreateProject(t, s, "p")
	task := mustCreateTask(t, s, Task{ProjectID: p.ID, Title: "t", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal})

	actions := []domain.ChangeAction{domain.ChangeCreated, domain.ChangeUpdated, domain.ChangeCompleted}
	for _, action := range actions {
		if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, txErr := tx.AppendChangeLog(ChangeLogEntry{TaskID: task.ID, Action: action})
			return txErr
		}); err != nil {
			t.Fatalf("append %s: %v", action, err)
		}
	}

	err := s.View(context.Background(), func(view domain.TransactionView) error {
		entries := view.ListTaskChangeLog(task.ID, 0)
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}
		if entries[0].Action != domain.ChangeCompleted || entries[2].Action != domain.ChangeCreated {
			t.Fatalf("entries not newest-first: %+v", entries)
		}
		limited := view.ListTaskChangeLog(task.ID, 2)
		if len(limited) != 2 || limited[0].Action != domain.ChangeCompleted {
			t.Fatalf("limit not applied newest-first: %+v", limited)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestAppendChangeLogRequiresTask(t *testing.T) {
	s := newTestStore()
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.AppendChangeLog(ChangeLogEntry{Action: domain.ChangeCreated})
		return txErr
	})
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestUpdatePreservesBaseFields(t *testing.T) {
	s := newTestStore()
	p := mustCreateProject(t, s, "p")
	var updated Project
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateProject(p.ID, func(proj *Project) error {
			proj.ID = "hijacked"
			proj.Name = "renamed"
			return nil
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("update project: %v", err)
	}
	if updated.ID != p.ID {
		t.Fatalf("mutator overrode the record id: %s", updated.ID)
	}
	if !updated.CreatedAt.Equal(p.CreatedAt) {
		t.Fatalf("update changed CreatedAt")
	}
	if updated.Name != "renamed" {
		t.Fatalf("update lost the mutation")
	}
}

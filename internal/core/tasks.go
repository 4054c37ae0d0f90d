package core

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"plancore/pkg/domain"
)

// CreateTask validates references eagerly against the transactional
// snapshot and stores a new task. A subtask without an explicit phase
// inherits its parent's phase.
func (s *Service) CreateTask(ctx context.Context, in TaskInput) (Task, Result, error) {
	start := s.nowFn()
	title := strings.TrimSpace(in.Title)
	if title == "" {
		err := domain.ValidationError{Field: "title", Reason: "required"}
		s.observe("task.create", start, err, Result{})
		return Task{}, Result{}, err
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityNormal
	}
	if !validPriority(in.Priority) {
		err := domain.ValidationError{Field: "priority", Reason: "unknown priority " + string(in.Priority)}
		s.observe("task.create", start, err, Result{})
		return Task{}, Result{}, err
	}
	if in.Responsible != nil && !in.Responsible.Valid() {
		err := domain.ValidationError{Field: "responsible", Reason: "unknown party kind or missing id"}
		s.observe("task.create", start, err, Result{})
		return Task{}, Result{}, err
	}

	var created Task
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		if _, ok := view.FindProject(in.ProjectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: in.ProjectID}
		}
		phaseID := in.PhaseID
		if phaseID != nil {
			ph, ok := view.FindPhase(*phaseID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityPhase, ID: *phaseID}
			}
			if ph.ProjectID != in.ProjectID {
				return domain.CrossProjectError{Entity: domain.EntityPhase, ID: *phaseID, ProjectID: in.ProjectID}
			}
		}
		if in.ParentTaskID != nil {
			parent, ok := view.FindTask(*in.ParentTaskID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityTask, ID: *in.ParentTaskID}
			}
			if parent.ProjectID != in.ProjectID {
				return domain.CrossProjectError{Entity: domain.EntityTask, ID: *in.ParentTaskID, ProjectID: in.ProjectID}
			}
			if phaseID == nil {
				phaseID = parent.PhaseID
			}
		}
		var txErr error
		created, txErr = tx.CreateTask(Task{
			ProjectID:    in.ProjectID,
			PhaseID:      phaseID,
			ParentTaskID: in.ParentTaskID,
			Title:        title,
			Description:  in.Description,
			Status:       domain.TaskStatusPending,
			Priority:     in.Priority,
			DueDate:      in.DueDate,
			Responsible:  in.Responsible,
			Order:        in.Order,
			CreatedBy:    in.CreatedBy,
		})
		if txErr != nil {
			return txErr
		}
		_, txErr = tx.AppendChangeLog(ChangeLogEntry{
			TaskID:      created.ID,
			Action:      domain.ChangeCreated,
			Description: "task created",
		})
		return txErr
	})
	s.observe("task.create", start, err, res)
	if err != nil {
		return Task{}, res, err
	}
	s.logger.Info("task created",
		zap.String("task_id", created.ID),
		zap.String("project_id", created.ProjectID))
	return created, res, nil
}

// UpdateTask applies a patch to a task. Status changes manage the
// completion timestamp and record a status change log entry; everything
// else records a plain update.
func (s *Service) UpdateTask(ctx context.Context, id string, patch TaskPatch) (Task, Result, error) {
	start := s.nowFn()
	var updated Task
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		statusChanged := false
		var txErr error
		updated, txErr = tx.UpdateTask(id, func(t *Task) error {
			if patch.Title != nil {
				title := strings.TrimSpace(*patch.Title)
				if title == "" {
					return domain.ValidationError{Field: "title", Reason: "required"}
				}
				t.Title = title
			}
			if patch.Description != nil {
				t.Description = *patch.Description
			}
			if patch.Status != nil && *patch.Status != t.Status {
				if !validTaskStatus(*patch.Status) {
					return domain.ValidationError{Field: "status", Reason: "unknown status " + string(*patch.Status)}
				}
				statusChanged = true
				t.Status = *patch.Status
				if t.Status == domain.TaskStatusCompleted {
					now := s.nowFn()
					t.CompletedAt = &now
				} else {
					t.CompletedAt = nil
				}
			}
			if patch.Priority != nil {
				if !validPriority(*patch.Priority) {
					return domain.ValidationError{Field: "priority", Reason: "unknown priority " + string(*patch.Priority)}
				}
				t.Priority = *patch.Priority
			}
			if patch.ClearDueDate {
				t.DueDate = nil
			} else if patch.DueDate != nil {
				t.DueDate = patch.DueDate
			}
			if patch.ClearResponsible {
				t.Responsible = nil
			} else if patch.Responsible != nil {
				if !patch.Responsible.Valid() {
					return domain.ValidationError{Field: "responsible", Reason: "unknown party kind or missing id"}
				}
				t.Responsible = patch.Responsible
			}
			if patch.Order != nil {
				t.Order = *patch.Order
			}
			return nil
		})
		if txErr != nil {
			return txErr
		}
		action := domain.ChangeUpdated
		desc := "task updated"
		if statusChanged {
			action = domain.ChangeStatusChanged
			desc = "status changed to " + string(updated.Status)
		}
		_, txErr = tx.AppendChangeLog(ChangeLogEntry{TaskID: id, Action: action, Description: desc})
		return txErr
	})
	s.observe("task.update", start, err, res)
	if err != nil {
		return Task{}, res, err
	}
	return updated, res, nil
}

// ToggleCompletion sets a task to completed or reverts it to pending.
// Completing sets the timestamp and appends a completed entry; reopening
// clears the timestamp and appends a reopened entry. A call that matches
// the current state writes nothing. Incomplete dependencies gate the
// completion per the configured policy.
func (s *Service) ToggleCompletion(ctx context.Context, id string, completed bool) (Task, Result, error) {
	start := s.nowFn()
	var updated Task
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		noop := false
		var txErr error
		updated, txErr = tx.UpdateTask(id, func(t *Task) error {
			already := t.Status == domain.TaskStatusCompleted
			if already == completed {
				noop = true
				return nil
			}
			if completed {
				t.Status = domain.TaskStatusCompleted
				now := s.nowFn()
				t.CompletedAt = &now
				return nil
			}
			t.Status = domain.TaskStatusPending
			t.CompletedAt = nil
			return nil
		})
		if txErr != nil || noop {
			return txErr
		}
		entry := ChangeLogEntry{TaskID: id, Action: domain.ChangeReopened, Description: "task reopened"}
		if completed {
			entry = ChangeLogEntry{TaskID: id, Action: domain.ChangeCompleted, Description: "task completed"}
		}
		_, txErr = tx.AppendChangeLog(entry)
		return txErr
	})
	s.observe("task.toggle", start, err, res)
	if err != nil {
		return Task{}, res, err
	}
	return updated, res, nil
}

// SetDependency sets or clears a task's single blocking dependency. A nil
// dependencyID clears. References are checked eagerly here and re-checked
// by the rules engine at commit.
func (s *Service) SetDependency(ctx context.Context, taskID string, dependencyID *string) (Task, Result, error) {
	start := s.nowFn()
	var updated Task
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		current, ok := view.FindTask(taskID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
		}
		if dependencyID != nil {
			depID := *dependencyID
			if depID == taskID {
				return domain.CycleError{TaskID: taskID, DependencyID: depID}
			}
			dep, ok := view.FindTask(depID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityTask, ID: depID}
			}
			if dep.ProjectID != current.ProjectID {
				return domain.CrossProjectError{Entity: domain.EntityTask, ID: depID, ProjectID: current.ProjectID}
			}
			cyclic, err := wouldCreateCycle(view, taskID, depID)
			if err != nil {
				return err
			}
			if cyclic {
				return domain.CycleError{TaskID: taskID, DependencyID: depID}
			}
		}
		var txErr error
		updated, txErr = tx.UpdateTask(taskID, func(t *Task) error {
			t.DependencyID = dependencyID
			return nil
		})
		if txErr != nil {
			return txErr
		}
		entry := ChangeLogEntry{TaskID: taskID, Action: domain.ChangeDependencyCleared, Description: "dependency cleared"}
		if dependencyID != nil {
			entry = ChangeLogEntry{TaskID: taskID, Action: domain.ChangeDependencySet, Description: "dependency set to " + *dependencyID}
		}
		_, txErr = tx.AppendChangeLog(entry)
		return txErr
	})
	s.observe("task.dependency", start, err, res)
	if err != nil {
		return Task{}, res, err
	}
	return updated, res, nil
}

// DeleteTask removes a task and its subtask subtree, clears dependency
// references pointing into the deleted set, records a deletion entry on a
// surviving parent's log, and finally releases the subtree's attachment
// payloads from blob storage.
func (s *Service) DeleteTask(ctx context.Context, id string) (Result, error) {
	start := s.nowFn()
	var keys []string
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		doomed, ok := view.FindTask(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityTask, ID: id}
		}
		// The view tracks the live transactional state, so attachment keys
		// must be collected before the delete mutates it.
		keysByTask := make(map[string][]string)
		for _, t := range view.ListProjectTasks(doomed.ProjectID) {
			for _, a := range view.ListTaskAttachments(t.ID) {
				keysByTask[t.ID] = append(keysByTask[t.ID], a.StorageKey)
			}
		}
		deleted, txErr := tx.DeleteTask(id)
		if txErr != nil {
			return txErr
		}
		for _, t := range deleted {
			keys = append(keys, keysByTask[t.ID]...)
		}
		// A deleted subtask leaves a trace on its surviving parent's log.
		if doomed.ParentTaskID != nil {
			if _, stillThere := tx.Snapshot().FindTask(*doomed.ParentTaskID); stillThere {
				if _, txErr = tx.AppendChangeLog(ChangeLogEntry{
					TaskID:      *doomed.ParentTaskID,
					Action:      domain.ChangeDeleted,
					Description: "subtask " + doomed.Title + " deleted",
				}); txErr != nil {
					return txErr
				}
			}
		}
		return nil
	})
	s.observe("task.delete", start, err, res)
	if err != nil {
		return res, err
	}
	s.releaseBlobs(ctx, keys)
	return res, nil
}

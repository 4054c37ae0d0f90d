package core

import (
	"context"

	"plancore/pkg/domain"
)

// ProjectFilter narrows ListProjects results.
type ProjectFilter struct {
	UnitID          *string
	Status          domain.ProjectStatus
	IncludeArchived bool
}

// GetProject returns one project record.
func (s *Service) GetProject(ctx context.Context, id string) (Project, error) {
	p, ok := s.store.GetProject(id)
	if !ok {
		return Project{}, domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	return p, nil
}

// ListProjects returns projects matching the filter, creation order. A
// project without a unit applies to all units and matches any unit filter.
func (s *Service) ListProjects(ctx context.Context, filter ProjectFilter) []Project {
	var out []Project
	for _, p := range s.store.ListProjects() {
		if !filter.IncludeArchived && p.Archived {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.UnitID != nil && p.UnitID != nil && *p.UnitID != *filter.UnitID {
			continue
		}
		out = append(out, p)
	}
	return out
}

// GetTask returns one task record.
func (s *Service) GetTask(ctx context.Context, id string) (Task, error) {
	t, ok := s.store.GetTask(id)
	if !ok {
		return Task{}, domain.NotFoundError{Entity: domain.EntityTask, ID: id}
	}
	return t, nil
}

// GetTaskDetail returns a task with its blocked flag and nested subtasks,
// recomputed from committed state.
func (s *Service) GetTaskDetail(ctx context.Context, id string) (TaskDetail, error) {
	var detail TaskDetail
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		t, ok := view.FindTask(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityTask, ID: id}
		}
		detail = buildTaskDetail(view, t)
		return nil
	})
	return detail, err
}

func buildTaskDetail(view domain.TransactionView, t Task) TaskDetail {
	detail := TaskDetail{Task: t, Blocked: isBlocked(view, t)}
	for _, sub := range view.ListSubtasks(t.ID) {
		detail.Subtasks = append(detail.Subtasks, buildTaskDetail(view, sub))
	}
	return detail
}

// ListTasks returns a project's tasks filtered and enriched with blocked
// flags. Subtasks stay nested under their parents unless the filter matches
// them directly with TopLevelOnly unset.
func (s *Service) ListTasks(ctx context.Context, projectID string, filter TaskFilter) ([]TaskDetail, error) {
	var out []TaskDetail
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.FindProject(projectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
		}
		now := s.nowFn()
		for _, t := range view.ListProjectTasks(projectID) {
			if filter.TopLevelOnly && t.ParentTaskID != nil {
				continue
			}
			if filter.PhaseID != nil {
				if t.PhaseID == nil || *t.PhaseID != *filter.PhaseID {
					continue
				}
			}
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			if filter.Priority != "" && t.Priority != filter.Priority {
				continue
			}
			if filter.Responsible != nil {
				if t.Responsible == nil || !t.Responsible.Equal(*filter.Responsible) {
					continue
				}
			}
			if filter.Overdue {
				if t.DueDate == nil || !t.DueDate.Before(now) || t.Status == domain.TaskStatusCompleted || t.Status == domain.TaskStatusCancelled {
					continue
				}
			}
			out = append(out, TaskDetail{Task: t, Blocked: isBlocked(view, t)})
		}
		return nil
	})
	return out, err
}

// GetProjectDetail assembles the full nested read model for one project:
// phases in order with their tasks and progress, unphased backlog tasks,
// team, and overall progress. Everything derived is recomputed on the spot.
func (s *Service) GetProjectDetail(ctx context.Context, id string) (ProjectDetail, error) {
	var detail ProjectDetail
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		p, ok := view.FindProject(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: id}
		}
		detail = ProjectDetail{Project: p}

		all := view.ListProjectTasks(id)
		detail.Progress = summarize(all)

		byPhase := make(map[string][]Task)
		var backlog []Task
		for _, t := range all {
			if t.ParentTaskID != nil {
				continue // nested under its parent
			}
			if t.PhaseID == nil {
				backlog = append(backlog, t)
				continue
			}
			byPhase[*t.PhaseID] = append(byPhase[*t.PhaseID], t)
		}

		for _, ph := range view.ListProjectPhases(id) {
			var phaseTasks []Task
			for _, t := range all {
				if t.PhaseID != nil && *t.PhaseID == ph.ID {
					phaseTasks = append(phaseTasks, t)
				}
			}
			progress := summarize(phaseTasks)
			pd := PhaseDetail{
				Phase:    ph,
				Progress: progress,
				Status:   phaseStatusFor(progress, phaseTasks),
				Tasks:    []TaskDetail{},
			}
			for _, t := range byPhase[ph.ID] {
				pd.Tasks = append(pd.Tasks, buildTaskDetail(view, t))
			}
			detail.Phases = append(detail.Phases, pd)
		}
		for _, t := range backlog {
			detail.Backlog = append(detail.Backlog, buildTaskDetail(view, t))
		}
		detail.Team = view.ListTeamMemberships(id)
		return nil
	})
	return detail, err
}

package core

import (
	"math"

	"plancore/pkg/domain"
)

// PhaseStatus is derived from a phase's top-level tasks; it is never stored.
type PhaseStatus string

const (
	PhaseStatusPending    PhaseStatus = "pending"
	PhaseStatusInProgress PhaseStatus = "in_progress"
	PhaseStatusCompleted  PhaseStatus = "completed"
)

// ProgressSummary counts top-level tasks and their completion. Subtasks do
// not participate in rollups; they surface only under their parent.
type ProgressSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Percent   int `json:"percent"`
}

func summarize(tasks []Task) ProgressSummary {
	var s ProgressSummary
	for _, t := range tasks {
		if t.ParentTaskID != nil {
			continue
		}
		s.Total++
		if t.Status == domain.TaskStatusCompleted {
			s.Completed++
		}
	}
	if s.Completed > 0 {
		s.Percent = int(math.Round(float64(s.Completed) / float64(s.Total) * 100))
	}
	return s
}

// phaseStatusFor mirrors progress into a coarse lifecycle label. A phase
// with no tasks is pending; all complete is completed; anything started in
// between is in progress.
func phaseStatusFor(s ProgressSummary, tasks []Task) PhaseStatus {
	if s.Total == 0 {
		return PhaseStatusPending
	}
	if s.Completed == s.Total {
		return PhaseStatusCompleted
	}
	if s.Completed > 0 {
		return PhaseStatusInProgress
	}
	for _, t := range tasks {
		if t.ParentTaskID == nil && t.Status == domain.TaskStatusInProgress {
			return PhaseStatusInProgress
		}
	}
	return PhaseStatusPending
}

// PhaseProgress recomputes one phase's progress from committed state.
func (s *Service) PhaseProgress(phaseID string) (ProgressSummary, error) {
	ph, ok := s.store.GetPhase(phaseID)
	if !ok {
		return ProgressSummary{}, domain.NotFoundError{Entity: domain.EntityPhase, ID: phaseID}
	}
	var tasks []Task
	for _, t := range s.store.ListTasks() {
		if t.ProjectID == ph.ProjectID && t.PhaseID != nil && *t.PhaseID == phaseID {
			tasks = append(tasks, t)
		}
	}
	return summarize(tasks), nil
}

// ProjectProgress recomputes a project's overall progress across every
// top-level task, phased or not.
func (s *Service) ProjectProgress(projectID string) (ProgressSummary, error) {
	if _, ok := s.store.GetProject(projectID); !ok {
		return ProgressSummary{}, domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
	}
	var tasks []Task
	for _, t := range s.store.ListTasks() {
		if t.ProjectID == projectID {
			tasks = append(tasks, t)
		}
	}
	return summarize(tasks), nil
}

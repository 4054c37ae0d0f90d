package core

import (
	"context"
	"math"
	"sort"
	"time"

	"plancore/pkg/domain"
)

// ProjectStats is the dashboard aggregate for a set of projects, always
// compiled fresh from committed state. OverdueCount counts tasks past
// their due date and still open.
type ProjectStats struct {
	TotalCount       int                          `json:"total_count"`
	ActiveCount      int                          `json:"active_count"`
	OverdueCount     int                          `json:"overdue_count"`
	PendingTaskCount int                          `json:"pending_task_count"`
	CompletionRate   int                          `json:"completion_rate"`
	ByStatus         map[domain.ProjectStatus]int `json:"by_status"`
}

// DeadlineUrgency buckets a deadline by distance from now.
type DeadlineUrgency string

const (
	UrgencyNormal  DeadlineUrgency = "normal"
	UrgencyWarning DeadlineUrgency = "warning" // due within a week
	UrgencyUrgent  DeadlineUrgency = "urgent"  // past due
)

// Deadline is one row of the merged deadline feed, either a project end
// date or a task due date.
type Deadline struct {
	Kind      domain.EntityType `json:"kind"` // project or task
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id"`
	Title     string            `json:"title"`
	Due       time.Time         `json:"due"`
	Urgency   DeadlineUrgency   `json:"urgency"`
}

// Alert flags a condition needing attention on the dashboard.
type Alert struct {
	Kind      string            `json:"kind"`
	Entity    domain.EntityType `json:"entity"`
	EntityID  string            `json:"entity_id"`
	ProjectID string            `json:"project_id"`
	Message   string            `json:"message"`
}

func matchesUnit(p Project, unitID *string) bool {
	if unitID == nil {
		return true
	}
	// A project without a unit applies to every unit.
	return p.UnitID == nil || *p.UnitID == *unitID
}

func projectActive(p Project) bool {
	if p.Archived {
		return false
	}
	switch p.Status {
	case domain.ProjectStatusDone, domain.ProjectStatusCancelled:
		return false
	}
	return true
}

// CompileStats aggregates project and task counters, optionally scoped to
// one organizational unit. Archived projects are excluded throughout.
func (s *Service) CompileStats(ctx context.Context, unitID *string) (ProjectStats, error) {
	stats := ProjectStats{ByStatus: make(map[domain.ProjectStatus]int)}
	now := s.nowFn()
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		included := make(map[string]bool)
		for _, p := range view.ListProjects() {
			if p.Archived || !matchesUnit(p, unitID) {
				continue
			}
			included[p.ID] = true
			stats.TotalCount++
			stats.ByStatus[p.Status]++
			if projectActive(p) {
				stats.ActiveCount++
			}
		}
		byProject := make(map[string][]Task)
		for _, t := range view.ListTasks() {
			if !included[t.ProjectID] || t.ParentTaskID != nil {
				continue
			}
			byProject[t.ProjectID] = append(byProject[t.ProjectID], t)
			open := t.Status == domain.TaskStatusPending || t.Status == domain.TaskStatusInProgress
			if open {
				stats.PendingTaskCount++
				if t.DueDate != nil && t.DueDate.Before(now) {
					stats.OverdueCount++
				}
			}
		}
		// Completion rate weighs every included project equally, a project
		// without tasks contributing zero.
		if stats.TotalCount > 0 {
			var sum float64
			for id := range included {
				sum += float64(summarize(byProject[id]).Percent)
			}
			stats.CompletionRate = int(math.Round(sum / float64(stats.TotalCount)))
		}
		return nil
	})
	if err != nil {
		return ProjectStats{}, err
	}
	return stats, nil
}

func urgencyFor(due, now time.Time) DeadlineUrgency {
	if due.Before(now) {
		return UrgencyUrgent
	}
	if due.Sub(now) <= 7*24*time.Hour {
		return UrgencyWarning
	}
	return UrgencyNormal
}

// UpcomingDeadlines merges active project end dates and open task due dates
// into one feed sorted soonest-first, bounded by limit when limit > 0.
func (s *Service) UpcomingDeadlines(ctx context.Context, unitID *string, limit int) ([]Deadline, error) {
	now := s.nowFn()
	var out []Deadline
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		included := make(map[string]bool)
		for _, p := range view.ListProjects() {
			if p.Archived || !matchesUnit(p, unitID) {
				continue
			}
			included[p.ID] = true
			if p.EndDate != nil && projectActive(p) {
				out = append(out, Deadline{
					Kind:      domain.EntityProject,
					ID:        p.ID,
					ProjectID: p.ID,
					Title:     p.Name,
					Due:       *p.EndDate,
					Urgency:   urgencyFor(*p.EndDate, now),
				})
			}
		}
		for _, t := range view.ListTasks() {
			if !included[t.ProjectID] || t.DueDate == nil {
				continue
			}
			if t.Status == domain.TaskStatusCompleted || t.Status == domain.TaskStatusCancelled {
				continue
			}
			out = append(out, Deadline{
				Kind:      domain.EntityTask,
				ID:        t.ID,
				ProjectID: t.ProjectID,
				Title:     t.Title,
				Due:       *t.DueDate,
				Urgency:   urgencyFor(*t.DueDate, now),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Due.Equal(out[j].Due) {
			return out[i].Due.Before(out[j].Due)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Alerts compiles the attention feed: overdue projects, overdue tasks, and
// completed tasks whose blocking dependency is still open.
func (s *Service) Alerts(ctx context.Context, unitID *string) ([]Alert, error) {
	now := s.nowFn()
	var out []Alert
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		included := make(map[string]bool)
		for _, p := range view.ListProjects() {
			if p.Archived || !matchesUnit(p, unitID) {
				continue
			}
			included[p.ID] = true
			if p.EndDate != nil && p.EndDate.Before(now) && projectActive(p) {
				out = append(out, Alert{
					Kind:      "project_overdue",
					Entity:    domain.EntityProject,
					EntityID:  p.ID,
					ProjectID: p.ID,
					Message:   "project " + p.Name + " is past its end date",
				})
			}
		}
		for _, t := range view.ListTasks() {
			if !included[t.ProjectID] {
				continue
			}
			open := t.Status == domain.TaskStatusPending || t.Status == domain.TaskStatusInProgress
			if open && t.DueDate != nil && t.DueDate.Before(now) {
				out = append(out, Alert{
					Kind:      "task_overdue",
					Entity:    domain.EntityTask,
					EntityID:  t.ID,
					ProjectID: t.ProjectID,
					Message:   "task " + t.Title + " is past due",
				})
			}
			if t.Status == domain.TaskStatusCompleted && isBlocked(view, t) {
				out = append(out, Alert{
					Kind:      "completed_while_blocked",
					Entity:    domain.EntityTask,
					EntityID:  t.ID,
					ProjectID: t.ProjectID,
					Message:   "task " + t.Title + " was completed while its dependency is open",
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}

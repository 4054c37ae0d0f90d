// Package core implements the plancore service: project, phase, and task
// lifecycle commands, collaboration records, dependency gating, and the
// derived progress and statistics read models. All writes run through the
// persistent store's transactional scope and are re-validated by the rules
// engine against post-mutation state.
package core

import (
	"time"

	"plancore/pkg/domain"
)

type (
	Project        = domain.Project
	Phase          = domain.Phase
	Task           = domain.Task
	TeamMembership = domain.TeamMembership
	Attachment     = domain.Attachment
	Comment        = domain.Comment
	ChangeLogEntry = domain.ChangeLogEntry
	PartyRef       = domain.PartyRef
	Result         = domain.Result
)

// GatePolicy controls how incomplete blocking dependencies are treated when
// a task is marked complete.
type GatePolicy string

const (
	// GatePolicyAdvisory surfaces a warning but allows completion.
	GatePolicyAdvisory GatePolicy = "advisory"
	// GatePolicyStrict blocks completion until the dependency is done.
	GatePolicyStrict GatePolicy = "strict"
)

// Valid reports whether the policy is one of the recognised modes.
func (p GatePolicy) Valid() bool {
	return p == GatePolicyAdvisory || p == GatePolicyStrict
}

// ProjectInput carries the caller-supplied fields for creating a project.
type ProjectInput struct {
	Name        string
	Description string
	UnitID      *string
	StartDate   *time.Time
	EndDate     *time.Time
	Status      domain.ProjectStatus
	Priority    domain.Priority
	Budget      *float64
	CreatedBy   PartyRef
}

// ProjectPatch carries optional updates for a project. Nil fields are left
// untouched; Clear* flags reset the corresponding optional field.
type ProjectPatch struct {
	Name           *string
	Description    *string
	UnitID         *string
	ClearUnitID    bool
	StartDate      *time.Time
	ClearStartDate bool
	EndDate        *time.Time
	ClearEndDate   bool
	Status         *domain.ProjectStatus
	Priority       *domain.Priority
	Budget         *float64
	ClearBudget    bool
}

// PhaseInput carries the caller-supplied fields for creating a phase.
// Order < 0 requests auto-assignment after the project's last phase.
type PhaseInput struct {
	Name      string
	Order     int
	StartDate *time.Time
	EndDate   *time.Time
}

// PhasePatch carries optional updates for a phase.
type PhasePatch struct {
	Name           *string
	Order          *int
	StartDate      *time.Time
	ClearStartDate bool
	EndDate        *time.Time
	ClearEndDate   bool
}

// TaskInput carries the caller-supplied fields for creating a task. A nil
// PhaseID on a subtask inherits the parent's phase.
type TaskInput struct {
	ProjectID    string
	PhaseID      *string
	ParentTaskID *string
	Title        string
	Description  string
	Priority     domain.Priority
	DueDate      *time.Time
	Responsible  *PartyRef
	Order        int
	CreatedBy    PartyRef
}

// TaskPatch carries optional updates for a task. Completion and dependency
// changes go through their dedicated operations, not the patch.
type TaskPatch struct {
	Title            *string
	Description      *string
	Status           *domain.TaskStatus
	Priority         *domain.Priority
	DueDate          *time.Time
	ClearDueDate     bool
	Responsible      *PartyRef
	ClearResponsible bool
	Order            *int
}

// TaskFilter narrows ListTasks results. Zero-value fields match everything.
type TaskFilter struct {
	PhaseID      *string
	Status       domain.TaskStatus
	Priority     domain.Priority
	Responsible  *PartyRef
	TopLevelOnly bool
	Overdue      bool
}

// TaskDetail is a task enriched with its derived blocked flag and direct
// subtasks, as served on read paths.
type TaskDetail struct {
	Task
	Blocked  bool         `json:"blocked"`
	Subtasks []TaskDetail `json:"subtasks,omitempty"`
}

// PhaseDetail is a phase with its derived status, progress, and top-level
// tasks.
type PhaseDetail struct {
	Phase
	Status   PhaseStatus     `json:"status"`
	Progress ProgressSummary `json:"progress"`
	Tasks    []TaskDetail    `json:"tasks"`
}

// ProjectDetail is the full nested read model for one project. Everything
// below the project record is recomputed from committed state on every call.
type ProjectDetail struct {
	Project
	Progress ProgressSummary  `json:"progress"`
	Phases   []PhaseDetail    `json:"phases"`
	Backlog  []TaskDetail     `json:"backlog"` // top-level tasks without a phase
	Team     []TeamMembership `json:"team"`
}

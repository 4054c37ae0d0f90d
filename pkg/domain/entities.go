// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by plancore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
	// EntityPhase identifies a phase record.
	EntityPhase EntityType = "phase"
	// EntityTask identifies a task record.
	EntityTask EntityType = "task"
	// EntityTeamMembership identifies a project team membership record.
	EntityTeamMembership EntityType = "team_membership"
	// EntityAttachment identifies a task attachment record.
	EntityAttachment EntityType = "attachment"
	// EntityComment identifies a task comment record.
	EntityComment EntityType = "comment"
	// EntityChangeLog identifies an append-only change log entry.
	EntityChangeLog EntityType = "change_log_entry"
)

// ProjectStatus enumerates the canonical project workflow states.
type ProjectStatus string

// Canonical project statuses used for dashboard grouping and validation.
const (
	ProjectStatusPlanning   ProjectStatus = "planning"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusInReview   ProjectStatus = "in_review"
	ProjectStatusDone       ProjectStatus = "done"
	ProjectStatusPaused     ProjectStatus = "paused"
	ProjectStatusCancelled  ProjectStatus = "cancelled"
)

// TaskStatus enumerates task workflow states.
type TaskStatus string

// Canonical task statuses. CompletedAt is non-nil exactly when a task is completed.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Priority ranks projects and tasks for display ordering and alerting.
type Priority string

// Priority levels shared by projects and tasks.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PartyKind discriminates the closed set of people a record can reference.
type PartyKind string

// Recognised party kinds. The union is closed: exactly staff or teacher.
const (
	PartyStaff   PartyKind = "staff"
	PartyTeacher PartyKind = "teacher"
)

// PartyRef is a tagged reference to a person outside this core. Identity
// resolution is an external collaborator concern; the core only stores and
// returns the reference.
type PartyRef struct {
	Kind PartyKind `json:"kind"`
	ID   string    `json:"id"`
}

// IsZero reports whether the reference is unset.
func (p PartyRef) IsZero() bool { return p.Kind == "" && p.ID == "" }

// Valid reports whether the reference carries a recognised kind and an id.
func (p PartyRef) Valid() bool {
	return p.ID != "" && (p.Kind == PartyStaff || p.Kind == PartyTeacher)
}

// Equal compares two party references by kind and id.
func (p PartyRef) Equal(other PartyRef) bool { return p.Kind == other.Kind && p.ID == other.ID }

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project is the root aggregate: an initiative decomposed into ordered
// phases and tasks. Progress and task counters are derived at read time,
// never stored on the record.
type Project struct {
	Base
	Name        string        `json:"name"`
	Description string        `json:"description"`
	UnitID      *string       `json:"unit_id"` // nil applies to all units
	StartDate   *time.Time    `json:"start_date"`
	EndDate     *time.Time    `json:"end_date"`
	Status      ProjectStatus `json:"status"`
	Priority    Priority      `json:"priority"`
	Budget      *float64      `json:"budget,omitempty"`
	Archived    bool          `json:"archived"`
	CreatedBy   PartyRef      `json:"created_by"`
}

// Phase is an ordered grouping of tasks within a project. Order defines
// display sequence only; it is not an execution gate.
type Phase struct {
	Base
	ProjectID string     `json:"project_id"`
	Name      string     `json:"name"`
	Order     int        `json:"order"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// Task is the atomic unit of work. A task may sit in a phase (or be
// unassigned), may have a parent task (making it a subtask), and may carry
// a single blocking dependency on another task in the same project.
type Task struct {
	Base
	ProjectID    string     `json:"project_id"`
	PhaseID      *string    `json:"phase_id"`
	ParentTaskID *string    `json:"parent_task_id"`
	DependencyID *string    `json:"dependency_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	DueDate      *time.Time `json:"due_date"`
	Responsible  *PartyRef  `json:"responsible,omitempty"`
	Order        int        `json:"order"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedBy    PartyRef   `json:"created_by"`
}

// TeamMembership associates a project with a person and an optional role
// label. The same person may appear more than once with different roles;
// callers de-duplicate by party when they need single-membership semantics.
type TeamMembership struct {
	Base
	ProjectID string   `json:"project_id"`
	Person    PartyRef `json:"person"`
	Role      string   `json:"role,omitempty"`
}

// Attachment records a file registered against a task. The payload itself
// lives in the blob store under StorageKey; only the record is domain state.
type Attachment struct {
	Base
	ProjectID   string   `json:"project_id"`
	TaskID      string   `json:"task_id"`
	FileName    string   `json:"file_name"`
	ContentType string   `json:"content_type"`
	SizeBytes   int64    `json:"size_bytes"`
	StorageKey  string   `json:"storage_key"`
	PublicURL   *string  `json:"public_url,omitempty"`
	UploadedBy  PartyRef `json:"uploaded_by"`
}

// Comment is free-text discussion attached to a task. Author-only deletion
// is enforced by the caller using the Author reference exposed here.
type Comment struct {
	Base
	TaskID string   `json:"task_id"`
	Author PartyRef `json:"author"`
	Body   string   `json:"body"`
	Edited bool     `json:"edited"`
}

// ChangeAction tags a change log entry with the mutation it records.
type ChangeAction string

// Change log action tags. Entries are append-only and never rewritten.
const (
	ChangeCreated           ChangeAction = "created"
	ChangeUpdated           ChangeAction = "updated"
	ChangeStatusChanged     ChangeAction = "status_changed"
	ChangeCompleted         ChangeAction = "completed"
	ChangeReopened          ChangeAction = "reopened"
	ChangeDependencySet     ChangeAction = "dependency_set"
	ChangeDependencyCleared ChangeAction = "dependency_cleared"
	ChangeDeleted           ChangeAction = "deleted"
)

// ChangeLogEntry is one row of a task's append-only audit trail. CreatedAt
// doubles as the event timestamp.
type ChangeLogEntry struct {
	Base
	TaskID      string       `json:"task_id"`
	Action      ChangeAction `json:"action"`
	Description string       `json:"description"`
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn surfaces a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured per transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations, preserving order.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

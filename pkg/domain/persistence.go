package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Delete operations apply reference
// cleanup internally: deleting a task removes its subtask subtree and clears
// incoming dependency references, deleting a phase detaches its tasks, and
// deleting a project cascades to every owned record.
type Transaction interface {
	Snapshot() TransactionView
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	DeleteProject(id string) error
	CreatePhase(Phase) (Phase, error)
	UpdatePhase(id string, mutator func(*Phase) error) (Phase, error)
	DeletePhase(id string) error
	CreateTask(Task) (Task, error)
	UpdateTask(id string, mutator func(*Task) error) (Task, error)
	DeleteTask(id string) ([]Task, error)
	CreateTeamMembership(TeamMembership) (TeamMembership, error)
	DeleteTeamMembership(id string) error
	CreateAttachment(Attachment) (Attachment, error)
	DeleteAttachment(id string) error
	CreateComment(Comment) (Comment, error)
	UpdateComment(id string, mutator func(*Comment) error) (Comment, error)
	DeleteComment(id string) error
	AppendChangeLog(ChangeLogEntry) (ChangeLogEntry, error)
}

// TransactionView provides read-only access to snapshot data for commands
// and rules. Implementations return defensive copies; mutating a returned
// value never affects stored state.
type TransactionView interface {
	FindProject(id string) (Project, bool)
	ListProjects() []Project
	FindPhase(id string) (Phase, bool)
	ListPhases() []Phase
	ListProjectPhases(projectID string) []Phase
	FindTask(id string) (Task, bool)
	ListTasks() []Task
	ListProjectTasks(projectID string) []Task
	ListSubtasks(parentTaskID string) []Task
	ListTeamMemberships(projectID string) []TeamMembership
	FindAttachment(id string) (Attachment, bool)
	ListTaskAttachments(taskID string) []Attachment
	FindComment(id string) (Comment, bool)
	ListTaskComments(taskID string) []Comment
	ListTaskChangeLog(taskID string, limit int) []ChangeLogEntry
}

// PersistentStore is a minimal abstraction over durable backends. Every
// command re-reads through a transaction snapshot before writing; every
// read path goes through View so aggregations always see committed state.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetPhase(id string) (Phase, bool)
	GetTask(id string) (Task, bool)
	ListTasks() []Task
}

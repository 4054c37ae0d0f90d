// Package memory provides the in-memory transactional store for the core
// domain. Durable backends embed it and snapshot its state per commit.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"plancore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	Project        = domain.Project
	Phase          = domain.Phase
	Task           = domain.Task
	TeamMembership = domain.TeamMembership
	Attachment     = domain.Attachment
	Comment        = domain.Comment
	ChangeLogEntry = domain.ChangeLogEntry
	Change         = domain.Change
	Result         = domain.Result
	RulesEngine    = domain.RulesEngine
	Transaction    = domain.Transaction
)

type memoryState struct {
	projects    map[string]Project
	phases      map[string]Phase
	tasks       map[string]Task
	memberships map[string]TeamMembership
	attachments map[string]Attachment
	comments    map[string]Comment
	changeLog   []ChangeLogEntry
}

func newMemoryState() memoryState {
	return memoryState{
		projects:    make(map[string]Project),
		phases:      make(map[string]Phase),
		tasks:       make(map[string]Task),
		memberships: make(map[string]TeamMembership),
		attachments: make(map[string]Attachment),
		comments:    make(map[string]Comment),
	}
}

// Snapshot is the serialized form of the full store state, one bucket per
// entity collection. Durable stores persist exactly this shape.
type Snapshot struct {
	Projects    []Project        `json:"projects"`
	Phases      []Phase          `json:"phases"`
	Tasks       []Task           `json:"tasks"`
	Memberships []TeamMembership `json:"team_memberships"`
	Attachments []Attachment     `json:"attachments"`
	Comments    []Comment        `json:"comments"`
	ChangeLog   []ChangeLogEntry `json:"change_log"`
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	var snap Snapshot
	for _, p := range state.projects {
		snap.Projects = append(snap.Projects, cloneProject(p))
	}
	for _, ph := range state.phases {
		snap.Phases = append(snap.Phases, clonePhase(ph))
	}
	for _, t := range state.tasks {
		snap.Tasks = append(snap.Tasks, cloneTask(t))
	}
	for _, m := range state.memberships {
		snap.Memberships = append(snap.Memberships, m)
	}
	for _, a := range state.attachments {
		snap.Attachments = append(snap.Attachments, cloneAttachment(a))
	}
	for _, c := range state.comments {
		snap.Comments = append(snap.Comments, c)
	}
	snap.ChangeLog = append(snap.ChangeLog, state.changeLog...)
	sort.Slice(snap.Projects, func(i, j int) bool { return snap.Projects[i].ID < snap.Projects[j].ID })
	sort.Slice(snap.Phases, func(i, j int) bool { return snap.Phases[i].ID < snap.Phases[j].ID })
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })
	sort.Slice(snap.Memberships, func(i, j int) bool { return snap.Memberships[i].ID < snap.Memberships[j].ID })
	sort.Slice(snap.Attachments, func(i, j int) bool { return snap.Attachments[i].ID < snap.Attachments[j].ID })
	sort.Slice(snap.Comments, func(i, j int) bool { return snap.Comments[i].ID < snap.Comments[j].ID })
	return snap
}

func memoryStateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	for _, p := range snap.Projects {
		state.projects[p.ID] = cloneProject(p)
	}
	for _, ph := range snap.Phases {
		state.phases[ph.ID] = clonePhase(ph)
	}
	for _, t := range snap.Tasks {
		state.tasks[t.ID] = cloneTask(t)
	}
	for _, m := range snap.Memberships {
		state.memberships[m.ID] = m
	}
	for _, a := range snap.Attachments {
		state.attachments[a.ID] = cloneAttachment(a)
	}
	for _, c := range snap.Comments {
		state.comments[c.ID] = c
	}
	state.changeLog = append(state.changeLog, snap.ChangeLog...)
	return state
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.phases {
		cloned.phases[k] = clonePhase(v)
	}
	for k, v := range s.tasks {
		cloned.tasks[k] = cloneTask(v)
	}
	for k, v := range s.memberships {
		cloned.memberships[k] = v
	}
	for k, v := range s.attachments {
		cloned.attachments[k] = cloneAttachment(v)
	}
	for k, v := range s.comments {
		cloned.comments[k] = v
	}
	cloned.changeLog = append([]ChangeLogEntry(nil), s.changeLog...)
	return cloned
}

// Pointer fields are re-boxed so a mutator replacing a pointed-to value in
// one copy can never leak into another.
func cloneProject(p Project) Project {
	cp := p
	cp.UnitID = cloneStringPtr(p.UnitID)
	cp.StartDate = cloneTimePtr(p.StartDate)
	cp.EndDate = cloneTimePtr(p.EndDate)
	cp.Budget = cloneFloatPtr(p.Budget)
	return cp
}

func clonePhase(ph Phase) Phase {
	cp := ph
	cp.StartDate = cloneTimePtr(ph.StartDate)
	cp.EndDate = cloneTimePtr(ph.EndDate)
	return cp
}

func cloneTask(t Task) Task {
	cp := t
	cp.PhaseID = cloneStringPtr(t.PhaseID)
	cp.ParentTaskID = cloneStringPtr(t.ParentTaskID)
	cp.DependencyID = cloneStringPtr(t.DependencyID)
	cp.DueDate = cloneTimePtr(t.DueDate)
	cp.CompletedAt = cloneTimePtr(t.CompletedAt)
	if t.Responsible != nil {
		resp := *t.Responsible
		cp.Responsible = &resp
	}
	return cp
}

func cloneAttachment(a Attachment) Attachment {
	cp := a
	cp.PublicURL = cloneStringPtr(a.PublicURL)
	return cp
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloatPtr(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState returns a serializable snapshot of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the committed state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine returns the engine evaluated on every commit.
func (s *Store) RulesEngine() *RulesEngine {
	return s.engine
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Registered rules evaluate against the post-mutation snapshot; blocking
// violations abort the commit and the committed state is left untouched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// GetProject retrieves a committed project by id.
func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all committed projects.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetPhase retrieves a committed phase by id.
func (s *Store) GetPhase(id string) (Phase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ph, ok := s.state.phases[id]
	if !ok {
		return Phase{}, false
	}
	return clonePhase(ph), true
}

// GetTask retrieves a committed task by id.
func (s *Store) GetTask(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tasks[id]
	if !ok {
		return Task{}, false
	}
	return cloneTask(t), true
}

// ListTasks returns all committed tasks.
func (s *Store) ListTasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.state.tasks))
	for _, t := range s.state.tasks {
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

package memory

import (
	"sort"

	"plancore/pkg/domain"
)

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state to commands for re-validation.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

// CreateProject stores a new project within the transaction.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, domain.ConflictError{Reason: "project " + p.ID + " already exists"}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates a project using the provided mutator function.
func (tx *transaction) UpdateProject(id string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	before := cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.ID = before.ID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

// DeleteProject removes a project and cascades to every owned record:
// phases, tasks, memberships, attachments, comments, and change log rows.
func (tx *transaction) DeleteProject(id string) error {
	current, ok := tx.state.projects[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	taskIDs := make(map[string]struct{})
	for tid, t := range tx.state.tasks {
		if t.ProjectID == id {
			taskIDs[tid] = struct{}{}
			delete(tx.state.tasks, tid)
		}
	}
	for phid, ph := range tx.state.phases {
		if ph.ProjectID == id {
			delete(tx.state.phases, phid)
		}
	}
	for mid, m := range tx.state.memberships {
		if m.ProjectID == id {
			delete(tx.state.memberships, mid)
		}
	}
	for aid, a := range tx.state.attachments {
		if a.ProjectID == id {
			delete(tx.state.attachments, aid)
		}
	}
	for cid, c := range tx.state.comments {
		if _, gone := taskIDs[c.TaskID]; gone {
			delete(tx.state.comments, cid)
		}
	}
	kept := tx.state.changeLog[:0]
	for _, entry := range tx.state.changeLog {
		if _, gone := taskIDs[entry.TaskID]; !gone {
			kept = append(kept, entry)
		}
	}
	tx.state.changeLog = kept
	delete(tx.state.projects, id)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Before: cloneProject(current)})
	return nil
}

// CreatePhase stores a new phase within the transaction.
func (tx *transaction) CreatePhase(ph Phase) (Phase, error) {
	if ph.ID == "" {
		ph.ID = tx.store.newID()
	}
	if _, exists := tx.state.phases[ph.ID]; exists {
		return Phase{}, domain.ConflictError{Reason: "phase " + ph.ID + " already exists"}
	}
	ph.CreatedAt = tx.now
	ph.UpdatedAt = tx.now
	tx.state.phases[ph.ID] = clonePhase(ph)
	tx.recordChange(Change{Entity: domain.EntityPhase, Action: domain.ActionCreate, After: clonePhase(ph)})
	return clonePhase(ph), nil
}

// UpdatePhase mutates a phase using the provided mutator function.
func (tx *transaction) UpdatePhase(id string, mutator func(*Phase) error) (Phase, error) {
	current, ok := tx.state.phases[id]
	if !ok {
		return Phase{}, domain.NotFoundError{Entity: domain.EntityPhase, ID: id}
	}
	before := clonePhase(current)
	if err := mutator(&current); err != nil {
		return Phase{}, err
	}
	current.ID = before.ID
	current.ProjectID = before.ProjectID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.phases[id] = clonePhase(current)
	tx.recordChange(Change{Entity: domain.EntityPhase, Action: domain.ActionUpdate, Before: before, After: clonePhase(current)})
	return clonePhase(current), nil
}

// DeletePhase removes a phase and detaches its tasks to "unassigned".
func (tx *transaction) DeletePhase(id string) error {
	current, ok := tx.state.phases[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityPhase, ID: id}
	}
	for tid, t := range tx.state.tasks {
		if t.PhaseID != nil && *t.PhaseID == id {
			before := cloneTask(t)
			t.PhaseID = nil
			t.UpdatedAt = tx.now
			tx.state.tasks[tid] = t
			tx.recordChange(Change{Entity: domain.EntityTask, Action: domain.ActionUpdate, Before: before, After: cloneTask(t)})
		}
	}
	delete(tx.state.phases, id)
	tx.recordChange(Change{Entity: domain.EntityPhase, Action: domain.ActionDelete, Before: clonePhase(current)})
	return nil
}

// CreateTask stores a new task within the transaction.
func (tx *transaction) CreateTask(t Task) (Task, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.tasks[t.ID]; exists {
		return Task{}, domain.ConflictError{Reason: "task " + t.ID + " already exists"}
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.tasks[t.ID] = cloneTask(t)
	tx.recordChange(Change{Entity: domain.EntityTask, Action: domain.ActionCreate, After: cloneTask(t)})
	return cloneTask(t), nil
}

// UpdateTask mutates a task using the provided mutator function.
func (tx *transaction) UpdateTask(id string, mutator func(*Task) error) (Task, error) {
	current, ok := tx.state.tasks[id]
	if !ok {
		return Task{}, domain.NotFoundError{Entity: domain.EntityTask, ID: id}
	}
	before := cloneTask(current)
	if err := mutator(&current); err != nil {
		return Task{}, err
	}
	current.ID = before.ID
	current.ProjectID = before.ProjectID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.tasks[id] = cloneTask(current)
	tx.recordChange(Change{Entity: domain.EntityTask, Action: domain.ActionUpdate, Before: before, After: cloneTask(current)})
	return cloneTask(current), nil
}

// DeleteTask removes a task together with its subtask subtree, deletes the
// subtree's attachments, comments, and change log rows, and clears every
// dependency reference pointing into the deleted set. The deleted tasks are
// returned so callers can release attachment payloads.
func (tx *transaction) DeleteTask(id string) ([]Task, error) {
	if _, ok := tx.state.tasks[id]; !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityTask, ID: id}
	}

	// Collect the subtree breadth-first. The visited set guards against a
	// corrupt parent chain; the walk can never exceed the task count.
	doomed := map[string]struct{}{id: {}}
	queue := []string{id}
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]
		for tid, t := range tx.state.tasks {
			if t.ParentTaskID == nil || *t.ParentTaskID != parentID {
				continue
			}
			if _, seen := doomed[tid]; seen {
				continue
			}
			doomed[tid] = struct{}{}
			queue = append(queue, tid)
		}
	}

	var deleted []Task
	for tid := range doomed {
		deleted = append(deleted, cloneTask(tx.state.tasks[tid]))
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i].ID < deleted[j].ID })

	for tid := range doomed {
		delete(tx.state.tasks, tid)
	}
	for aid, a := range tx.state.attachments {
		if _, gone := doomed[a.TaskID]; gone {
			delete(tx.state.attachments, aid)
		}
	}
	for cid, c := range tx.state.comments {
		if _, gone := doomed[c.TaskID]; gone {
			delete(tx.state.comments, cid)
		}
	}
	kept := tx.state.changeLog[:0]
	for _, entry := range tx.state.changeLog {
		if _, gone := doomed[entry.TaskID]; !gone {
			kept = append(kept, entry)
		}
	}
	tx.state.changeLog = kept

	// Never leave a dependency reference dangling.
	for tid, t := range tx.state.tasks {
		if t.DependencyID == nil {
			continue
		}
		if _, gone := doomed[*t.DependencyID]; !gone {
			continue
		}
		before := cloneTask(t)
		t.DependencyID = nil
		t.UpdatedAt = tx.now
		tx.state.tasks[tid] = t
		tx.recordChange(Change{Entity: domain.EntityTask, Action: domain.ActionUpdate, Before: before, After: cloneTask(t)})
	}

	for _, t := range deleted {
		tx.recordChange(Change{Entity: domain.EntityTask, Action: domain.ActionDelete, Before: cloneTask(t)})
	}
	return deleted, nil
}

// CreateTeamMembership stores a new membership within the transaction.
func (tx *transaction) CreateTeamMembership(m TeamMembership) (TeamMembership, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.memberships[m.ID]; exists {
		return TeamMembership{}, domain.ConflictError{Reason: "membership " + m.ID + " already exists"}
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.memberships[m.ID] = m
	tx.recordChange(Change{Entity: domain.EntityTeamMembership, Action: domain.ActionCreate, After: m})
	return m, nil
}

// DeleteTeamMembership removes a membership record.
func (tx *transaction) DeleteTeamMembership(id string) error {
	current, ok := tx.state.memberships[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityTeamMembership, ID: id}
	}
	delete(tx.state.memberships, id)
	tx.recordChange(Change{Entity: domain.EntityTeamMembership, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateAttachment stores a new attachment record within the transaction.
func (tx *transaction) CreateAttachment(a Attachment) (Attachment, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.attachments[a.ID]; exists {
		return Attachment{}, domain.ConflictError{Reason: "attachment " + a.ID + " already exists"}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.attachments[a.ID] = cloneAttachment(a)
	tx.recordChange(Change{Entity: domain.EntityAttachment, Action: domain.ActionCreate, After: cloneAttachment(a)})
	return cloneAttachment(a), nil
}

// DeleteAttachment removes an attachment record.
func (tx *transaction) DeleteAttachment(id string) error {
	current, ok := tx.state.attachments[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityAttachment, ID: id}
	}
	delete(tx.state.attachments, id)
	tx.recordChange(Change{Entity: domain.EntityAttachment, Action: domain.ActionDelete, Before: cloneAttachment(current)})
	return nil
}

// CreateComment stores a new comment within the transaction.
func (tx *transaction) CreateComment(c Comment) (Comment, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.comments[c.ID]; exists {
		return Comment{}, domain.ConflictError{Reason: "comment " + c.ID + " already exists"}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.comments[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityComment, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateComment mutates a comment using the provided mutator function.
func (tx *transaction) UpdateComment(id string, mutator func(*Comment) error) (Comment, error) {
	current, ok := tx.state.comments[id]
	if !ok {
		return Comment{}, domain.NotFoundError{Entity: domain.EntityComment, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Comment{}, err
	}
	current.ID = before.ID
	current.TaskID = before.TaskID
	current.Author = before.Author
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.comments[id] = current
	tx.recordChange(Change{Entity: domain.EntityComment, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteComment removes a comment record.
func (tx *transaction) DeleteComment(id string) error {
	current, ok := tx.state.comments[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityComment, ID: id}
	}
	delete(tx.state.comments, id)
	tx.recordChange(Change{Entity: domain.EntityComment, Action: domain.ActionDelete, Before: current})
	return nil
}

// AppendChangeLog appends an audit entry. Entries are append-only: there is
// no update or delete operation at this level.
func (tx *transaction) AppendChangeLog(entry ChangeLogEntry) (ChangeLogEntry, error) {
	if entry.ID == "" {
		entry.ID = tx.store.newID()
	}
	if entry.TaskID == "" {
		return ChangeLogEntry{}, domain.ValidationError{Field: "task_id", Reason: "required"}
	}
	entry.CreatedAt = tx.now
	entry.UpdatedAt = tx.now
	tx.state.changeLog = append(tx.state.changeLog, entry)
	tx.recordChange(Change{Entity: domain.EntityChangeLog, Action: domain.ActionCreate, After: entry})
	return entry, nil
}

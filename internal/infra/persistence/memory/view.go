package memory

import "sort"

// FindProject retrieves a project by id from the snapshot.
func (v transactionView) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all projects within the snapshot.
func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// FindPhase retrieves a phase by id from the snapshot.
func (v transactionView) FindPhase(id string) (Phase, bool) {
	ph, ok := v.state.phases[id]
	if !ok {
		return Phase{}, false
	}
	return clonePhase(ph), true
}

// ListPhases returns all phases within the snapshot.
func (v transactionView) ListPhases() []Phase {
	out := make([]Phase, 0, len(v.state.phases))
	for _, ph := range v.state.phases {
		out = append(out, clonePhase(ph))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].Order < out[j].Order
	})
	return out
}

// ListProjectPhases returns a project's phases in display order.
func (v transactionView) ListProjectPhases(projectID string) []Phase {
	var out []Phase
	for _, ph := range v.state.phases {
		if ph.ProjectID == projectID {
			out = append(out, clonePhase(ph))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// FindTask retrieves a task by id from the snapshot.
func (v transactionView) FindTask(id string) (Task, bool) {
	t, ok := v.state.tasks[id]
	if !ok {
		return Task{}, false
	}
	return cloneTask(t), true
}

// ListTasks returns all tasks within the snapshot.
func (v transactionView) ListTasks() []Task {
	out := make([]Task, 0, len(v.state.tasks))
	for _, t := range v.state.tasks {
		out = append(out, cloneTask(t))
	}
	sortTasks(out)
	return out
}

// ListProjectTasks returns every task belonging to a project, subtasks included.
func (v transactionView) ListProjectTasks(projectID string) []Task {
	var out []Task
	for _, t := range v.state.tasks {
		if t.ProjectID == projectID {
			out = append(out, cloneTask(t))
		}
	}
	sortTasks(out)
	return out
}

// ListSubtasks returns the direct subtasks of a parent task.
func (v transactionView) ListSubtasks(parentTaskID string) []Task {
	var out []Task
	for _, t := range v.state.tasks {
		if t.ParentTaskID != nil && *t.ParentTaskID == parentTaskID {
			out = append(out, cloneTask(t))
		}
	}
	sortTasks(out)
	return out
}

func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// ListTeamMemberships returns a project's memberships, duplicates included.
func (v transactionView) ListTeamMemberships(projectID string) []TeamMembership {
	var out []TeamMembership
	for _, m := range v.state.memberships {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindAttachment retrieves an attachment record by id from the snapshot.
func (v transactionView) FindAttachment(id string) (Attachment, bool) {
	a, ok := v.state.attachments[id]
	if !ok {
		return Attachment{}, false
	}
	return cloneAttachment(a), true
}

// ListTaskAttachments returns a task's attachment records.
func (v transactionView) ListTaskAttachments(taskID string) []Attachment {
	var out []Attachment
	for _, a := range v.state.attachments {
		if a.TaskID == taskID {
			out = append(out, cloneAttachment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindComment retrieves a comment by id from the snapshot.
func (v transactionView) FindComment(id string) (Comment, bool) {
	c, ok := v.state.comments[id]
	if !ok {
		return Comment{}, false
	}
	return c, true
}

// ListTaskComments returns a task's comments oldest-first.
func (v transactionView) ListTaskComments(taskID string) []Comment {
	var out []Comment
	for _, c := range v.state.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListTaskChangeLog returns a task's audit trail newest-first, bounded by
// limit when limit > 0. Entries preserve append order within equal timestamps.
func (v transactionView) ListTaskChangeLog(taskID string, limit int) []ChangeLogEntry {
	var out []ChangeLogEntry
	for i := len(v.state.changeLog) - 1; i >= 0; i-- {
		entry := v.state.changeLog[i]
		if entry.TaskID != taskID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"plancore/internal/core"
	"plancore/pkg/domain"
)

type taskRequest struct {
	PhaseID      *string    `json:"phase_id"`
	ParentTaskID *string    `json:"parent_task_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Priority     string     `json:"priority"`
	DueDate      *time.Time `json:"due_date"`
	Responsible  *partyRef  `json:"responsible"`
	Order        int        `json:"order"`
}

type partyRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (p *partyRef) toDomain() *core.PartyRef {
	if p == nil {
		return nil
	}
	return &core.PartyRef{Kind: domain.PartyKind(p.Kind), ID: p.ID}
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	task, res, err := s.svc.CreateTask(c.Request.Context(), core.TaskInput{
		ProjectID:    c.Param("id"),
		PhaseID:      req.PhaseID,
		ParentTaskID: req.ParentTaskID,
		Title:        req.Title,
		Description:  req.Description,
		Priority:     domain.Priority(req.Priority),
		DueDate:      req.DueDate,
		Responsible:  req.Responsible.toDomain(),
		Order:        req.Order,
		CreatedBy:    actor(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task, "warnings": res.Warnings()})
}

func (s *Server) handleListTasks(c *gin.Context) {
	filter := core.TaskFilter{
		PhaseID:      optString(c.Query("phase_id")),
		Status:       domain.TaskStatus(c.Query("status")),
		Priority:     domain.Priority(c.Query("priority")),
		TopLevelOnly: c.Query("top_level") == "true",
		Overdue:      c.Query("overdue") == "true",
	}
	if kind, id := c.Query("responsible_kind"), c.Query("responsible_id"); id != "" {
		filter.Responsible = &core.PartyRef{Kind: domain.PartyKind(kind), ID: id}
	}
	tasks, err := s.svc.ListTasks(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleGetTask(c *gin.Context) {
	detail, err := s.svc.GetTaskDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type taskPatchRequest struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	Status           *string    `json:"status"`
	Priority         *string    `json:"priority"`
	DueDate          *time.Time `json:"due_date"`
	ClearDueDate     bool       `json:"clear_due_date"`
	Responsible      *partyRef  `json:"responsible"`
	ClearResponsible bool       `json:"clear_responsible"`
	Order            *int       `json:"order"`
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req taskPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	patch := core.TaskPatch{
		Title:            req.Title,
		Description:      req.Description,
		DueDate:          req.DueDate,
		ClearDueDate:     req.ClearDueDate,
		Responsible:      req.Responsible.toDomain(),
		ClearResponsible: req.ClearResponsible,
		Order:            req.Order,
	}
	if req.Status != nil {
		st := domain.TaskStatus(*req.Status)
		patch.Status = &st
	}
	if req.Priority != nil {
		p := domain.Priority(*req.Priority)
		patch.Priority = &p
	}
	task, res, err := s.svc.UpdateTask(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "warnings": res.Warnings()})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if _, err := s.svc.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleToggleCompletion(c *gin.Context) {
	var req struct {
		Completed bool `json:"completed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	task, res, err := s.svc.ToggleCompletion(c.Request.Context(), c.Param("id"), req.Completed)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "warnings": res.Warnings()})
}

func (s *Server) handleSetDependency(c *gin.Context) {
	var req struct {
		DependencyID *string `json:"dependency_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	task, res, err := s.svc.SetDependency(c.Request.Context(), c.Param("id"), req.DependencyID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "warnings": res.Warnings()})
}

func (s *Server) handleListChangeLog(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(c, domain.ValidationError{Field: "limit", Reason: "must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	entries, err := s.svc.ListChangeLog(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"plancore/internal/core"
	"plancore/pkg/domain"
)

type projectRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	UnitID      *string    `json:"unit_id"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Budget      *float64   `json:"budget"`
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	project, res, err := s.svc.CreateProject(c.Request.Context(), core.ProjectInput{
		Name:        req.Name,
		Description: req.Description,
		UnitID:      req.UnitID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Status:      domain.ProjectStatus(req.Status),
		Priority:    domain.Priority(req.Priority),
		Budget:      req.Budget,
		CreatedBy:   actor(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project, "warnings": res.Warnings()})
}

func (s *Server) handleListProjects(c *gin.Context) {
	filter := core.ProjectFilter{
		UnitID:          optString(c.Query("unit_id")),
		Status:          domain.ProjectStatus(c.Query("status")),
		IncludeArchived: c.Query("include_archived") == "true",
	}
	c.JSON(http.StatusOK, gin.H{"projects": s.svc.ListProjects(c.Request.Context(), filter)})
}

func (s *Server) handleGetProjectDetail(c *gin.Context) {
	detail, err := s.svc.GetProjectDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type projectPatchRequest struct {
	Name           *string    `json:"name"`
	Description    *string    `json:"description"`
	UnitID         *string    `json:"unit_id"`
	ClearUnitID    bool       `json:"clear_unit_id"`
	StartDate      *time.Time `json:"start_date"`
	ClearStartDate bool       `json:"clear_start_date"`
	EndDate        *time.Time `json:"end_date"`
	ClearEndDate   bool       `json:"clear_end_date"`
	Status         *string    `json:"status"`
	Priority       *string    `json:"priority"`
	Budget         *float64   `json:"budget"`
	ClearBudget    bool       `json:"clear_budget"`
}

func (s *Server) handleUpdateProject(c *gin.Context) {
	var req projectPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	patch := core.ProjectPatch{
		Name:           req.Name,
		Description:    req.Description,
		UnitID:         req.UnitID,
		ClearUnitID:    req.ClearUnitID,
		StartDate:      req.StartDate,
		ClearStartDate: req.ClearStartDate,
		EndDate:        req.EndDate,
		ClearEndDate:   req.ClearEndDate,
		Budget:         req.Budget,
		ClearBudget:    req.ClearBudget,
	}
	if req.Status != nil {
		st := domain.ProjectStatus(*req.Status)
		patch.Status = &st
	}
	if req.Priority != nil {
		p := domain.Priority(*req.Priority)
		patch.Priority = &p
	}
	project, res, err := s.svc.UpdateProject(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project, "warnings": res.Warnings()})
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	if _, err := s.svc.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleArchiveProject(c *gin.Context) {
	var req struct {
		Archived *bool `json:"archived"`
	}
	// An empty body archives; {"archived": false} unarchives.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	archived := true
	if req.Archived != nil {
		archived = *req.Archived
	}
	project, _, err := s.svc.ArchiveProject(c.Request.Context(), c.Param("id"), archived)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

type phaseRequest struct {
	Name      string     `json:"name"`
	Order     *int       `json:"order"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

func (s *Server) handleCreatePhase(c *gin.Context) {
	var req phaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	order := -1 // auto-assign
	if req.Order != nil {
		order = *req.Order
	}
	phase, _, err := s.svc.CreatePhase(c.Request.Context(), c.Param("id"), core.PhaseInput{
		Name:      req.Name,
		Order:     order,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"phase": phase})
}

type phasePatchRequest struct {
	Name           *string    `json:"name"`
	Order          *int       `json:"order"`
	StartDate      *time.Time `json:"start_date"`
	ClearStartDate bool       `json:"clear_start_date"`
	EndDate        *time.Time `json:"end_date"`
	ClearEndDate   bool       `json:"clear_end_date"`
}

func (s *Server) handleUpdatePhase(c *gin.Context) {
	var req phasePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	phase, _, err := s.svc.UpdatePhase(c.Request.Context(), c.Param("id"), core.PhasePatch{
		Name:           req.Name,
		Order:          req.Order,
		StartDate:      req.StartDate,
		ClearStartDate: req.ClearStartDate,
		EndDate:        req.EndDate,
		ClearEndDate:   req.ClearEndDate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phase": phase})
}

func (s *Server) handleDeletePhase(c *gin.Context) {
	if _, err := s.svc.DeletePhase(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAddTeamMember(c *gin.Context) {
	var req struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	membership, _, err := s.svc.AddTeamMember(c.Request.Context(), c.Param("id"),
		core.PartyRef{Kind: domain.PartyKind(req.Kind), ID: req.ID}, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"membership": membership})
}

func (s *Server) handleRemoveTeamMember(c *gin.Context) {
	if _, err := s.svc.RemoveTeamMember(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

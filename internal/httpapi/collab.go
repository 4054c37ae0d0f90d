package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"plancore/pkg/domain"
)

func (s *Server) handleAddComment(c *gin.Context) {
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	comment, _, err := s.svc.AddComment(c.Request.Context(), c.Param("id"), actor(c), req.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

func (s *Server) handleListComments(c *gin.Context) {
	comments, err := s.svc.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (s *Server) handleEditComment(c *gin.Context) {
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	comment, _, err := s.svc.EditComment(c.Request.Context(), c.Param("id"), actor(c), req.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comment": comment})
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	if _, err := s.svc.DeleteComment(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAddAttachment(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		writeError(c, domain.ValidationError{Field: "file", Reason: "multipart file field required"})
		return
	}
	defer func() { _ = file.Close() }()
	contentType := header.Header.Get("Content-Type")
	att, _, err := s.svc.AddAttachment(c.Request.Context(), c.Param("id"), header.Filename, contentType, file, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attachment": att})
}

func (s *Server) handleListAttachments(c *gin.Context) {
	atts, err := s.svc.ListAttachments(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachments": atts})
}

func (s *Server) handleDownloadAttachment(c *gin.Context) {
	att, rc, err := s.svc.OpenAttachment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer func() { _ = rc.Close() }()
	c.Header("Content-Disposition", `attachment; filename="`+att.FileName+`"`)
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, att.SizeBytes, contentType, rc, nil)
}

func (s *Server) handleAttachmentURL(c *gin.Context) {
	url, err := s.svc.AttachmentURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) handleDeleteAttachment(c *gin.Context) {
	if _, err := s.svc.DeleteAttachment(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.svc.CompileStats(c.Request.Context(), optString(c.Query("unit_id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleDeadlines(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(c, domain.ValidationError{Field: "limit", Reason: "must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	deadlines, err := s.svc.UpcomingDeadlines(c.Request.Context(), optString(c.Query("unit_id")), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deadlines": deadlines})
}

func (s *Server) handleAlerts(c *gin.Context) {
	alerts, err := s.svc.Alerts(c.Request.Context(), optString(c.Query("unit_id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

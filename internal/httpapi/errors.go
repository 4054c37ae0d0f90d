package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"plancore/pkg/domain"
)

type errorBody struct {
	Error      string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

// writeError maps domain error types onto HTTP statuses. Unknown errors are
// treated as internal.
func writeError(c *gin.Context, err error) {
	var (
		validation   domain.ValidationError
		notFound     domain.NotFoundError
		crossProject domain.CrossProjectError
		cycle        domain.CycleError
		conflict     domain.ConflictError
		blocked      domain.RuleViolationError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, errorBody{Error: validation.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, errorBody{Error: notFound.Error()})
	case errors.As(err, &crossProject):
		c.JSON(http.StatusUnprocessableEntity, errorBody{Error: crossProject.Error()})
	case errors.As(err, &cycle):
		c.JSON(http.StatusUnprocessableEntity, errorBody{Error: cycle.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, errorBody{Error: conflict.Error()})
	case errors.As(err, &blocked):
		c.JSON(http.StatusUnprocessableEntity, errorBody{Error: blocked.Error(), Violations: blocked.Result.Violations})
	default:
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

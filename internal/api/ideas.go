package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"ideaflow/backend/internal/auth"
	"ideaflow/backend/internal/services"
	"ideaflow/backend/pkg/models"
)

// UpdateStatusRequest is the body of PUT /ideas/{id}/status.
type UpdateStatusRequest struct {
	Status   string `json:"status"`
	Feedback string `json:"feedback,omitempty"`
}

// UpdateStatusResponse is the success body of PUT /ideas/{id}/status.
type UpdateStatusResponse struct {
	Idea models.IdeaSummary `json:"idea"`
}

// UpdateIdeaStatus moves an idea to a new status
// (PUT /api/v1/ideas/{id}/status)
func (h *Handler) UpdateIdeaStatus(c echo.Context) error {
	ctx := c.Request().Context()

	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return writeError(c, http.StatusUnauthorized, "Unauthorized", "no authenticated actor")
	}

	ideaID := strings.TrimSpace(c.Param("id"))
	if ideaID == "" {
		return writeError(c, http.StatusBadRequest, "Bad Request", "idea id is required")
	}

	var body UpdateStatusRequest
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", "invalid request body")
	}

	result, err := h.service.Transition(ctx, services.TransitionRequest{
		IdeaID: ideaID,
		Actor:  actor,
		Target: models.Status(strings.TrimSpace(body.Status)),
		Reason: strings.TrimSpace(body.Feedback),
	})
	if err != nil {
		return h.writeServiceError(c, err)
	}

	h.dispatch(ctx, result.Intents)
	return c.JSON(http.StatusOK, UpdateStatusResponse{Idea: result.Idea.Summary()})
}

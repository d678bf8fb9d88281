package handlers

import (
	"net/http"

	"imagestudio-backend/internal/models"
	"imagestudio-backend/internal/repositories"
	"imagestudio-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// TimelineHandler exposes the pull-based Timeline Query API: a
// keyset-paginated feed of a user's generation history, newest first.
// Failed generations are excluded by default; pass includeFailed=true to
// see them.
type TimelineHandler struct {
	generations *repositories.GenerationRepository
}

// NewTimelineHandler creates a new timeline handler.
func NewTimelineHandler(generations *repositories.GenerationRepository) *TimelineHandler {
	return &TimelineHandler{generations: generations}
}

type timelineResponse struct {
	Generations []models.Generation `json:"generations"`
	NextCursor  string              `json:"nextCursor,omitempty"`
}

// GetMyGenerations returns one page of the caller's generation timeline.
func (h *TimelineHandler) GetMyGenerations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "missing user context", nil)
		return
	}

	cursor, err := utils.DecodeCursor(c.Query("cursor"))
	if err != nil {
		utils.SendValidationError(c, err)
		return
	}
	limit := utils.GetCursorLimit(c)
	includeFailed := c.Query("includeFailed") == "true"

	rows, err := h.generations.ListTimeline(c.Request.Context(), userID,
		models.Generation{CreatedAt: cursor.CreatedAt, GenerationID: cursor.ID}, limit+1, includeFailed)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	resp := timelineResponse{Generations: rows}
	if len(rows) > limit {
		last := rows[limit-1]
		resp.Generations = rows[:limit]
		resp.NextCursor = utils.EncodeCursor(last.CreatedAt, last.GenerationID)
	}
	utils.SendSuccess(c, "Timeline retrieved", resp)
}

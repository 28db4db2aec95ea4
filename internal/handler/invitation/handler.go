package invitation

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/careteam/mdt-api/internal/handler"
	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/service/invitation"
	apperrors "github.com/careteam/mdt-api/pkg/errors"
	"github.com/careteam/mdt-api/pkg/httputil"
)

type Handler struct {
	svc *invitation.Service
}

func NewHandler(svc *invitation.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	invitations := r.Group("/invitations")
	{
		invitations.GET("", h.ListPending)
		invitations.GET("/:id", h.Get)
		invitations.POST("/:id/respond", h.Respond)
		invitations.DELETE("/:id", h.Cancel)
	}
}

// ListPending returns the caller's open invitations.
func (h *Handler) ListPending(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	invitations, err := h.svc.ListPending(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, invitations)
}

func (h *Handler) Get(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	invID, err := parseID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	detail, err := h.svc.Get(c.Request.Context(), invID, userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, detail)
}

func (h *Handler) Respond(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	invID, err := parseID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindingError(c, err)
		return
	}

	inv, err := h.svc.Respond(c.Request.Context(), invID, userID, req.Action)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, inv)
}

func (h *Handler) Cancel(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	invID, err := parseID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), invID, userID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"status": model.InvitationStatusCancelled})
}

func parseID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid invitation id")
	}
	return id, nil
}

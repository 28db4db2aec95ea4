package mdt

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/careteam/mdt-api/internal/handler"
	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/service/invitation"
	"github.com/careteam/mdt-api/internal/service/mdt"
	apperrors "github.com/careteam/mdt-api/pkg/errors"
	"github.com/careteam/mdt-api/pkg/httputil"
)

type Handler struct {
	svc       *mdt.Service
	inviteSvc *invitation.Service
}

func NewHandler(svc *mdt.Service, inviteSvc *invitation.Service) *Handler {
	return &Handler{svc: svc, inviteSvc: inviteSvc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	mdts := r.Group("/mdts")
	{
		mdts.POST("", h.Create)
		mdts.GET("", h.List)
		mdts.GET("/:id", h.Get)
		mdts.PATCH("/:id", h.Update)
		mdts.POST("/:id/invitations", h.Invite)
	}
}

func (h *Handler) Create(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	var req model.CreateMDTRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindingError(c, err)
		return
	}

	created, err := h.svc.Create(c.Request.Context(), userID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, created)
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	summaries, err := h.svc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, summaries)
}

func (h *Handler) Get(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	mdtID, err := parseID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	result, err := h.svc.Get(c.Request.Context(), mdtID, userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) Update(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	mdtID, err := parseID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.UpdateMDTRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindingError(c, err)
		return
	}

	updated, err := h.svc.Update(c.Request.Context(), mdtID, userID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, updated)
}

// Invite sends a direct invitation to a professional by email.
func (h *Handler) Invite(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	mdtID, err := parseID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindingError(c, err)
		return
	}

	inv, err := h.inviteSvc.Invite(c.Request.Context(), userID, mdtID, req.Email)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, inv)
}

func parseID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid mdt id")
	}
	return id, nil
}

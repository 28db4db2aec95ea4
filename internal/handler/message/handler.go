package message

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/careteam/mdt-api/internal/handler"
	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/service/message"
	apperrors "github.com/careteam/mdt-api/pkg/errors"
	"github.com/careteam/mdt-api/pkg/httputil"
)

type Handler struct {
	svc *message.Service
}

func NewHandler(svc *message.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	messages := r.Group("/mdts/:id/messages")
	{
		messages.GET("", h.List)
		messages.POST("", h.Post)
	}
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	mdtID, err := parseMDTID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	messages, err := h.svc.List(c.Request.Context(), mdtID, userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, messages)
}

func (h *Handler) Post(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	mdtID, err := parseMDTID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindingError(c, err)
		return
	}

	msg, err := h.svc.Post(c.Request.Context(), mdtID, userID, req.Content)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, msg)
}

func parseMDTID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid mdt id")
	}
	return id, nil
}

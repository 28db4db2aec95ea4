package specialty

import (
	"github.com/gin-gonic/gin"

	"github.com/careteam/mdt-api/internal/service/specialty"
	"github.com/careteam/mdt-api/pkg/httputil"
)

type Handler struct {
	svc *specialty.Service
}

func NewHandler(svc *specialty.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/specialties", h.List)
}

func (h *Handler) List(c *gin.Context) {
	specialties, err := h.svc.List(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, specialties)
}

package user

import (
	"github.com/gin-gonic/gin"

	"github.com/careteam/mdt-api/internal/handler"
	"github.com/careteam/mdt-api/internal/service/user"
	"github.com/careteam/mdt-api/pkg/httputil"
)

type Handler struct {
	svc *user.Service
}

func NewHandler(svc *user.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/me", h.Me)
		users.GET("/peers", h.Peers)
	}
}

func (h *Handler) Me(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	u, err := h.svc.Get(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, u)
}

// Peers lists the other LOCAL providers, for picking initial case members.
func (h *Handler) Peers(c *gin.Context) {
	userID, ok := handler.UserID(c)
	if !ok {
		return
	}

	peers, err := h.svc.ListLocalPeers(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, peers)
}

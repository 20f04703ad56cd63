package profile

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ledger"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/reject"
)

type profileHandler struct {
	profile *profileService
}

func RegisterRoutes(rg *gin.RouterGroup, store ledger.Store) {
	handler := profileHandler{
		profile: &profileService{store: store},
	}

	routes := rg.Group("/player")
	routes.GET("/:address", handler.getProfileByAddress)
}

func (h profileHandler) getProfileByAddress(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	if address == "" {
		c.JSON(http.StatusBadRequest, reject.RequestParamsProblem())
		return
	}

	profile, err := h.profile.findByAddress(c.Request.Context(), address)
	if err != nil {
		c.JSON(err.Problem.Status, err.Problem)
		return
	}

	c.JSON(http.StatusOK, profile)
}

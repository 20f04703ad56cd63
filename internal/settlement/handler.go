package settlement

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/utils"
	"github.com/rs/zerolog/log"
)

type ResolveRequest struct {
	WinnerWallet string `json:"winnerWallet" binding:"required"`
}

type settlementHandler struct {
	coordinator *Coordinator
}

// RegisterRoutes mounts the payout routes behind operatorAuth.
func RegisterRoutes(rg *gin.RouterGroup, coordinator *Coordinator, operatorAuth gin.HandlerFunc) {
	handler := settlementHandler{coordinator: coordinator}

	rg.POST("/game/:id/resolve", operatorAuth, handler.resolve)

	admin := rg.Group("/admin", operatorAuth)
	admin.POST("/reconcile/:id", handler.reconcile)
}

func (sh *settlementHandler) resolve(c *gin.Context) {
	body := ResolveRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.RequestValidationProblem(reject.ProblemDetail{
			Property: "winnerWallet",
			Code:     "error.request.field-required",
		}))
		return
	}

	result, err := sh.coordinator.Resolve(c.Request.Context(), c.Param("id"), body.WinnerWallet)
	if err != nil {
		p := reject.FromError(err)
		c.JSON(p.Problem.Status, p.Problem)
		return
	}

	if result.Pending {
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (sh *settlementHandler) reconcile(c *gin.Context) {
	gameId := c.Param("id")
	log.Info().Str("gameId", gameId).Str("operator", utils.GetUserExternalId(c)).Msg("Manual reconciliation requested")

	game, err := sh.coordinator.Reconcile(c.Request.Context(), gameId)
	if err != nil {
		p := reject.FromError(err)
		c.JSON(p.Problem.Status, p.Problem)
		return
	}

	if game.GameStatus == model.GameResolving {
		c.JSON(http.StatusAccepted, model.NewGameView(*game))
		return
	}
	c.JSON(http.StatusOK, model.NewGameView(*game))
}

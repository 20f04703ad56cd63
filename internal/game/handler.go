package game

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ledger"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/notify"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/retry"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/utils"
)

const depositConfirmedSubscription = "blockchain.flow.events.deposit-confirmed-sub"

type Dependencies struct {
	Store    ledger.Store
	Notifier notify.Notifier
	Retry    retry.Policy
	// PubSub is optional; deposits are then only confirmed over HTTP.
	PubSub *pubsub.Client
}

type gameHandler struct {
	gameService *gameService
}

func newGameService(deps Dependencies) *gameService {
	return &gameService{
		store:    deps.Store,
		notifier: deps.Notifier,
		retry:    deps.Retry,
		now:      time.Now,
	}
}

func RegisterRoutesAndSubscriptions(ctx context.Context, rg *gin.RouterGroup, deps Dependencies) {
	service := newGameService(deps)
	handler := gameHandler{gameService: service}

	routes := rg.Group("/game")
	routes.POST("", handler.createGame)
	routes.GET("", handler.getGames)
	routes.GET("/:id", handler.getGame)
	routes.POST("/:id/deposits", handler.confirmDeposit)
	routes.POST("/:id/cancel", handler.cancelGame)

	if deps.PubSub != nil {
		bridge := depositBridge{gameService: service}
		go deps.PubSub.Subscribe(ctx, pubsub.SubscriptionHandler{
			SubscriptionId: depositConfirmedSubscription,
			Handler:        bridge.handleDepositConfirmed,
		})
	}
}

func (gh *gameHandler) createGame(c *gin.Context) {
	body := CreateGameRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	game, err := gh.gameService.createGame(c.Request.Context(), body)
	if err != nil {
		c.JSON(err.Problem.Status, err.Problem)
		return
	}

	c.JSON(http.StatusCreated, model.NewGameView(*game))
}

func (gh *gameHandler) getGame(c *gin.Context) {
	game, err := gh.gameService.getGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(err.Problem.Status, err.Problem)
		return
	}

	c.JSON(http.StatusOK, model.NewGameView(*game))
}

func (gh *gameHandler) getGames(c *gin.Context) {
	page, err := utils.NewPageRequest(c)
	if err != nil {
		c.JSON(err.Problem.Status, err.Problem)
		return
	}

	games, total, err := gh.gameService.getGames(c.Request.Context(), page, c.Query("game_type"))
	if err != nil {
		c.JSON(err.Problem.Status, err.Problem)
		return
	}

	views := make([]model.GameView, 0, len(games))
	for _, g := range games {
		views = append(views, model.NewGameView(g))
	}

	response := utils.NewPageResponse[model.GameView]().
		WithItems(views).
		WithItemCount(total).
		NextPage(page, total)

	c.JSON(http.StatusOK, response.Build())
}

func (gh *gameHandler) confirmDeposit(c *gin.Context) {
	body := DepositRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	game, err := gh.gameService.confirmDeposit(c.Request.Context(), c.Param("id"), body.Wallet, body.Receipt)
	if err != nil {
		c.JSON(err.Problem.Status, err.Problem)
		return
	}

	c.JSON(http.StatusOK, model.NewGameView(*game))
}

func (gh *gameHandler) cancelGame(c *gin.Context) {
	body := CancelRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	game, err := gh.gameService.cancelGame(c.Request.Context(), c.Param("id"), body.Wallet)
	if err != nil {
		c.JSON(err.Problem.Status, err.Problem)
		return
	}

	c.JSON(http.StatusOK, model.NewGameView(*game))
}

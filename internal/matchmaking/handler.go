package matchmaking

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/reject"
)

type matchmakingHandler struct {
	engine *Engine
}

func RegisterRoutes(rg *gin.RouterGroup, engine *Engine) {
	handler := matchmakingHandler{engine: engine}

	routes := rg.Group("/matchmaking")
	routes.POST("/join", handler.join)
}

func (mh *matchmakingHandler) join(c *gin.Context) {
	body := JoinRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	result, err := mh.engine.Join(c.Request.Context(), body)
	if err != nil {
		p := reject.FromError(err)
		c.JSON(p.Problem.Status, p.Problem)
		return
	}

	c.JSON(http.StatusOK, result)
}

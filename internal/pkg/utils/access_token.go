package utils

import (
	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
)

const tokenCtxKey string = "accessToken"

type AccessToken struct {
	Token    auth.Token
	RawToken string
}

func SetAccessTokenCtx(token *AccessToken, ctx *gin.Context) {
	ctx.Set(tokenCtxKey, *token)
}

// GetUserExternalId returns the subject of the verified token, or empty
// when the route is not authenticated.
func GetUserExternalId(ctx *gin.Context) string {
	value, exists := ctx.Get(tokenCtxKey)
	if !exists {
		return ""
	}
	at, ok := value.(AccessToken)
	if !ok {
		return ""
	}
	return at.Token.Subject
}

package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/sentigee/relay-auth/internal/config"
	"github.com/sentigee/relay-auth/internal/http/handler"
	httpmiddleware "github.com/sentigee/relay-auth/internal/http/middleware"
	"github.com/sentigee/relay-auth/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, oauthHandler *handler.OAuthHandler, rateLimiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	relay := r.Group("/mail_relay")
	{
		relay.POST("/initiate-oauth", oauthHandler.InitiateOAuth)
		relay.GET("/callback", oauthHandler.Callback)
		relay.POST("/revoke-token", oauthHandler.RevokeToken)
		relay.GET("/status", oauthHandler.TokenStatus)
		relay.GET("/auth-url", oauthHandler.AuthURL)
	}

	return r
}

package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ceejayvjose/ict-repair-system/api"
	"github.com/ceejayvjose/ict-repair-system/internal/auth"
	"github.com/ceejayvjose/ict-repair-system/internal/handler"
)

const (
	pathHealth  = "/health"
	pathReady   = "/ready"
	pathSwagger = "/swagger"
)

// Deps collects everything the route table needs.
type Deps struct {
	Tickets      *handler.TicketHandler
	Messages     *handler.MessageHandler
	Auth         *handler.AuthHandler
	Verification *handler.VerificationHandler
	WS           *handler.WSHandler
	AuthService  *auth.Service
}

func New(d Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(pathHealth, handler.Health)
	r.GET(pathReady, handler.Ready)
	r.GET(pathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, pathSwagger+"/") })
	r.GET(pathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = pathSwagger + "/index.html"
			c.Request.RequestURI = pathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	r.GET("/ws", d.WS.Serve)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/verification", d.Verification.Issue)
		v1.POST("/tickets", d.Tickets.Submit)
		v1.GET("/tickets/:number", d.Tickets.Track)
		v1.GET("/broadcast", d.Messages.Broadcast)

		chat := v1.Group("/tickets/:number/messages")
		chat.Use(handler.OptionalAdmin(d.AuthService))
		{
			chat.GET("", d.Messages.ListChat)
			chat.POST("", d.Messages.SendChat)
		}

		v1.POST("/admin/login", d.Auth.Login)

		admin := v1.Group("/admin")
		admin.Use(handler.RequireAdmin(d.AuthService))
		{
			admin.POST("/logout", d.Auth.Logout)
			admin.GET("/me", d.Auth.Me)
			admin.GET("/tickets", d.Tickets.List)
			admin.PUT("/tickets/:id", d.Tickets.Update)
			admin.DELETE("/tickets/:id", d.Tickets.Delete)
			admin.POST("/broadcast", d.Messages.PostBroadcast)
		}
	}

	return r
}

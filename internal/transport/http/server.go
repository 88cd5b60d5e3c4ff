package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/bootstrap"
	"gopherai-docqa/internal/transport/http/handler"
	"gopherai-docqa/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt,
		handler.DependencyCheck{Name: app.Config.Database.Driver, Check: func(ctx context.Context) error {
			sqlDB, err := app.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		handler.DependencyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}},
		handler.DependencyCheck{Name: "rabbitmq", Check: func(ctx context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}},
	)

	return newEngine(Handlers{
		Health:   healthHandler,
		Auth:     handler.NewAuthHandler(app.AuthService),
		Session:  handler.NewSessionHandler(app.SessionService),
		Document: handler.NewDocumentHandler(app.DocumentService, app.Config.Upload.MaxBytes),
		Chat:     handler.NewChatHandler(app.ChatService),
	}, app.Config.Auth.JWTSecret)
}

type Handlers struct {
	Health   *handler.HealthHandler
	Auth     *handler.AuthHandler
	Session  *handler.SessionHandler
	Document *handler.DocumentHandler
	Chat     *handler.ChatHandler
}

func newEngine(h Handlers, jwtSecret string) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = 8 << 20
	router.Use(middleware.RequestLog(), gin.Recovery())

	router.GET("/healthz", h.Health.Check)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", h.Auth.Register)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.GET("/me", middleware.AuthJWT(jwtSecret), h.Auth.Me)

	protected := v1.Group("")
	protected.Use(middleware.AuthJWT(jwtSecret))

	protected.POST("/sessions", h.Session.Create)
	protected.GET("/sessions", h.Session.List)
	protected.GET("/sessions/:id", h.Session.Get)
	protected.PATCH("/sessions/:id", h.Session.Rename)
	protected.DELETE("/sessions/:id", h.Session.Delete)
	protected.GET("/sessions/:id/documents", h.Session.ListDocuments)
	protected.GET("/sessions/:id/messages", h.Session.ListMessages)

	protected.POST("/documents/upload", h.Document.Upload)
	protected.GET("/documents/:id/url", h.Document.PresignURL)

	protected.POST("/chat/query", h.Chat.Query)

	return router
}

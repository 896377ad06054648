package api

import (
	"embed"
	"html/template"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/auth"
)

//go:embed templates/*.html
var templatesFS embed.FS

// RouterConfig holds the settings the router needs beyond the handler
type RouterConfig struct {
	AllowOrigins []string
	// JWTManager enables bearer auth on /api when set
	JWTManager *auth.JWTManager
}

// NewRouter sets up the API router
func NewRouter(handler *Handler, cfg RouterConfig, logger *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	handler.authRequired = cfg.JWTManager != nil

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	if len(cfg.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	// Public routes
	router.GET("/", handler.Index)
	router.GET("/healthz", handler.HealthCheck)

	// API routes, token protected when auth is configured
	apiGroup := router.Group("/api")
	apiGroup.Use(AuthMiddleware(cfg.JWTManager, logger))
	{
		apiGroup.POST("/documents/upload", handler.UploadDocuments)
		apiGroup.GET("/pages", handler.ListPages)
		apiGroup.GET("/pages/count", handler.PageCount)
		apiGroup.DELETE("/session", handler.ClearSession)
	}

	return router
}

package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dpatel-io/clinicbook/internal/config"
	"github.com/dpatel-io/clinicbook/internal/domain"
	v1 "github.com/dpatel-io/clinicbook/internal/handler/v1"
	"github.com/dpatel-io/clinicbook/internal/middleware"
	"github.com/dpatel-io/clinicbook/internal/service"
	"github.com/dpatel-io/clinicbook/pkg/auth"
	"github.com/dpatel-io/clinicbook/pkg/metrics"
)

type Dependencies struct {
	Config     *config.Config
	DB         *gorm.DB
	JWTManager *auth.JWTManager
	Metrics    *metrics.Collector
	Log        *zap.Logger

	AuthService    *service.AuthService
	UserService    *service.UserService
	BookingService *service.BookingService
}

func New(deps Dependencies) *gin.Engine {
	if deps.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		middleware.Recovery(deps.Log),
		middleware.RequestLogger(deps.Log),
		middleware.Metrics(deps.Metrics),
		cors.New(cors.Config{
			AllowOrigins:     deps.Config.CORS.AllowedOrigins,
			AllowMethods:     deps.Config.CORS.AllowedMethods,
			AllowHeaders:     deps.Config.CORS.AllowedHeaders,
			AllowCredentials: true,
			MaxAge:           deps.Config.CORS.MaxAge,
		}),
	)

	r.GET("/healthz", healthHandler(deps.DB))
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	authHandler := v1.NewAuthHandler(deps.AuthService)
	userHandler := v1.NewUserHandler(deps.UserService)
	appointmentHandler := v1.NewAppointmentHandler(deps.BookingService)

	authenticated := middleware.Authenticate(deps.JWTManager)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/change-password", authenticated, authHandler.ChangePassword)
		}

		users := api.Group("/users", authenticated)
		{
			users.GET("/me", userHandler.Me)
			users.GET("/doctors", userHandler.ListDoctors)
			users.POST("/doctors/:id/verify",
				middleware.RequireRole(domain.RoleAdmin),
				userHandler.VerifyDoctor,
			)
		}

		appts := api.Group("/appointments", authenticated)
		{
			appts.POST("", appointmentHandler.Create)
			appts.GET("", appointmentHandler.List)
			appts.GET("/availability", appointmentHandler.Availability)
			appts.GET("/:id", appointmentHandler.Get)
			appts.PATCH("/:id", appointmentHandler.Update)
			appts.POST("/:id/cancel", appointmentHandler.Cancel)
			appts.POST("/:id/confirm",
				middleware.RequireRole(domain.RoleDoctor, domain.RoleAdmin),
				appointmentHandler.Confirm,
			)
			appts.POST("/:id/start",
				middleware.RequireRole(domain.RoleDoctor, domain.RoleAdmin),
				appointmentHandler.Start,
			)
			appts.POST("/:id/complete",
				middleware.RequireRole(domain.RoleDoctor, domain.RoleAdmin),
				appointmentHandler.Complete,
			)
			appts.POST("/:id/no-show",
				middleware.RequireRole(domain.RoleDoctor, domain.RoleAdmin),
				appointmentHandler.NoShow,
			)
			appts.POST("/:id/rating",
				middleware.RequireRole(domain.RolePatient),
				appointmentHandler.Rate,
			)
		}
	}

	return r
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unavailable"})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	}
}

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medexam-assistant-server/internal/config"
	"medexam-assistant-server/internal/handlers"
	"medexam-assistant-server/internal/his"
	"medexam-assistant-server/internal/middleware"
	"medexam-assistant-server/internal/models"
	"medexam-assistant-server/internal/services"
)

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, hisAdapter his.Adapter, logger *zap.Logger) {
	sessionService := services.NewSessionService(db, hisAdapter, logger)
	recordService := services.NewMedicalRecordService(db, hisAdapter, sessionService, logger)
	patientService := services.NewPatientService(db, logger)
	dashboardService := services.NewDashboardService(db)

	authHandler := handlers.NewAuthHandler(db, cfg, logger)
	userHandler := handlers.NewUserHandler(db, logger)
	sessionHandler := handlers.NewSessionHandler(sessionService, logger)
	recordHandler := handlers.NewMedicalRecordHandler(recordService, logger)
	patientHandler := handlers.NewPatientHandler(patientService, logger)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService, logger)
	hisHandler := handlers.NewHISHandler(hisAdapter, logger)

	// Public routes (no authentication required)
	public := router.Group("/api")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}
	}

	// Account routes always need a token
	account := router.Group("/api")
	account.Use(middleware.AuthMiddleware(cfg))
	{
		authRoutesPrivate := account.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		userRoutes := account.Group("/users")
		{
			userRoutes.GET("/doctors", userHandler.GetDoctors)

			adminRoutes := userRoutes.Group("")
			adminRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
			{
				adminRoutes.GET("", userHandler.GetUsers)
				adminRoutes.GET("/:id", userHandler.GetUserByID)
				adminRoutes.PUT("/:id", userHandler.UpdateUser)
				adminRoutes.DELETE("/:id", userHandler.DeleteUser)
			}
		}
	}

	// Clinical routes are guarded only when AUTH_ENABLED is set
	clinical := router.Group("/api")
	forceGuard := []gin.HandlerFunc{}
	if cfg.AuthEnabled {
		clinical.Use(middleware.AuthMiddleware(cfg))
		forceGuard = append(forceGuard, middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin))
	}
	{
		sessionRoutes := clinical.Group("/session")
		{
			sessionRoutes.POST("/create", sessionHandler.CreateSession)
			// An empty id reaches GetSession, which answers 400.
			sessionRoutes.GET("/", sessionHandler.GetSession)
			sessionRoutes.GET("/:id", sessionHandler.GetSession)
			sessionRoutes.PATCH("/:id/status", sessionHandler.UpdateSessionStatus)
			sessionRoutes.POST("/:id/cancel", sessionHandler.CancelSession)

			sessionRoutes.PUT("/:id/record", recordHandler.SaveMedicalRecord)
			sessionRoutes.PATCH("/:id/record", recordHandler.PatchMedicalRecord)
			sessionRoutes.GET("/:id/record", recordHandler.GetMedicalRecord)
			sessionRoutes.POST("/:id/record/sync", recordHandler.RetrySync)
		}

		patientRoutes := clinical.Group("/patients")
		{
			patientRoutes.POST("", patientHandler.CreatePatient)
			patientRoutes.POST("/force", append(forceGuard, patientHandler.ForceCreatePatient)...)
			patientRoutes.POST("/duplicates", patientHandler.FindDuplicates)
			patientRoutes.GET("", patientHandler.ListPatients)
			patientRoutes.GET("/export", patientHandler.ExportPatients)
			patientRoutes.GET("/display/:displayId", patientHandler.GetPatientByDisplayID)
			patientRoutes.GET("/:id", patientHandler.GetPatient)
			patientRoutes.PATCH("/:id", patientHandler.UpdatePatient)
		}

		clinical.GET("/dashboard/stats", dashboardHandler.GetStats)
		clinical.GET("/his/current-session", hisHandler.GetCurrentSession)
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
}

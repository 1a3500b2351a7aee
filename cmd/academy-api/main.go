package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edumanage/academy-api/api/swagger"
	"github.com/edumanage/academy-api/internal/handler"
	"github.com/edumanage/academy-api/internal/middleware"
	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/repository"
	"github.com/edumanage/academy-api/internal/scope"
	"github.com/edumanage/academy-api/internal/service"
	"github.com/edumanage/academy-api/pkg/cache"
	"github.com/edumanage/academy-api/pkg/config"
	"github.com/edumanage/academy-api/pkg/database"
	"github.com/edumanage/academy-api/pkg/jobs"
	"github.com/edumanage/academy-api/pkg/logger"
	corsmiddleware "github.com/edumanage/academy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edumanage/academy-api/pkg/middleware/requestid"
	"github.com/edumanage/academy-api/pkg/notify"
	"github.com/edumanage/academy-api/pkg/storage"
)

// @title Academy API
// @version 1.0.0
// @description Role-based backend for a multi-branch training academy.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard caching disabled", "error", err)
		redisClient = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	productRepo := repository.NewProductRepository(db)
	complaintRepo := repository.NewComplaintRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	eventRepo := repository.NewEventRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// Observability and audit trail.
	metricsSvc := service.NewMetricsService()
	auditSvc := service.NewActivityService(activityRepo, logr, jobs.QueueConfig{
		Workers:    2,
		BufferSize: 256,
		MaxRetries: 3,
		RetryDelay: time.Second,
		Logger:     logr,
	})
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	resolver := scope.NewResolver(auditSvc)

	cacheEnabled := redisClient != nil
	var cacheRepo service.CacheRepository
	if cacheEnabled {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cacheEnabled)

	// Notification delivery backend.
	var sender notify.Sender = notify.NewLogSender(logr)
	if cfg.Notifications.Provider == "twilio" {
		sender = notify.NewTwilioSender(notify.TwilioConfig{
			AccountSID:   cfg.Notifications.TwilioSID,
			AuthToken:    cfg.Notifications.TwilioToken,
			SMSFrom:      cfg.Notifications.TwilioSMSFrom,
			WhatsAppFrom: cfg.Notifications.TwilioWAFrom,
		}, logr)
	}

	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, sender, resolver, metricsSvc, nil, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.QueueWorkers,
		BufferSize: cfg.Notifications.QueueBuffer,
		MaxRetries: cfg.Notifications.QueueRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	// Payment proof storage.
	proofStore, err := storage.NewLocalStorage(cfg.Proofs.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init proof storage", "error", err)
	}
	proofSigner := storage.NewSignedURLSigner(cfg.Proofs.SignedURLSecret, cfg.Proofs.SignedURLTTL)

	// Domain services.
	authSvc := service.NewAuthService(userRepo, branchRepo, auditSvc, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "academy-api",
	})
	userSvc := service.NewUserService(userRepo, branchRepo, resolver, auditSvc, nil, logr)
	branchSvc := service.NewBranchService(branchRepo, userRepo, resolver, auditSvc, nil, logr)
	courseSvc := service.NewCourseService(courseRepo, enrollmentRepo, resolver, auditSvc, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, courseRepo, resolver, auditSvc, cacheSvc, nil, logr, cfg.Payments.DefaultAdmissionFee)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, enrollmentRepo, courseRepo, branchRepo, userRepo, resolver, auditSvc, nil, logr, service.AttendanceConfig{
		QRValidFor:       time.Duration(cfg.Attendance.QRValidMinutes) * time.Minute,
		AnomalyRunLength: cfg.Attendance.AnomalyRunLength,
	})
	paymentSvc := service.NewPaymentService(paymentRepo, enrollmentRepo, userRepo, proofStore, proofSigner, resolver, auditSvc, cacheSvc, nil, logr)
	productSvc := service.NewProductService(productRepo, resolver, auditSvc, notificationSvc, nil, logr, cfg.Products.LowStockThreshold)
	complaintSvc := service.NewComplaintService(complaintRepo, userRepo, auditSvc, resolver, nil, logr)
	requestSvc := service.NewRequestService(requestRepo, enrollmentRepo, userRepo, enrollmentSvc, auditSvc, resolver, nil, logr)
	eventSvc := service.NewEventService(eventRepo, notificationSvc, resolver, nil, logr)
	reportSvc := service.NewReportService(reportRepo, attendanceRepo, branchRepo, cacheSvc, metricsSvc, resolver, logr, cfg.Dashboard.CacheTTL)

	reminderSvc := service.NewReminderService(paymentSvc, attendanceSvc, notificationSvc, userRepo, logr, service.ReminderConfig{
		PaymentCron:    cfg.Reminders.PaymentCron,
		AttendanceCron: cfg.Reminders.AttendanceCron,
	})
	if cfg.Reminders.Enabled {
		if err := reminderSvc.Start(); err != nil {
			logr.Sugar().Fatalw("failed to start reminder scheduler", "error", err)
		}
		defer reminderSvc.Stop()
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc, userSvc)
	userHandler := handler.NewUserHandler(userSvc)
	branchHandler := handler.NewBranchHandler(branchSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, reportSvc, reminderSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, reminderSvc)
	productHandler := handler.NewProductHandler(productSvc)
	complaintHandler := handler.NewComplaintHandler(complaintSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	eventHandler := handler.NewEventHandler(eventSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	reportHandler := handler.NewReportHandler(reportSvc, auditSvc, metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public routes.
	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Authenticated routes.
	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.POST("/auth/logout", authHandler.Logout)
		authed.POST("/auth/change-password", authHandler.ChangePassword)
		authed.GET("/auth/me", authHandler.Me)

		users := authed.Group("/users")
		{
			users.GET("", middleware.RequireStaff(), userHandler.List)
			users.GET("/:id", userHandler.Get)
			users.POST("", middleware.RequireRoles(models.RoleSuperAdmin), userHandler.Create)
			users.PUT("/:id", userHandler.Update)
			users.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin), userHandler.Deactivate)
			users.POST("/:id/reset-password", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), userHandler.ResetPassword)
		}

		branches := authed.Group("/branches")
		{
			branches.GET("", branchHandler.List)
			branches.GET("/:id", branchHandler.Get)
			branches.POST("", middleware.RequireRoles(models.RoleSuperAdmin), branchHandler.Create)
			branches.PUT("/:id", middleware.RequireRoles(models.RoleSuperAdmin), branchHandler.Update)
			branches.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin), branchHandler.Delete)
		}

		courses := authed.Group("/courses")
		{
			courses.GET("", courseHandler.List)
			courses.GET("/:id", courseHandler.Get)
			courses.POST("", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), courseHandler.Create)
			courses.PUT("/:id", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), courseHandler.Update)
			courses.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), courseHandler.Delete)
		}

		enrollments := authed.Group("/enrollments")
		{
			enrollments.GET("", enrollmentHandler.List)
			enrollments.GET("/:id", enrollmentHandler.Get)
			enrollments.POST("", middleware.RequireStaff(), enrollmentHandler.Create)
			enrollments.DELETE("/:id", middleware.RequireStaff(), enrollmentHandler.Deactivate)
		}

		attendance := authed.Group("/attendance")
		{
			attendance.POST("/qr", middleware.RequireStaff(), attendanceHandler.GenerateQR)
			attendance.POST("/scan", middleware.RequireRoles(models.RoleStudent), attendanceHandler.ScanQR)
			attendance.POST("/mark", middleware.RequireStaff(), attendanceHandler.Mark)
			attendance.GET("", attendanceHandler.List)
			attendance.GET("/export", middleware.RequireStaff(), attendanceHandler.Export)
			attendance.GET("/anomalies", middleware.RequireStaff(), attendanceHandler.Anomalies)
			attendance.POST("/reminders", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), attendanceHandler.SendReminders)
		}

		payments := authed.Group("/payments")
		{
			payments.GET("", paymentHandler.List)
			payments.GET("/dues", middleware.RequireStaff(), paymentHandler.Dues)
			payments.POST("/reminders", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), paymentHandler.SendReminders)
			payments.GET("/:id", paymentHandler.Get)
			payments.POST("", middleware.RequireStaff(), paymentHandler.Create)
			payments.POST("/:id/process", middleware.RequireStaff(), paymentHandler.Process)
			payments.POST("/:id/cancel", middleware.RequireStaff(), paymentHandler.Cancel)
			payments.POST("/:id/proof", paymentHandler.UploadProof)
			payments.GET("/:id/proof-url", paymentHandler.ProofURL)
		}
		// Signed URL download carries its own token auth.
		api.GET("/payments/:id/proof", paymentHandler.DownloadProof)

		products := authed.Group("/products")
		{
			products.GET("", productHandler.List)
			products.GET("/low-stock", middleware.RequireStaff(), productHandler.LowStock)
			products.GET("/:id", productHandler.Get)
			products.POST("", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), productHandler.Create)
			products.PUT("/:id", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), productHandler.Update)
			products.POST("/:id/restock", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), productHandler.Restock)
			products.POST("/:id/purchase", productHandler.Purchase)
		}
		authed.GET("/purchases", productHandler.ListPurchases)

		complaints := authed.Group("/complaints")
		{
			complaints.POST("", middleware.RequireRoles(models.RoleStudent), complaintHandler.Create)
			complaints.GET("", complaintHandler.List)
			complaints.GET("/:id", complaintHandler.Get)
			complaints.PUT("/:id/status", middleware.RequireStaff(), complaintHandler.UpdateStatus)
		}
		authed.POST("/ratings", middleware.RequireRoles(models.RoleStudent), complaintHandler.RateCoach)
		authed.GET("/ratings/coach/:id", complaintHandler.CoachRatings)

		requests := authed.Group("/requests")
		{
			requests.POST("/course-change", middleware.RequireRoles(models.RoleStudent), requestHandler.CreateCourseChange)
			requests.GET("/course-change", requestHandler.ListCourseChanges)
			requests.POST("/course-change/:id/decide", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), requestHandler.DecideCourseChange)
			requests.POST("/transfer", middleware.RequireRoles(models.RoleStudent), requestHandler.CreateTransfer)
			requests.GET("/transfer", requestHandler.ListTransfers)
			requests.POST("/transfer/:id/decide", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), requestHandler.DecideTransfer)
			requests.POST("/resource", middleware.RequireRoles(models.RoleCoach, models.RoleCoachAdmin), requestHandler.CreateResource)
			requests.GET("/resource", requestHandler.ListResources)
			requests.POST("/resource/:id/decide", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), requestHandler.DecideResource)
		}

		events := authed.Group("/events")
		{
			events.GET("", eventHandler.List)
			events.GET("/:id", eventHandler.Get)
			events.POST("", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), eventHandler.Create)
			events.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), eventHandler.Delete)
		}

		notifications := authed.Group("/notifications")
		{
			notifications.GET("/templates", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), notificationHandler.ListTemplates)
			notifications.POST("/templates", middleware.RequireRoles(models.RoleSuperAdmin), notificationHandler.CreateTemplate)
			notifications.PUT("/templates/:id", middleware.RequireRoles(models.RoleSuperAdmin), notificationHandler.UpdateTemplate)
			notifications.DELETE("/templates/:id", middleware.RequireRoles(models.RoleSuperAdmin), notificationHandler.DeleteTemplate)
			notifications.POST("/trigger", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), notificationHandler.Trigger)
			notifications.POST("/broadcast", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), notificationHandler.Broadcast)
			notifications.GET("/logs", notificationHandler.ListLogs)
		}

		reports := authed.Group("/reports")
		{
			reports.GET("/dashboard", middleware.RequireStaff(), reportHandler.Dashboard)
			reports.GET("/financial", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin), reportHandler.Financial)
			reports.GET("/financial/export", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoachAdmin),
				middleware.Audit(auditSvc, "export", "reports"), reportHandler.ExportFinancial)
			reports.GET("/metrics", middleware.RequireRoles(models.RoleSuperAdmin), reportHandler.Metrics)
			reports.GET("/activity", middleware.RequireRoles(models.RoleSuperAdmin), reportHandler.ActivityLogs)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

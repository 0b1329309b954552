package main

import (
	"context"
	"diagnostic-service/internal/config"
	"diagnostic-service/internal/db"
	"diagnostic-service/internal/diagnostic"
	"diagnostic-service/internal/middleware"
	"diagnostic-service/internal/remote"
	"diagnostic-service/internal/tokencache"
	"diagnostic-service/internal/upload"
	"diagnostic-service/internal/worker"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redisLib "github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Connect to database
	database, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer db.Close(database)

	// Migrate database schema
	db.Migrate(database)

	// Redis backs the auth-verdict cache; running without it just means
	// every request verifies against the auth service
	rdb := redisLib.NewClient(&redisLib.Options{
		Addr: cfg.RedisAddress,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Println("Redis not available. Running without auth cache.")
		rdb = nil
	} else {
		log.Println("Redis connected successfully.")
	}
	authCache := tokencache.New(rdb, time.Duration(cfg.AuthCacheTTL)*time.Second)

	// File storage root
	uploadStore := upload.NewStore(cfg.UploadDir)
	if err := uploadStore.EnsureDir(); err != nil {
		log.Fatalf("failed to create upload directory: %v", err)
	}

	// Background pool for compensating file deletions
	cleanupPool := worker.NewPool(4)
	defer cleanupPool.Shutdown()

	// Upstream service clients
	authClient := remote.NewAuthClient(cfg.AuthServiceURL)
	patientsClient := remote.NewPatientsClient(cfg.UsersServiceURL)

	// Initialize repository, service, handler
	diagRepo := diagnostic.NewRepository(database)
	diagService := diagnostic.NewService(diagRepo, patientsClient, uploadStore, cleanupPool)
	diagHandler := diagnostic.NewHandler(diagService)

	authMW := &middleware.Auth{Verifier: authClient, Cache: authCache}

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
	}

	if cfg.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{cfg.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	// Health
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Diagnostic Service is running")
	})

	api := router.Group("/api/v1")

	// Diagnostic routes
	api.POST("/diagnostics", authMW.RequireRoles("MEDICO"), diagHandler.Create)
	api.POST("/diagnostics/:id", authMW.RequireRoles("MEDICO"), diagHandler.Create)
	api.GET("/diagnostics/my-medical-history", authMW.RequireRoles("PACIENTE"), diagHandler.ShowMyMedicalHistory)
	api.GET("/diagnostics/search", authMW.RequireRoles("MEDICO", "ADMINISTRADOR", "ENFERMERA"), diagHandler.Search)
	api.GET("/diagnostics/documents/patient/:patientId", authMW.RequireRoles("MEDICO", "ADMINISTRADOR", "ENFERMERA"), diagHandler.ShowPatientDiagnostics)
	api.GET("/diagnostics/documents/:id", authMW.RequireRoles("MEDICO", "ADMINISTRADOR", "ENFERMERA"), diagHandler.DownloadDocument)
	api.DELETE("/diagnostics/documents/:id", authMW.RequireRoles("MEDICO", "ADMINISTRADOR"), diagHandler.DeleteDocument)
	api.GET("/diagnostics/:id", authMW.RequireRoles("MEDICO", "ADMINISTRADOR", "ENFERMERA"), diagHandler.ShowDiagnostic)
	api.PUT("/diagnostics/:id", authMW.RequireRoles("MEDICO", "ADMINISTRADOR"), diagHandler.Update)
	api.POST("/diagnostics/:id/documents", authMW.RequireRoles("MEDICO", "ADMINISTRADOR"), diagHandler.AddDocuments)

	// Document-centric aliases used by document-first clients
	api.POST("/documents/upload", authMW.RequireRoles("MEDICO", "ADMINISTRADOR"), diagHandler.Create)
	api.POST("/documents/upload/:patientId", authMW.RequireRoles("MEDICO", "ADMINISTRADOR"), diagHandler.Create)
	api.GET("/documents/patient/:patientId", authMW.RequireRoles("MEDICO", "ADMINISTRADOR", "ENFERMERA"), diagHandler.ShowPatientDocuments)
	api.GET("/documents/:id", authMW.RequireRoles("MEDICO", "ADMINISTRADOR", "ENFERMERA"), diagHandler.DownloadDocument)
	api.DELETE("/documents/:id", authMW.RequireRoles("MEDICO", "ADMINISTRADOR"), diagHandler.DeleteDocument)

	// Server configuration
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Printf("Server listening on port %s", cfg.ServerPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Println("Server shutdown error:", err)
	}

	<-ctx.Done()
	log.Println("Server shutdown complete")
}

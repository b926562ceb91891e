package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"shareguard/handlers"
	"shareguard/models"
	"shareguard/services"
	"shareguard/system"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	if err := system.InitLogger(env("SHAREGUARD_LOG_DIR", "./logs")); err != nil {
		log.Printf("Warning: Could not initialize file logger: %v", err)
	}
	defer system.Close()

	system.Info("ShareGuard starting...")

	// 1. Database
	dbPath := env("SHAREGUARD_DB", "shareguard.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		system.Error("Failed to connect to database: %v", err)
		log.Fatal("Failed to connect to database:", err)
	}
	system.Info("Database connected: %s", dbPath)

	// WAL mode keeps access logging from locking out request handling
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		system.Warn("Failed to enable WAL mode: %v", err)
	} else {
		system.Info("SQLite WAL mode enabled")
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.StoredFile{},
		&models.ShareToken{},
		&models.AccessLog{},
		&models.SecurityEvent{},
		&models.BlacklistEntry{},
		&models.GuardSettings{},
	); err != nil {
		system.Error("Database migration failed: %v", err)
		log.Fatalf("CRITICAL: Database migration failed. Application cannot start: %v", err)
	}
	system.Info("Database migration completed successfully")

	seedAdmin(db)

	// 2. Guard configuration
	var settings models.GuardSettings
	if err := db.First(&settings, 1).Error; err != nil {
		settings = models.GuardSettings{ID: 1}
		db.Create(&settings)
	}
	cfg := services.ConfigFromSettings(&settings)

	// 3. Services
	store := services.NewGormStore(db)

	// Trusted users get relaxed creation limits; admins qualify.
	trusted := func(userID uint) bool {
		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			return false
		}
		return user.IsAdmin
	}

	limiter := services.NewRateLimiter(cfg, trusted)
	threats := services.NewThreatAssessor(cfg, store)
	anomalies := services.NewAnomalyDetector(cfg, store)
	guard := services.NewAccessGuard(cfg, limiter, threats, store, store)

	geoip := services.NewGeoIPService(env("SHAREGUARD_GEOIP_DB", "./GeoLite2-Country.mmdb"))
	defer geoip.Close()

	webhook := services.NewWebhookService()
	if settings.DiscordWebhookURL != "" {
		webhook.SetWebhookURL(settings.DiscordWebhookURL)
		system.Info("Discord webhook configured")
	}

	audit := services.NewDBAuditSink(db, geoip, webhook)
	responder := services.NewResponder(cfg, guard, webhook, audit)

	guard.SetServices(audit, responder, nil, db)
	if err := guard.LoadBlacklist(); err != nil {
		system.Warn("Failed to load persisted blacklist: %v", err)
	}

	analytics := services.NewAnalytics(cfg, db, store, guard, limiter, threats, anomalies)

	scheduler := services.NewScheduler(db, guard, limiter, analytics, webhook, responder, settings.AccessLogRetentionDays)
	scheduler.Start()

	// 4. HTTP surface
	handlers.SetJWTSecret(env("SHAREGUARD_JWT_SECRET", ""))
	handlers.StorageDir = env("SHAREGUARD_STORAGE_DIR", "./storage")

	h := handlers.NewHandler(db, guard, analytics, webhook)

	app := fiber.New(fiber.Config{
		BodyLimit: 512 * 1024 * 1024,
	})

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stdout,
	}))
	app.Use(cors.New())

	api := app.Group("/api")

	// ===== Public Routes =====
	api.Post("/login", h.Login)
	app.Get("/s/:token", h.ViewShare)
	app.Get("/s/:token/download", h.DownloadShare)

	// ===== Protected Routes (JWT Required) =====
	protected := api.Group("", handlers.JWTAuthMiddleware())

	protected.Put("/auth/password", h.ChangePassword)

	protected.Post("/files", h.UploadFile)
	protected.Get("/files", h.ListFiles)
	protected.Delete("/files/:id", h.DeleteFile)

	protected.Post("/shares", h.CreateShare)
	protected.Get("/shares", h.ListShares)
	protected.Delete("/shares/:id", h.RevokeShare)

	// ===== Admin Routes =====
	admin := protected.Group("", handlers.AdminOnlyMiddleware())

	admin.Get("/users", h.GetUsers)
	admin.Post("/users", h.CreateUser)
	admin.Delete("/users/:id", h.DeleteUser)

	admin.Get("/security/rules/block", h.GetBlacklist)
	admin.Post("/security/rules/block", h.AddBlacklistIP)
	admin.Delete("/security/rules/block/:ip", h.RemoveBlacklistIP)
	admin.Get("/security/check/:ip", h.CheckIPStatus)
	admin.Post("/security/clear", h.ClearSecurityState)

	admin.Get("/security/settings", h.GetGuardSettings)
	admin.Put("/security/settings", h.UpdateGuardSettings)

	admin.Get("/security/analytics", h.GetAnalytics)
	admin.Get("/security/dashboard", h.GetDashboard)
	admin.Get("/security/events", h.GetSecurityEvents)
	admin.Get("/security/logs", h.GetAccessLogs)

	admin.Post("/webhook/test", h.TestWebhook)

	addr := ":" + env("SHAREGUARD_PORT", "8080")
	system.Info("Server starting on %s", addr)

	go func() {
		time.Sleep(2 * time.Second)
		if webhook.IsEnabled() {
			webhook.SendSystemAlert("🚀 Server Started",
				"ShareGuard is now running ("+time.Now().Format("2006-01-02 15:04:05")+")",
				services.ColorGreen)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		system.Info("Gracefully shutting down...")
		scheduler.Stop()
		if webhook.IsEnabled() {
			webhook.SendSystemAlert("🛑 Server Stopping", "ShareGuard is shutting down...", services.ColorOrange)
		}
		_ = app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

// seedAdmin creates the default admin account on first run.
func seedAdmin(db *gorm.DB) {
	var count int64
	db.Model(&models.User{}).Count(&count)
	if count > 0 {
		return
	}

	password := env("SHAREGUARD_ADMIN_PASSWORD", "changeme123")
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		system.Error("Failed to hash default admin password: %v", err)
		return
	}

	admin := models.User{
		Username: env("SHAREGUARD_ADMIN_USER", "admin"),
		Password: string(hash),
		IsAdmin:  true,
	}
	if err := db.Create(&admin).Error; err != nil {
		system.Error("Failed to seed admin user: %v", err)
		return
	}
	system.Info("Seeded default admin user %q (id=%d)", admin.Username, admin.ID)
}

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daveenci-ai/daveenci-ai-avatar/internal/config"
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/email"
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/github"
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/middleware"
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/replicate"
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/service"
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/store"
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/transport/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

var startTime time.Time

func main() {
	startTime = time.Now()
	cfg := config.Load()

	db, err := store.New(cfg)
	if err != nil {
		log.Fatalf("❌ [DB] Failed to connect: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("⚠️ [DB] Close error: %v", err)
		}
	}()

	genClient := replicate.NewClient(cfg.ReplicateAPIToken)
	log.Println("✅ [REPLICATE] Client initialized")

	blobClient, err := github.NewClient(github.Config{
		Token:  cfg.GitHubToken,
		Repo:   cfg.GitHubRepo,
		Branch: cfg.GitHubBranch,
	})
	if err != nil {
		log.Fatalf("❌ [GITHUB] Failed to initialize client: %v", err)
	}
	log.Printf("✅ [GITHUB] Storage client initialized (repo: %s, branch: %s)", cfg.GitHubRepo, cfg.GitHubBranch)

	mailer := email.NewSender(cfg)
	if mailer.Enabled() {
		log.Printf("✅ [EMAIL] SMTP sender initialized (%s:%d)", cfg.SMTPHost, cfg.SMTPPort)
	} else {
		log.Println("⚠️ [EMAIL] SMTP disabled (no SMTP_HOST), verification emails will be skipped")
	}

	userService := service.NewUserService(db.DB, mailer, cfg.JWTSecret, cfg.AppBaseURL)
	avatarService := service.NewAvatarService(db.DB)
	imageService := service.NewImageService(db.DB, genClient, blobClient)
	handler := http.NewHandler(userService, avatarService, imageService)
	log.Println("✅ [SERVICE] Services & handler initialized")

	app := fiber.New(fiber.Config{
		AppName:      "daveenci-ai-avatar",
		ErrorHandler: customErrorHandler(cfg),
	})

	app.Use(recover.New())

	// CORS configuration:
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,Cache-Control",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${ua}\n",
	}))

	api := app.Group("/api", middleware.RateLimit(cfg.RateLimitPerMin))

	// 1. Public auth routes
	api.Post("/auth/register", handler.Register)
	api.Post("/auth/login", handler.Login)
	api.Get("/auth/verify", handler.VerifyEmail)
	log.Println("✅ [ROUTES] Registered auth routes: /api/auth/*")

	// 2. Authenticated routes
	authed := api.Group("", middleware.RequireAuth(cfg.JWTSecret))
	authed.Get("/auth/me", handler.Me)
	authed.Put("/users/profile", handler.UpdateProfile)
	authed.Get("/users/stats", handler.GetStats)

	authed.Get("/contacts", handler.ListContacts)
	authed.Post("/contacts", handler.CreateContact)

	authed.Get("/avatars", handler.ListAvatars)
	authed.Post("/avatars", handler.CreateAvatar)
	authed.Get("/avatars/:id", handler.GetAvatar)
	authed.Put("/avatars/:id", handler.UpdateAvatar)
	authed.Delete("/avatars/:id", handler.DeleteAvatar)
	log.Println("✅ [ROUTES] Registered avatar routes: /api/avatars/*, /api/contacts")

	authed.Post("/images/generate", handler.GenerateImages)
	authed.Get("/images/pending", handler.GetPendingImages)
	authed.Get("/images/history", handler.GetHistory)
	authed.Post("/images/:id/like", handler.LikeImage)
	authed.Post("/images/:id/dislike", handler.DislikeImage)
	authed.Post("/images/:id/download", handler.DownloadImage)
	authed.Delete("/images/:id", handler.DeleteImage)
	log.Println("✅ [ROUTES] Registered image routes: /api/images/*")

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		uptime := time.Since(startTime).Round(time.Second)
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "daveenci-ai-avatar",
			"uptime":    uptime.String(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	log.Println("✅ [ROUTES] Registered /health")

	// Pre-built SPA bundle, when present. API routes above win.
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
		app.Get("/*", func(c *fiber.Ctx) error {
			return c.SendFile(cfg.StaticDir + "/index.html")
		})
		log.Printf("✅ [ROUTES] Serving static bundle from %s", cfg.StaticDir)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("🛑 [SHUTDOWN] Graceful shutdown initiated...")
		if err := app.Shutdown(); err != nil {
			log.Printf("❌ [SHUTDOWN] Error: %v", err)
		}
	}()

	log.Printf("🚀 daveenci-ai-avatar starting...")
	log.Printf("   🔗 Listening on port: %s", cfg.ServerPort)
	log.Printf("   🌐 CORS allowed origins: %s", cfg.AllowedOrigins)
	log.Printf("   📦 GitHub storage repo: %s", cfg.GitHubRepo)
	log.Printf("   🎨 Rate limit: %d req/min per IP", cfg.RateLimitPerMin)
	log.Println("✅ Server ready.")

	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("❌ [STARTUP] Server failed to start: %v", err)
	}
}

// customErrorHandler hides internals behind a generic message. Outside
// production the underlying error is echoed to ease debugging.
func customErrorHandler(cfg *config.Config) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var errMsg string
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			errMsg = e.Message
		} else {
			errMsg = err.Error()
		}
		log.Printf("🔥 [ERROR] [%d] %s %s → %v | IP=%s | UA=%s",
			code,
			c.Method(),
			c.Path(),
			errMsg,
			c.IP(),
			c.Get("User-Agent"),
		)
		body := fiber.Map{"error": "something went wrong"}
		if cfg.Env != "production" {
			body["detail"] = errMsg
		}
		return c.Status(code).JSON(body)
	}
}

package router

import (
	"net/http"

	authsvc "assohub-backend/internal/application/auth"
	emailsvc "assohub-backend/internal/application/emails"
	eventsvc "assohub-backend/internal/application/events"
	"assohub-backend/internal/application/notify"
	registrysvc "assohub-backend/internal/application/registry"
	reviewsvc "assohub-backend/internal/application/review"
	uploadsvc "assohub-backend/internal/application/uploads"
	usersvc "assohub-backend/internal/application/user"
	"assohub-backend/internal/config"
	"assohub-backend/internal/infrastructure/database"
	authhandler "assohub-backend/internal/interfaces/handlers/auth"
	healthhandler "assohub-backend/internal/interfaces/handlers/health"
	notifhandler "assohub-backend/internal/interfaces/handlers/notifications"
	orghandler "assohub-backend/internal/interfaces/handlers/org"
	payhandler "assohub-backend/internal/interfaces/handlers/payments"
	reviewhandler "assohub-backend/internal/interfaces/handlers/review"
	uploadhandler "assohub-backend/internal/interfaces/handlers/uploads"
	userhandler "assohub-backend/internal/interfaces/handlers/user"
	"assohub-backend/internal/middleware"
	"assohub-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	// Webhook is registered before the session middleware so the gateway's
	// raw body and signature header pass through untouched.
	gatewayWebhook := &payhandler.WebhookHandler{WebhookSecret: cfg.GatewayWebhookSecret}
	app.Post("/api/v1/gateway/webhook", func(c *fiber.Ctx) error {
		return gatewayWebhook.HandleWebhook(c)
	})

	sessionHandler, redisClient, err := middleware.Session(middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	})
	if err != nil {
		return nil, nil, nil, err
	}
	rdb := redisClient
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.ResponseFormatter())
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	app.Use(func(c *fiber.Ctx) error {
		user := c.Locals("user")
		if user == nil {
			c.Locals("user", nil)
		}
		return c.Next()
	})

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             nil,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/", hh.Dashboard)
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var errDB error
		db, errDB = database.Open(cfg.DatabaseURL)
		if errDB != nil {
			return nil, nil, nil, errDB
		}
		hh.DB = &gormDBPinger{db: db}
	}

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}

	var userFinder authsvc.UserFinder
	if db != nil {
		userFinder = &authsvc.GormUserFinder{DB: db}
	}
	ah := &authhandler.Handlers{
		UserFinder: userFinder,
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/login", ah.Login)
	authGroup.Get("/me", ah.Me)
	authGroup.Delete("/logout", ah.Logout)

	if db != nil {
		gatewayWebhook.DB = db
	}

	if db != nil && rdb != nil {
		// Email delivery: no API key means a nil sender, the dispatcher then
		// records the outbox rows as sent without calling out.
		var emailSender notify.Sender
		if cfg.BrevoAPIKey != "" {
			emailSender = &emailsvc.BrevoClient{APIKey: cfg.BrevoAPIKey, MailFrom: cfg.MailFrom}
		}
		dispatcher := &notify.Dispatcher{DB: db, Sender: emailSender}

		// Users
		us := &usersvc.Service{DB: db, Rdb: rdb}
		uh := &userhandler.Handlers{Service: us, Config: sessionCfg}
		// create-user is public (registration)
		app.Post("/api/v1/users/create-user", uh.CreateUser)
		ug := app.Group("/api/v1/users", middleware.RequireAuth())
		ug.Put("/update-user", uh.UpdateUser)
		ug.Get("/view-user", uh.ViewUser)
		ug.Patch("/update-role", middleware.AuthorizePermission(constants.ManageUsers), uh.UpdateRole)
		ug.Delete("/remove-user", middleware.AuthorizePermission(constants.ManageUsers), uh.RemoveUser)

		// Registry: onboarding, document and payment submission
		rvs := &reviewsvc.Service{DB: db, Notify: dispatcher}
		rgs := &registrysvc.Service{DB: db, Review: rvs}
		oh := &orghandler.Handlers{Service: rgs, Config: sessionCfg}
		og := app.Group("/api/v1/orgs", middleware.RequireAuth())
		og.Post("/create-org", oh.CreateOrg)
		og.Get("/view-org", middleware.AuthorizePermission(constants.ViewRegistry), oh.ViewOrg)
		og.Patch("/update-org/:id", oh.UpdateOrg)
		og.Post("/documents/:slotKey", middleware.AuthorizePermission(constants.SubmitDocuments), oh.SubmitDocument)
		og.Post("/payments", middleware.AuthorizePermission(constants.SubmitPayment), oh.SubmitPayment)

		// Review: staff decisions
		rvh := &reviewhandler.Handlers{Review: rvs, Registry: rgs}
		rg := app.Group("/api/v1/review", middleware.RequireAuth())
		rg.Get("/queue", middleware.AuthorizePermission(constants.ReviewDocuments), rvh.Queue)
		rg.Post("/orgs/:orgId/documents/:slotKey/approve", middleware.AuthorizePermission(constants.ReviewDocuments), rvh.ApproveDocument)
		rg.Post("/orgs/:orgId/documents/:slotKey/reject", middleware.AuthorizePermission(constants.ReviewDocuments), rvh.RejectDocument)
		rg.Post("/orgs/:orgId/payments/:paymentId/approve", middleware.AuthorizePermission(constants.ReviewPayments), rvh.ApprovePayment)
		rg.Post("/orgs/:orgId/payments/:paymentId/reject", middleware.AuthorizePermission(constants.ReviewPayments), rvh.RejectPayment)

		// Notifications
		evs := &eventsvc.Service{DB: db}
		nh := &notifhandler.Handlers{Events: evs, Dispatcher: dispatcher}
		ng := app.Group("/api/v1/notifications", middleware.RequireAuth())
		ng.Get("/", nh.List)
		ng.Get("/unread-count", nh.UnreadCount)
		ng.Patch("/mark-read", nh.MarkRead)
		ng.Post("/resend", middleware.AuthorizePermission(constants.ResendNotifications), nh.Resend)

		// Uploads: signed URLs against the artifact store
		sc := &uploadsvc.HTTPClient{BaseURL: cfg.StorageURL, SecretKey: cfg.StorageSecretKey}
		upsvc := &uploadsvc.Service{Client: sc, StorageURL: cfg.StorageURL}
		uph := &uploadhandler.Handlers{Service: upsvc}
		upg := app.Group("/api/v1/uploads", middleware.RequireAuth())
		upg.Post("/document", middleware.AuthorizePermission(constants.SubmitDocuments), uph.SignDocument)
		upg.Post("/receipt", middleware.AuthorizePermission(constants.SubmitPayment), uph.SignReceipt)
	}

	return app, db, rdb, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}

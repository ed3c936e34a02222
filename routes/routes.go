package routes

import (
	"danceportal_go/controllers"
	"danceportal_go/middleware"
	"danceportal_go/repository"
	"danceportal_go/services"
	"danceportal_go/services/websocket"

	"github.com/gofiber/fiber/v2"
)

// Dependencies are the services the HTTP layer is built on. Archiver is nil
// when no SQL database is connected; the log endpoints are then not mounted.
type Dependencies struct {
	Store    repository.Store
	Revoker  middleware.Revoker
	Admin    *services.AdminService
	Portal   *services.PortalService
	Health   *services.HealthService
	Archiver *services.LogArchiveService
	Hub      *websocket.Hub
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	// Initialize controllers
	authController := controllers.NewAuthController(deps.Store, deps.Revoker)
	adminController := controllers.NewAdminController(deps.Admin)
	portalController := controllers.NewPortalController(deps.Portal, deps.Admin.Billing().Now)
	healthController := controllers.NewHealthController(deps.Health)
	wsController := controllers.NewWebSocketController(deps.Hub, deps.Store, deps.Revoker)

	// Health checks
	app.Get("/health", healthController.Liveness)
	app.Get("/health/ready", healthController.GetHealthStatus)

	// API group
	api := app.Group("/api")
	jwt := middleware.JWTMiddleware(deps.Store, deps.Revoker)

	// Authentication routes
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Post("/logout", jwt, authController.Logout)
	auth.Get("/profile", jwt, authController.GetProfile)

	// Staff back office
	admin := api.Group("/admin", jwt, middleware.RequireAdmin())

	families := admin.Group("/families")
	families.Get("/", adminController.ListFamilies)
	families.Post("/", adminController.CreateFamily)
	families.Get("/:id", adminController.GetFamily)
	families.Post("/:id/processor-customer", adminController.LinkProcessorCustomer)
	families.Get("/:id/students", adminController.ListStudents)
	families.Post("/:id/students", adminController.CreateStudent)
	families.Post("/:id/enrollments", adminController.Enroll)
	families.Post("/:id/charges", adminController.PostCharge)
	families.Post("/:id/payments", adminController.PostManualPayment)
	families.Get("/:id/ledger", adminController.GetLedger)
	families.Get("/:id/statement", adminController.GetStatement)

	admin.Get("/students", adminController.ListStudents)

	classes := admin.Group("/classes")
	classes.Get("/", adminController.ListClasses)
	classes.Post("/", adminController.CreateClass)
	classes.Put("/:id/pricing", adminController.SetClassPricing)
	classes.Put("/:id/active", adminController.SetClassActive)

	admin.Put("/enrollments/:id/status", adminController.UpdateEnrollmentStatus)

	invoices := admin.Group("/invoices")
	invoices.Post("/generate", adminController.GenerateInvoices)
	invoices.Get("/", adminController.ListInvoices)
	invoices.Get("/:id", adminController.GetInvoice)
	invoices.Post("/:id/finalize", adminController.FinalizeInvoice)

	admin.Post("/payments/:id/sync", adminController.SyncPaymentStatus)
	admin.Post("/autopay/run", adminController.RunAutopay)

	reports := admin.Group("/reports")
	reports.Get("/aging", adminController.AgingReport)
	reports.Get("/revenue", adminController.RevenueReport)

	if deps.Archiver != nil {
		logController := controllers.NewLogController(deps.Archiver)
		logs := admin.Group("/logs")
		logs.Get("/", logController.GetLogs)
		logs.Post("/flush", logController.FlushCachedLogs)
		logs.Post("/archive", logController.ArchiveLogs)
		admin.Get("/archives", logController.GetArchives)
		admin.Get("/archives/:id/download", logController.DownloadArchive)
	}

	admin.Get("/ws/stats", wsController.GetWebSocketStats)

	// Family portal
	portal := api.Group("/portal", jwt, middleware.RequireFamily())
	portal.Get("/overview", portalController.Overview)
	portal.Get("/balance", portalController.Balance)
	portal.Get("/aging", portalController.Aging)
	portal.Get("/ledger", portalController.Ledger)

	methods := portal.Group("/payment-methods")
	methods.Get("/", portalController.PaymentMethods)
	methods.Post("/", portalController.AttachPaymentMethod)
	methods.Post("/setup-intent", portalController.SetupIntent)
	methods.Put("/:id/default", portalController.SetDefaultPaymentMethod)

	portal.Post("/payments", portalController.Pay)

	portal.Get("/autopay", portalController.AutopayStatus)
	portal.Put("/autopay", portalController.EnableAutopay)
	portal.Delete("/autopay", portalController.DisableAutopay)

	portal.Get("/classes", portalController.Classes)
	portal.Get("/students", portalController.Students)
	portal.Get("/enrollments", portalController.Enrollments)
	portal.Post("/enrollments", portalController.Enroll)

	portal.Get("/invoices", portalController.Invoices)
	portal.Get("/invoices/:id", portalController.Invoice)
	portal.Get("/statement", portalController.Statement)

	// WebSocket connection endpoint, authenticated with ?token=
	app.Use("/ws", wsController.Upgrade)
	app.Get("/ws", wsController.WebSocketHandler())
}

package handler

import (
	"database/sql"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"pdflearn/internal/http/middleware"
	"pdflearn/internal/service"
	"pdflearn/internal/shell"
)

// Dependencies are the collaborators behind the HTTP surface.
type Dependencies struct {
	DB        *sql.DB
	Redis     redis.UniversalClient
	Sessions  middleware.SessionResolver
	Accounts  service.AccountService
	Resources service.ResourceService
	Browser   service.BrowserService
	Uploads   Uploads
	Prefs     Preferences
	Routes    shell.Routes
	Logger    *slog.Logger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Every route below the session middleware sees the resolved session; the protected group
// additionally passes the route guard.
func RegisterRoutes(app *fiber.App, d Dependencies) {
	if d.Routes.SignIn == "" {
		d.Routes = shell.Pages
	}
	app.Use(middleware.WithLogger(d.Logger))

	app.Get("/health", HealthCheck(d.DB, d.Redis))
	app.Get("/healthz", LivenessProbe())

	app.Use(middleware.Session(d.Sessions, d.Logger))

	app.Get("/shell", ShellDecision(d.Routes))

	auth := app.Group("/auth")
	auth.Post("/signup", SignUp(d.Accounts))
	auth.Post("/login", SignIn(d.Accounts))
	auth.Post("/forgot-password", ForgotPassword(d.Accounts))
	auth.Get("/reset-password", VerifyResetCode(d.Accounts))
	auth.Post("/reset-password", ResetPassword(d.Accounts))

	guard := RequireSession(d.Routes)
	private := []fiber.Handler{guard, middleware.NoStore()}

	app.Post("/auth/logout", append(private, SignOut(d.Accounts))...)
	app.Get("/session", append(private, CurrentSession())...)
	app.Get("/nav", append(private, Navigation())...)
	app.Post("/account/password", append(private, ChangePassword(d.Accounts))...)

	uploads := app.Group("/uploads", private...)
	uploads.Post("/", IntakeUpload(d.Uploads))
	uploads.Get("/active", ActiveUpload(d.Uploads))
	uploads.Post("/active/analyze", AnalyzeUpload(d.Uploads))
	uploads.Post("/active/halt", HaltUpload(d.Uploads))
	uploads.Delete("/active", RemoveUpload(d.Uploads))
	uploads.Post("/active/save", SaveUpload(d.Uploads))

	docs := app.Group("/documents", private...)
	docs.Get("/", ListDocuments(d.Browser))
	docs.Get("/:id", GetDocument(d.Browser))

	res := app.Group("/resources", private...)
	res.Get("/", BrowseResources(d.Browser))
	res.Get("/selection", SelectResources(d.Browser))

	del := app.Group("/deletions", private...)
	del.Post("/", RequestDeletion(d.Resources))
	del.Post("/:token/confirm", ConfirmDeletion(d.Resources))
	del.Delete("/:token", CancelDeletion(d.Resources))

	pref := app.Group("/preferences", private...)
	pref.Get("/", ListPreferences(d.Prefs))
	pref.Get("/:key", GetPreference(d.Prefs))
	pref.Put("/:key", PutPreference(d.Prefs))
	pref.Delete("/:key", DeletePreference(d.Prefs))
}

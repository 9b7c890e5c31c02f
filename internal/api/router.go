package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/model"
)

// NewRouter creates the API router with all endpoints registered under /api.
// corsOrigins lists the browser origins allowed to call the API; CORS is
// disabled when it is empty.
func NewRouter(db *sqlx.DB, jwtSecret string, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	stockHandler := &StockHandler{DB: db}
	notificationsHandler := &NotificationsHandler{DB: db}
	historyHandler := &HistoryHandler{DB: db}
	casesHandler := &CasesHandler{DB: db}
	auditHandler := &AuditHandler{DB: db}

	r.Route("/api", func(r chi.Router) {
		// Public.
		r.Get("/health", healthHandler(db))
		r.Post("/auth/login", authHandler.Login)

		// Authenticated.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret, db))

			r.Post("/auth/logout", authHandler.Logout)
			r.Put("/auth/password", authHandler.ChangePassword)

			r.Route("/users", func(r chi.Router) {
				r.Get("/directory", usersHandler.Directory)

				r.Group(func(r chi.Router) {
					r.Use(RequireRole(model.RoleAdmin))
					r.Get("/", usersHandler.List)
					r.Post("/", usersHandler.Create)
					r.Get("/{id}", usersHandler.Get)
					r.Put("/{id}", usersHandler.Update)
					r.Put("/{id}/password", usersHandler.ResetPassword)
					r.Delete("/{id}", usersHandler.Delete)
				})
			})

			r.Route("/stocks", func(r chi.Router) {
				r.Get("/", stockHandler.List)
				r.Post("/", stockHandler.Create)
				r.Post("/bulk", stockHandler.Bulk)
				r.Post("/import", stockHandler.Import)
				r.Get("/search", stockHandler.Search)
				r.Get("/grouped", stockHandler.Grouped)
				r.Get("/check-duplicate", stockHandler.CheckDuplicate)
				r.Post("/remove", stockHandler.Remove)
				r.Post("/transfer", stockHandler.Transfer)
				r.Delete("/all", stockHandler.DeleteAll)
				r.Put("/{id}", stockHandler.Update)
				r.Delete("/{id}", stockHandler.Delete)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationsHandler.List)
				r.Get("/unread", notificationsHandler.Unread)
				r.Put("/{id}/read", notificationsHandler.MarkRead)
				r.Post("/{id}/action", notificationsHandler.Action)
				r.Get("/{id}/lines", notificationsHandler.Lines)
			})

			r.Route("/history", func(r chi.Router) {
				r.Get("/", historyHandler.List)
				r.Delete("/all", historyHandler.DeleteAll)
				r.Delete("/{id}", historyHandler.Delete)
			})

			r.Route("/cases", func(r chi.Router) {
				r.Get("/", casesHandler.List)
				r.Post("/", casesHandler.Create)
				r.Get("/{id}", casesHandler.Get)
				r.Delete("/{id}", casesHandler.Delete)
			})

			r.With(RequireRole(model.RoleAdmin)).Get("/audit", auditHandler.List)
		})
	})

	return r
}

func healthHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

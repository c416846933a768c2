package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/qb-categorizer-be/internal/api/handlers"
	"github.com/isdelr/qb-categorizer-be/internal/auth"
	"github.com/isdelr/qb-categorizer-be/internal/services"
	"github.com/isdelr/qb-categorizer-be/internal/websocket"
)

// Dependencies bundles everything the router hands to its handlers.
type Dependencies struct {
	Hub             *websocket.Hub
	JWTSecret       []byte
	WebhookVerifier handlers.WebhookVerifier
	CORSOrigins     []string
	AppURL          string
	LookbackDays    int

	UserService           services.UserServiceProvider
	EventService          services.EventServiceProvider
	ClientService         services.ClientServiceProvider
	TransactionService    services.TransactionServiceProvider
	CategorizationService services.CategorizationServiceProvider
	QuickBooksSyncService services.QuickBooksSyncServiceProvider
	DashboardService      services.DashboardServiceProvider
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(deps.UserService)
	eventHandler := handlers.NewEventHandler(deps.EventService, deps.UserService)
	webhookHandler := handlers.NewWebhookHandler(deps.WebhookVerifier, deps.UserService)
	qbHandler := handlers.NewQuickBooksHandler(deps.ClientService, deps.UserService, deps.AppURL)
	clientHandler := handlers.NewClientHandler(deps.ClientService, deps.TransactionService, deps.UserService)
	transactionHandler := handlers.NewTransactionHandler(deps.ClientService, deps.TransactionService,
		deps.CategorizationService, deps.QuickBooksSyncService, deps.UserService, deps.LookbackDays)
	dashboardHandler := handlers.NewDashboardHandler(deps.DashboardService, deps.UserService)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.ClientService, deps.UserService, deps.CORSOrigins)

	r.Get("/healthz", healthz)

	// API versioning
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/healthz", healthz)
		r.Post("/webhooks/auth", webhookHandler.Auth)
		r.Get("/quickbooks/callback", qbHandler.Callback)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.JWTMiddleware(deps.JWTSecret))

			r.Get("/me", userHandler.GetMe)
			r.Get("/events", eventHandler.GetRecent)
			r.Get("/dashboard/stats", dashboardHandler.GetStats)

			r.Get("/quickbooks/connect", qbHandler.Connect)
			r.Post("/quickbooks/disconnect", qbHandler.Disconnect)

			r.Route("/clients", func(r chi.Router) {
				r.Get("/", clientHandler.GetAll)
				r.Route("/{clientId}", func(r chi.Router) {
					r.Get("/", clientHandler.Get)
					r.Get("/accounts", clientHandler.GetAccounts)
					r.Get("/classes", clientHandler.GetClasses)
					r.Get("/transactions", clientHandler.GetTransactions)
				})
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/sync", transactionHandler.Sync)
				r.Post("/categorize", transactionHandler.Categorize)
				r.Get("/categorize", transactionHandler.CategorizationStatus)
				r.Post("/approve", transactionHandler.Approve)
				r.Post("/sync-to-qb", transactionHandler.SyncToQuickBooks)
			})

			r.Get("/ws/clients/{clientId}", wsHandler.Serve)
		})
	})

	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

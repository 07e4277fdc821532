package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"canopy-backend/internal/config"
	"canopy-backend/internal/handlers"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	AuthHandler     *handlers.AuthHandler
	SessionHandler  *handlers.SessionHandlers
	PlaybookHandler *handlers.PlaybookHandlers
	ChannelHandler  *handlers.ChannelHandlers
	Config          *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// --- CORS Configuration ---
	// Adjust AllowedOrigins for your frontend deployment(s)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://*.vercel.app"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public Routes (No JWT Required) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		if deps.AuthHandler == nil {
			panic("AuthHandler dependency is nil in router setup")
		}
		r.Post("/signup", deps.AuthHandler.HandleSignup)
		r.Post("/login", deps.AuthHandler.HandleLogin)
	})

	// --- Authenticated Routes (JWT Required) ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))

		// --- Mount Session Routes ---
		if deps.SessionHandler != nil {
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", deps.SessionHandler.HandleCreateSession)
				r.Get("/", deps.SessionHandler.HandleListSessions)
				r.Get("/{sessionID}", deps.SessionHandler.HandleGetSession)
				r.Delete("/{sessionID}", deps.SessionHandler.HandleDeleteSession)

				// Turn lifecycle APIs
				r.Post("/{sessionID}/messages", deps.SessionHandler.HandleSubmitMessage)
				r.Post("/{sessionID}/cancel", deps.SessionHandler.HandleCancelJob)
			})
		} else {
			log.Println("WARN: SessionHandler dependency is nil, skipping /v1/sessions routes.")
		}

		// --- Mount Playbook Routes ---
		if deps.PlaybookHandler != nil {
			r.Route("/playbooks", func(r chi.Router) {
				r.Post("/", deps.PlaybookHandler.HandleCreatePlaybook)
				r.Get("/", deps.PlaybookHandler.HandleListPlaybooks)
				r.Get("/{playbookID}", deps.PlaybookHandler.HandleGetPlaybook)
				r.Patch("/{playbookID}", deps.PlaybookHandler.HandleUpdatePlaybook)
				r.Delete("/{playbookID}", deps.PlaybookHandler.HandleDeletePlaybook)

				// Dispatch APIs
				r.Post("/{playbookID}/run", deps.PlaybookHandler.HandleRunPlaybook)
				r.Get("/{playbookID}/runs", deps.PlaybookHandler.HandleListPlaybookRuns)
			})
		} else {
			log.Println("WARN: PlaybookHandler dependency is nil, skipping /v1/playbooks routes.")
		}

		// --- Mount Notification Channel Routes ---
		if deps.ChannelHandler != nil {
			r.Route("/channels", func(r chi.Router) {
				r.Post("/", deps.ChannelHandler.HandleCreateChannel)
				r.Get("/", deps.ChannelHandler.HandleListChannels)
				r.Get("/{channelID}", deps.ChannelHandler.HandleGetChannel)
				r.Delete("/{channelID}", deps.ChannelHandler.HandleDeleteChannel)
			})
		} else {
			log.Println("WARN: ChannelHandler dependency is nil, skipping /v1/channels routes.")
		}
	})

	return r
}

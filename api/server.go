/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     logrus request logging (RequestLogger)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus request counter and latency histogram
  6. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/upload, /api/save-data   Ingestion and bulk save
  /api/units/*                  Unit reads
  /api/repair-items/*           Repair item edits
  /api/analysis/*               Reports
  /api/*session*, /api/databases, /api/load-database, /api/debug/*
                                Session control
  /healthz, /metrics            Operations
  /*                            Static files (frontend)

STATIC FILE SERVING:
  Serves the built frontend from RouterOptions.StaticDir when it exists.
  Falls back to index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - metrics.go: Instrumentation middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	StaticDir      string
	Metrics        *Metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.log))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Instrument)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.Upload)
		r.Post("/save-data", h.SaveData)

		r.Route("/units", func(r chi.Router) {
			r.Get("/", h.ListUnits)
			r.Get("/{id}", h.GetUnit)
		})

		r.Put("/repair-items/{id}", h.UpdateRepairItem)

		r.Route("/analysis", func(r chi.Router) {
			r.Get("/costs", h.CostAnalysis)
			r.Get("/suppliers", h.SupplierAnalysis)
			r.Get("/units", h.UnitAnalysis)
			r.Get("/dates", h.DateAnalysis)
			r.Get("/repair-types", h.RepairTypeAnalysis)
			r.Get("/overview", h.OverviewAnalysis)
		})

		// Session routes
		r.Post("/new-session", h.NewSession)
		r.Get("/load-session", h.LoadSession)
		r.Post("/reload-session", h.ReloadSession)
		r.Get("/databases", h.ListDatabases)
		r.Post("/load-database", h.LoadDatabase)
		r.Get("/debug/database", h.DebugDatabase)
	})

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	staticDir := opts.StaticDir
	if info, err := os.Stat(staticDir); staticDir != "" && err == nil && info.IsDir() {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			fullPath := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))

			// Check if file exists
			if _, err := os.Stat(fullPath); os.IsNotExist(err) {
				// SPA routing: serve index.html
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	} else {
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Condo Repair Tracker</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Condo Repair Tracker API</h1>
<p>The frontend is not built yet. Build the client and point <code>server.static_dir</code> at it.</p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/units">/api/units</a> - List units</li>
<li><a href="/api/analysis/costs">/api/analysis/costs</a> - Cost summary</li>
<li><a href="/api/databases">/api/databases</a> - Session databases</li>
<li><a href="/healthz">/healthz</a> - Health</li>
</ul>
</body>
</html>`))
		})
	}

	return r
}

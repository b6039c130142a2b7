package internal

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"inshokuten-api/internal/config"
	"inshokuten-api/internal/db"
	"inshokuten-api/internal/events"
	"inshokuten-api/internal/handlers"
	"inshokuten-api/internal/images"
	"inshokuten-api/internal/store"
)

//go:embed openapi
var openapiFS embed.FS

type Server struct {
	DB        *db.DB
	Store     *store.ItemStore
	Images    images.Store
	Publisher events.Publisher
	Router    *chi.Mux
	Metrics   *Metrics

	cfg    *config.Config
	logger zerolog.Logger
}

// NewServer wires the item API over an open database, an image store and an
// event publisher. The server owns all three and releases them in Close.
func NewServer(cfg *config.Config, d *db.DB, imgs images.Store, pub events.Publisher, logger zerolog.Logger) (*Server, error) {
	if pub == nil {
		pub = events.Noop{}
	}

	tmpl, err := loadIndexTemplate()
	if err != nil {
		return nil, err
	}

	s := &Server{
		DB:        d,
		Store:     store.NewItemStore(d, cfg.TableName),
		Images:    imgs,
		Publisher: pub,
		Router:    chi.NewRouter(),
		Metrics:   NewMetrics(),
		cfg:       cfg,
		logger:    logger,
	}

	s.Router.Use(middleware.RequestID)
	s.Router.Use(requestLogger(logger)...)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	if cfg.EnableMetrics {
		s.Router.Use(s.Metrics.Middleware())
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	s.Router.Get("/dbping", s.dbPing)
	s.mountDocs(s.Router)

	s.mountItemRoutes(s.Router)
	s.Router.Method(http.MethodGet, "/images/{filename}", images.Handler(s.Images))
	s.mountUI(s.Router, tmpl)

	return s, nil
}

// mountItemRoutes mounts the item API under /api.
func (s *Server) mountItemRoutes(r chi.Router) {
	base := "/api/" + s.cfg.TableName

	r.Get(base, s.listItems)
	r.Post(base, s.createItem)
	r.Put(base+"/{id}", s.updateItem)
	r.Delete(base+"/{id}", s.deleteItem)
	r.Post("/api/upload", s.uploadImage)

	imports := handlers.NewImportsHandler(&importedItems{s: s})
	r.Post(base+"/import", imports.UploadExcel)
}

func (s *Server) dbPing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	if _, err := w.Write([]byte("db: ok")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Close releases the publisher, the image store and the database.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if s.Publisher != nil {
		errs = append(errs, s.Publisher.Close())
	}
	if s.Images != nil {
		errs = append(errs, s.Images.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}

// publish announces a change. Failures are logged only.
func (s *Server) publish(ctx context.Context, e events.Event) {
	if err := s.Publisher.Publish(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("event", e.Type).Str("item_id", e.ItemID).Msg("publishing event failed")
	}
}

// mountDocs serves the OpenAPI spec and Swagger UI
func (s *Server) mountDocs(mux *chi.Mux) {
	if !s.cfg.EnableSwagger {
		return
	}

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		data, err := openapiFS.ReadFile("openapi/openapi.yaml")
		if err != nil {
			http.Error(w, "Failed to read OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		if _, err := w.Write(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		w.Write([]byte(`<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Inshokuten Inventory API - Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
    <style>
        body { margin: 0; background: #f7f7f7; }
        .swagger-ui .topbar { display: none; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: '/openapi.yaml',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis],
                tryItOutEnabled: true
            });
        };
    </script>
</body>
</html>`))
	})
}

// Package server assembles the HTTP API from the feature handlers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/prekclip/server/internal/config"
	"github.com/prekclip/server/internal/notification"
	"github.com/prekclip/server/internal/post"
	"github.com/prekclip/server/internal/user"
	mw "github.com/prekclip/server/pkg/middleware"
)

// Deps holds everything the router wires together
type Deps struct {
	AuthMode            string
	UploadDir           string
	Tokens              mw.TokenValidator
	UserHandler         *user.Handler
	PostHandler         *post.Handler
	NotificationHandler *notification.Handler
	Logger              *zap.Logger
}

// NewRouter builds the API router
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(mw.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	if d.UploadDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.UploadDir)))
		r.Get("/uploads/*", fs.ServeHTTP)
	}

	r.Mount("/auth", d.UserHandler.AuthRoutes())

	// Public reads; a token is honoured when present
	r.Group(func(r chi.Router) {
		r.Use(mw.OptionalAuth(d.Tokens))
		r.Mount("/posts", d.PostHandler.Routes())
		r.Mount("/users", d.UserHandler.Routes())
	})

	// Actions on behalf of a user
	r.Group(func(r chi.Router) {
		if d.AuthMode == config.AuthModeTrust {
			r.Use(mw.OptionalAuth(d.Tokens))
		} else {
			r.Use(mw.RequireAuth(d.Tokens))
		}
		d.PostHandler.ProtectedRoutes(r)
		d.UserHandler.ProtectedRoutes(r)
		r.Mount("/notifications", d.NotificationHandler.Routes())
	})

	return r
}

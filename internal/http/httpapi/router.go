package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"renderspace/internal/http/handlers"
	"renderspace/internal/middleware"
)

// RouterOptions carries the router's cross-cutting configuration.
type RouterOptions struct {
	JWTSecret   string
	CORSOrigins []string
	StaticDir   string
	Logger      zerolog.Logger
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/healthz", app.Health)

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Route("/renders", func(r chi.Router) {
			r.Post("/", app.CreateRender)
			r.Post("/place-collage", app.PlaceCollage)
			r.Get("/", app.ListRenders)
			r.Get("/active", app.ActiveRender)
			r.Get("/events", app.Events)
			r.Get("/{id}", app.RenderStatus)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Get("/", app.CreditsSummary)
			r.Post("/purchase", app.PurchaseCredits)
		})
	})

	return r
}

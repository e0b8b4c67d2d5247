package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xjonsson/kin-api-server/internal/auth"
	"github.com/xjonsson/kin-api-server/internal/config"
	"github.com/xjonsson/kin-api-server/internal/metrics"
	"github.com/xjonsson/kin-api-server/internal/model"
	"github.com/xjonsson/kin-api-server/internal/providers"
	"github.com/xjonsson/kin-api-server/internal/source"
	"github.com/xjonsson/kin-api-server/internal/store"
)

// API owns the HTTP surface and its dependencies.
type API struct {
	cfg      *config.Config
	st       *store.Store
	svc      *source.Service
	reg      *providers.Registry
	secrets  providers.Secrets
	sessions *auth.Sessions
	promReg  *prometheus.Registry
	limiter  *rateLimiter
	log      *slog.Logger
}

func New(cfg *config.Config, st *store.Store, svc *source.Service, reg *providers.Registry, secrets providers.Secrets, sessions *auth.Sessions, promReg *prometheus.Registry, log *slog.Logger) *API {
	return &API{
		cfg:      cfg,
		st:       st,
		svc:      svc,
		reg:      reg,
		secrets:  secrets,
		sessions: sessions,
		promReg:  promReg,
		limiter:  newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		log:      log,
	}
}

// Close stops background goroutines owned by the API.
func (a *API) Close() { a.limiter.Stop() }

// Router builds the full route tree. Connection routes sit outside
// ensureLoggedIn so anonymous users can log in; everything under /1.0
// requires a session.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, a.log, "", model.NewRouteNotFoundError())
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(a.promReg))

	r.Route("/connect/{provider}", func(r chi.Router) {
		r.Use(a.limiter.middleware)
		r.Get("/", a.connectRedirect)
		r.Post("/", a.connectToken)
	})

	r.Route("/1.0", func(r chi.Router) {
		r.Use(a.ensureLoggedIn)
		r.Use(a.limiter.middleware)

		r.Get("/user", a.getUser)
		r.Patch("/user", a.patchUser)

		r.Get("/sources", a.listSources)
		r.Get("/sources/{source_id}/layers", a.listSourceLayers)
		r.Delete("/sources/{source_id}", a.deleteSource)

		r.Patch("/layers/{layer_id}", a.patchLayer)
	})

	return r
}

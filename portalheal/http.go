package portalheal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/idgen"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/kit"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/catalog"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/probe"
)

var requestIDs = idgen.Prefixed("req_", idgen.UUIDv7())

// NewHandler returns the diagnostics API over e. /metrics is served only
// when gatherer is non-nil.
func NewHandler(e *Engine, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(headToGet)
	r.Use(apiHeaders)
	r.Use(requestLog(e.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ready": e.Ready()})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, e.Status())
	})

	r.Get("/context", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, e.ContextInfo())
	})

	r.Get("/selectors/{role}", func(w http.ResponseWriter, r *http.Request) {
		role, ok := catalog.ParseRole(chi.URLParam(r, "role"))
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown role %q", chi.URLParam(r, "role")))
			return
		}
		if !e.Ready() {
			writeError(w, http.StatusServiceUnavailable, ErrNotReady)
			return
		}
		sel, ok := e.Selector(role)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("role %s is not resolved", role))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"role": string(role), "selector": sel})
	})

	r.Get("/flags", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, e.ContextInfo().Flags)
	})

	r.Get("/flags/{name}", func(w http.ResponseWriter, r *http.Request) {
		name, err := probe.ParseName(chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		v, ok := e.LayoutFlag(name)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("flag %s not computed", name))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": v})
	})

	r.Post("/flags/refresh", func(w http.ResponseWriter, _ *http.Request) {
		flags, err := e.RefreshFlags()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, flags)
	})

	r.Post("/probes/{name}/revalidate", func(w http.ResponseWriter, r *http.Request) {
		name, err := probe.ParseName(chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !e.Ready() {
			writeError(w, http.StatusServiceUnavailable, ErrNotReady)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": e.RevalidateValue(name)})
	})

	r.Post("/reapply", func(w http.ResponseWriter, _ *http.Request) {
		if !e.Ready() {
			writeError(w, http.StatusServiceUnavailable, ErrNotReady)
			return
		}
		e.ForceReapply()
		writeJSON(w, http.StatusAccepted, e.Status())
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// headToGet lets GET routes answer HEAD probes from load balancers.
func headToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

func apiHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// requestLog tags each request with an ID and logs it on completion.
func requestLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestIDs()
			w.Header().Set("X-Request-ID", id)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(kit.WithRequestID(r.Context(), id)))
			logger.Debug("portalheal: request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

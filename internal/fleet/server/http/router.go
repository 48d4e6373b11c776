package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

const headerRequestID = "X-Request-ID"

type handler struct {
	svc *service.Service
	rec Reconciler
}

// NewHandler returns the router serving the gateway API, health probes and
// metrics.
func NewHandler(svc *service.Service, rec Reconciler) http.Handler {
	h := &handler{svc: svc, rec: rec}

	r := mux.NewRouter()
	r.Use(withRequestLogger)

	r.HandleFunc("/tasks", h.createTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks", h.listTasks).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", h.getTask).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", h.deleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/execute-sequence", h.execute).Methods(http.MethodPost)

	r.HandleFunc("/task-instances", h.listInstances).Methods(http.MethodGet)
	r.HandleFunc("/task-instances/{id}/status", h.queryStatus).Methods(http.MethodGet)
	r.HandleFunc("/task-instances/{id}/{op:pause|resume|cancel|stop}", h.command).Methods(http.MethodPost)

	r.HandleFunc("/robots", h.listRobots).Methods(http.MethodGet)
	r.HandleFunc("/reconcile", h.reconcile).Methods(http.MethodPost)

	live := &healthz.Handler{Checks: map[string]healthz.Checker{"ping": healthz.Ping}}
	ready := &healthz.Handler{Checks: map[string]healthz.Checker{
		"ping":  healthz.Ping,
		"store": func(req *http.Request) error { return svc.Ready(req.Context()) },
	}}
	r.PathPrefix("/healthz").Handler(http.StripPrefix("/healthz", live))
	r.PathPrefix("/readyz").Handler(http.StripPrefix("/readyz", ready))
	r.Handle("/metrics", promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{
		ErrorLog: promErrorLog{},
	}))

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// withRequestLogger tags the request context with a logger carrying the
// request id.
func withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		logger := log.WithName("http").WithValues("requestID", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(log.NewContext(r.Context(), logger)))
	})
}

type promErrorLog struct{}

func (promErrorLog) Println(v ...any) {
	log.Warn("Metrics handler error", "detail", v)
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/shardgate/admission"
	"github.com/IvanBrykalov/shardgate/cache"
	"github.com/IvanBrykalov/shardgate/config"
	"github.com/IvanBrykalov/shardgate/gate"
	logutil "github.com/IvanBrykalov/shardgate/internal/logging"
)

const keepAliveInterval = 15 * time.Second

type server struct {
	cfg     config.Config
	ctrl    *admission.Controller
	caches  *cache.Registry
	res     *resources
	gatherr prometheus.Gatherer
	log     logr.Logger
}

func newServer(cfg config.Config, ctrl *admission.Controller, caches *cache.Registry, res *resources, g prometheus.Gatherer, log logr.Logger) *server {
	return &server{cfg: cfg, ctrl: ctrl, caches: caches, res: res, gatherr: g, log: log.WithName("http")}
}

func (s *server) routes() http.Handler {
	stream := gate.Stream(s.ctrl, gate.WithStreamLogger(s.log))
	admit := gate.Admit(s.ctrl,
		gate.WithResolver(admission.Resolver{QueryParam: s.cfg.Session.QueryParam, Header: admission.DefaultHeader}),
		gate.WithHeavy(func(r *http.Request) bool { return r.Method == http.MethodPost }),
		gate.WithAdmitLogger(s.log),
	)

	mux := http.NewServeMux()
	mux.Handle("GET /sse", stream(http.HandlerFunc(s.handleSSE)))
	mux.Handle("/messages/", admit(http.HandlerFunc(s.handleMessage)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherr, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /debug/sessions", s.handleDebug)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	return s.withRequestID(mux)
}

// withRequestID tags every request and its logger with a request id.
func (s *server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		log := s.log.WithValues("requestID", id)
		log.V(logutil.TRACE).Info("Request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(logr.NewContext(r.Context(), log)))
	})
}

// handleSSE announces the messages endpoint, carrying the durable session
// id, then keeps the stream open until the client goes away.
func (s *server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sessionID := uuid.NewString()
	_, _ = fmt.Fprintf(w, "event: endpoint\ndata: /messages/?%s=%s\n\n", s.cfg.Session.QueryParam, sessionID)
	flusher.Flush()

	t := time.NewTicker(keepAliveInterval)
	defer t.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-t.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type toolCall struct {
	Tool   string `json:"tool"`
	Tenant string `json:"tenant"`
	User   string `json:"user"`
}

// handleMessage runs one tool call. Admission already holds a permit.
func (s *server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var call toolCall
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&call); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if call.Tenant == "" {
		writeJSONError(w, http.StatusBadRequest, "tenant is required")
		return
	}

	ctx := r.Context()
	var (
		result any
		err    error
	)
	switch call.Tool {
	case "describe_tenant":
		result, err = s.res.tenants.GetOrLoad(ctx, call.Tenant)
	case "list_grants":
		if call.User == "" {
			writeJSONError(w, http.StatusBadRequest, "user is required")
			return
		}
		result, err = s.res.grants.GetOrLoad(ctx, call.Tenant+"/"+call.User)
	case "list_tools":
		result, err = s.res.catalog.GetOrLoad(ctx, "catalog")
	default:
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown tool %q", call.Tool))
		return
	}
	if err != nil {
		if errors.Is(err, ctx.Err()) {
			return
		}
		logr.FromContextOrDiscard(ctx).Error(err, "Tool call failed", "tool", call.Tool)
		writeJSONError(w, http.StatusBadGateway, "upstream load failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

type debugView struct {
	Sessions []admission.Snapshot `json:"sessions"`
	Caches   []cacheView          `json:"caches"`
}

type cacheView struct {
	cache.Stats
	HitRatio float64 `json:"hitRatio"`
	Full     bool    `json:"full"`
}

func (s *server) handleDebug(w http.ResponseWriter, _ *http.Request) {
	view := debugView{Sessions: s.ctrl.Snapshots()}
	for _, st := range s.caches.Snapshot() {
		view.Caches = append(view.Caches, cacheView{Stats: st, HitRatio: st.HitRatio(), Full: st.Full()})
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

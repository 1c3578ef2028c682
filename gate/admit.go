package gate

import (
	"errors"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/IvanBrykalov/shardgate/admission"
	logutil "github.com/IvanBrykalov/shardgate/internal/logging"
)

// AdmitOption configures Admit.
type AdmitOption func(*admitConfig)

type admitConfig struct {
	resolver admission.Resolver
	heavy    func(*http.Request) bool
	logger   logr.Logger
}

// WithResolver overrides admission.DefaultResolver.
func WithResolver(res admission.Resolver) AdmitOption {
	return func(c *admitConfig) { c.resolver = res }
}

// WithHeavy restricts admission control to requests for which fn returns
// true. By default every request is gated.
func WithHeavy(fn func(*http.Request) bool) AdmitOption {
	return func(c *admitConfig) { c.heavy = fn }
}

// WithAdmitLogger sets the logger. If not provided, logs are discarded.
func WithAdmitLogger(l logr.Logger) AdmitOption {
	return func(c *admitConfig) { c.logger = l }
}

// Admit returns middleware that takes a session permit around next.
//
// The permit is released when next returns, panics included. Rejected
// requests get 429 with Retry-After; requests whose session cannot be
// resolved get 400.
func Admit(ctrl *admission.Controller, opts ...AdmitOption) func(http.Handler) http.Handler {
	cfg := admitConfig{resolver: admission.DefaultResolver, logger: logr.Discard()}
	for _, o := range opts {
		o(&cfg)
	}
	log := cfg.logger.WithName("admit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.heavy != nil && !cfg.heavy(r) {
				next.ServeHTTP(w, r)
				return
			}

			id, src := cfg.resolver.Resolve(r)
			reqLog := log.WithValues("identity", id, "source", string(src), "path", r.URL.Path)
			ctx := logr.NewContext(r.Context(), reqLog)

			permit, err := ctrl.TryAdmit(ctx, id)
			if err != nil {
				var rej *admission.RejectedError
				switch {
				case errors.As(err, &rej):
					reqLog.V(logutil.VERBOSE).Info("Request rejected", "limit", rej.Limit, "retryAfter", rej.RetryAfter)
					writeRejection(w, rej)
				case errors.Is(err, admission.ErrUnknownSession):
					reqLog.V(logutil.DEBUG).Info("Request without session identity")
					writeJSONError(w, http.StatusBadRequest, "missing session identity")
				default:
					reqLog.Error(err, "Admission failed")
					writeJSONError(w, http.StatusInternalServerError, "internal server error")
				}
				return
			}
			defer permit.Release()

			reqLog.V(logutil.TRACE).Info("Request admitted")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

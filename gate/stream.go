package gate

import (
	"net/http"
	"regexp"

	"github.com/elnormous/contenttype"
	"github.com/go-logr/logr"

	"github.com/IvanBrykalov/shardgate/admission"
	logutil "github.com/IvanBrykalov/shardgate/internal/logging"
)

// StreamOption configures Stream.
type StreamOption func(*streamConfig)

type streamConfig struct {
	pattern *regexp.Regexp
	logger  logr.Logger
}

// WithIdentityPattern sets the pattern that reveals the durable identity in
// the stream's output. It must have one capture group.
func WithIdentityPattern(re *regexp.Regexp) StreamOption {
	return func(c *streamConfig) { c.pattern = re }
}

// WithStreamLogger sets the logger. If not provided, logs are discarded.
func WithStreamLogger(l logr.Logger) StreamOption {
	return func(c *streamConfig) { c.logger = l }
}

// Stream returns middleware for the long-lived stream endpoint.
//
// Requests that do not accept text/event-stream pass through untouched.
// For a stream, a provisional session is opened and bound to the request
// context, every byte written to the client is fed to an
// admission.Watcher, and the session (under whatever identity it holds by
// then) is closed when the handler returns.
func Stream(ctrl *admission.Controller, opts ...StreamOption) func(http.Handler) http.Handler {
	cfg := streamConfig{logger: logr.Discard()}
	for _, o := range opts {
		o(&cfg)
	}
	log := cfg.logger.WithName("stream")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamTypes); err != nil {
				next.ServeHTTP(w, r)
				return
			}

			id, _ := ctrl.OpenProvisional()
			b := admission.NewBinding(id)
			watcher := admission.NewWatcher(ctrl, b, admission.WatcherOptions{
				Pattern: cfg.pattern,
				Logger:  log,
			})
			defer func() {
				watcher.Flush()
				final := b.Identity()
				ctrl.Close(final)
				log.V(logutil.VERBOSE).Info("Stream closed", "identity", final, "provisional", id)
			}()

			log.V(logutil.VERBOSE).Info("Stream opened", "provisional", id, "remoteAddr", r.RemoteAddr)
			ctx := admission.WithBinding(r.Context(), b)
			ctx = logr.NewContext(ctx, log.WithValues("provisional", id))
			next.ServeHTTP(&streamWriter{ResponseWriter: w, watcher: watcher}, r.WithContext(ctx))
		})
	}
}

// streamWriter tees the response body into the watcher.
type streamWriter struct {
	http.ResponseWriter
	watcher *admission.Watcher
}

func (s *streamWriter) Write(p []byte) (int, error) {
	s.watcher.Observe(p)
	return s.ResponseWriter.Write(p)
}

// Flush keeps SSE working through the wrapper.
func (s *streamWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *streamWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

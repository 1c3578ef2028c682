package admission

import (
	"context"
	"net/http"
	"sync/atomic"
)

const (
	// DefaultQueryParam carries the session identity on follow-up requests.
	DefaultQueryParam = "session_id"
	// DefaultHeader is the streamable-HTTP session header.
	DefaultHeader = "Mcp-Session-Id"
)

// Source names the tier an identity was resolved from.
type Source string

const (
	// SourceNone: no tier produced an identity.
	SourceNone Source = "none"
	// SourceContext: the stream's Binding in the request context.
	SourceContext Source = "context"
	// SourceQuery: the Resolver's URL query parameter.
	SourceQuery Source = "query"
	// SourceHeader: the Resolver's header, Mcp-Session-Id by default.
	SourceHeader Source = "header"
)

// Binding holds the current identity of a stream. It is stored in the
// stream's context by pointer so that a migration is visible to everything
// already holding that context.
type Binding struct {
	id atomic.Pointer[string]
}

// NewBinding returns a Binding set to identity.
func NewBinding(identity string) *Binding {
	b := &Binding{}
	b.Set(identity)
	return b
}

// Identity returns the current identity.
func (b *Binding) Identity() string {
	if p := b.id.Load(); p != nil {
		return *p
	}
	return ""
}

// Set replaces the identity.
func (b *Binding) Set(identity string) { b.id.Store(&identity) }

type bindingKey struct{}

// WithBinding returns a child context carrying b.
func WithBinding(ctx context.Context, b *Binding) context.Context {
	return context.WithValue(ctx, bindingKey{}, b)
}

// IdentityFromContext returns the identity bound to ctx, if any.
//
// Only work that runs under the stream's own context sees it. Requests
// served on their own goroutines, which is every follow-up HTTP request, do
// not, so this must never be the only lookup.
func IdentityFromContext(ctx context.Context) (string, bool) {
	b, ok := ctx.Value(bindingKey{}).(*Binding)
	if !ok {
		return "", false
	}
	id := b.Identity()
	return id, id != ""
}

// Resolver finds the session identity of an HTTP request.
type Resolver struct {
	// QueryParam is checked first among the explicit sources; "" disables it.
	QueryParam string
	// Header is checked after QueryParam; "" disables it.
	Header string
}

// DefaultResolver checks the context, then ?session_id=, then Mcp-Session-Id.
var DefaultResolver = Resolver{QueryParam: DefaultQueryParam, Header: DefaultHeader}

// Resolve returns the identity for r and where it came from. The context
// is consulted first as a shortcut; the request's own addressing data is
// the path that works for independently scheduled requests.
func (res Resolver) Resolve(r *http.Request) (string, Source) {
	if id, ok := IdentityFromContext(r.Context()); ok {
		return id, SourceContext
	}
	if res.QueryParam != "" {
		if id := r.URL.Query().Get(res.QueryParam); id != "" {
			return id, SourceQuery
		}
	}
	if res.Header != "" {
		if id := r.Header.Get(res.Header); id != "" {
			return id, SourceHeader
		}
	}
	return "", SourceNone
}

// Package gate wires admission control into net/http.
//
// Stream wraps the long-lived stream endpoint: it opens a provisional
// session, watches the response for the durable session identity, and
// closes the session when the client goes away. Admit wraps the endpoints
// that do expensive work: it resolves the caller's session from the
// request itself and answers 429 Too Many Requests with a Retry-After
// header when the session is at its limit.
package gate

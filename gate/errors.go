package gate

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/IvanBrykalov/shardgate/admission"
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
	eventStreamTypes     = []contenttype.MediaType{eventStreamMediaType}
)

// writeJSONError emits a transport-level error body:
// {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// writeRejection answers an over-limit request with 429 and Retry-After.
func writeRejection(w http.ResponseWriter, rej *admission.RejectedError) {
	secs := retryAfterSeconds(rej.RetryAfter)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSONError(w, http.StatusTooManyRequests, fmt.Sprintf(
		"this session is limited to %d concurrent requests and that limit is reached; retry in %d seconds",
		rej.Limit, secs))
}

// retryAfterSeconds rounds up to whole seconds, minimum 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

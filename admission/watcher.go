package admission

import (
	"regexp"
	"sync"

	"github.com/go-logr/logr"

	logutil "github.com/IvanBrykalov/shardgate/internal/logging"
)

// DefaultIdentityPattern matches the endpoint announcement a stream sends
// to its client, e.g. "data: /messages/?session_id=9f1c...". The first
// capture group is the durable identity.
var DefaultIdentityPattern = regexp.MustCompile(`session_id=([A-Za-z0-9_-]+)`)

// defaultMaxTail bounds the bytes carried between writes so a token split
// across two writes is still found.
const defaultMaxTail = 256

// WatcherOptions configures a Watcher.
//
// A match that ends exactly at the end of the bytes seen so far may still be
// growing, so it is held back until more output arrives or Flush is called.
type WatcherOptions struct {
	// Pattern must have one capture group; nil => DefaultIdentityPattern.
	Pattern *regexp.Regexp
	// MaxTail <= 0 => 256 bytes.
	MaxTail int
	Logger  logr.Logger
}

// Watcher observes a stream's outgoing bytes and migrates the stream's
// record once the durable identity shows up. It migrates at most once:
// tokens seen after that are stream content, not the stream's identity.
type Watcher struct {
	ctrl        *Controller
	binding     *Binding
	provisional string
	pattern     *regexp.Regexp
	maxTail     int
	log         logr.Logger

	mu   sync.Mutex
	tail []byte
}

// NewWatcher returns a Watcher for the stream bound to b.
func NewWatcher(ctrl *Controller, b *Binding, opt WatcherOptions) *Watcher {
	if opt.Pattern == nil {
		opt.Pattern = DefaultIdentityPattern
	}
	if opt.MaxTail <= 0 {
		opt.MaxTail = defaultMaxTail
	}
	log := opt.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Watcher{
		ctrl:        ctrl,
		binding:     b,
		provisional: b.Identity(),
		pattern:     opt.Pattern,
		maxTail:     opt.MaxTail,
		log:         log,
	}
}

// Identity returns the stream's current identity.
func (w *Watcher) Identity() string { return w.binding.Identity() }

// Write feeds outgoing bytes to the watcher. It never fails, so it can sit
// behind an io.MultiWriter or a ResponseWriter wrapper.
func (w *Watcher) Write(p []byte) (int, error) {
	w.Observe(p)
	return len(p), nil
}

// Observe scans p (plus the carried tail) for the identity pattern.
// A match touching the end of the buffer may be cut short, so it is held
// back until more bytes arrive or Flush is called. Once the stream has
// migrated, output is no longer scanned.
func (w *Watcher) Observe(p []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.migrated() {
		w.tail = nil
		return
	}

	buf := append(w.tail, p...)
	consumed := 0
	for _, m := range w.pattern.FindAllSubmatchIndex(buf, -1) {
		if m[1] == len(buf) {
			break
		}
		consumed = m[1]
		if len(m) < 4 || m[2] < 0 {
			continue
		}
		w.migrate(string(buf[m[2]:m[3]]))
	}

	rest := buf[consumed:]
	if len(rest) > w.maxTail {
		rest = rest[len(rest)-w.maxTail:]
	}
	w.tail = append(w.tail[:0:0], rest...)
}

// Flush acts on a match held back at the end of the output. Call it once
// the stream has written its last bytes.
func (w *Watcher) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, m := range w.pattern.FindAllSubmatchIndex(w.tail, -1) {
		if len(m) >= 4 && m[2] >= 0 {
			w.migrate(string(w.tail[m[2]:m[3]]))
		}
	}
	w.tail = nil
}

func (w *Watcher) migrated() bool { return w.binding.Identity() != w.provisional }

func (w *Watcher) migrate(durable string) {
	if w.migrated() {
		return
	}
	current := w.provisional
	if durable == current {
		return
	}
	if _, err := w.ctrl.Migrate(current, durable); err != nil {
		// The provisional record stays usable; the stream is unaffected.
		w.log.V(logutil.DEBUG).Info("Session migration skipped", "from", current, "to", durable, "error", err.Error())
		return
	}
	w.binding.Set(durable)
}

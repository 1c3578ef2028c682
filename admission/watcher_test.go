package admission

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"
)

func newWatchedStream(t *testing.T, c *Controller, opt WatcherOptions) (*Watcher, *Binding) {
	t.Helper()
	id, _ := c.OpenProvisional()
	b := NewBinding(id)
	opt.Logger = testr.New(t)
	return NewWatcher(c, b, opt), b
}

func TestWatcher_MigratesOnEndpointEvent(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, 2)
	w, b := newWatchedStream(t, c, WatcherOptions{})
	prov := b.Identity()

	_, err := io.WriteString(w, "event: endpoint\r\ndata: /messages/?session_id=abc123DEF\r\n\r\n")
	require.NoError(t, err)

	require.Equal(t, "abc123DEF", w.Identity())
	require.Equal(t, 1, c.Len())
	snap, ok := c.Lookup("abc123DEF")
	require.True(t, ok)
	require.Equal(t, prov, snap.MigratedFrom)

	// The stream's context follows the migration.
	ctx := WithBinding(context.Background(), b)
	id, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "abc123DEF", id)
}

// A token split across writes is only acted on once it is complete.
func TestWatcher_TokenSplitAcrossWrites(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, 2)
	w, b := newWatchedStream(t, c, WatcherOptions{})
	prov := b.Identity()

	chunks := []string{"data: /messages/?sess", "ion_id=0123", "4567", "89ab\n"}
	for i, chunk := range chunks {
		w.Observe([]byte(chunk))
		if i < len(chunks)-1 {
			require.Equal(t, prov, w.Identity(), "migrated early after chunk %d", i)
		}
	}
	require.Equal(t, "0123456789ab", w.Identity())
	_, ok := c.Lookup("0123456789ab")
	require.True(t, ok)
	require.Equal(t, 1, c.Len())
}

// Repeated announcements of the same token keep exactly one record.
func TestWatcher_RepeatedTokenIsIdempotent(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, 2)
	w, _ := newWatchedStream(t, c, WatcherOptions{})

	for i := 0; i < 5; i++ {
		w.Observe([]byte("data: /messages/?session_id=tok\n"))
		w.Observe([]byte(fmt.Sprintf("event: message\ndata: {\"n\":%d}\n\n", i)))
	}
	require.Equal(t, 1, c.Len())
	_, ok := c.Lookup("tok")
	require.True(t, ok)
}

// Output that never carries the pattern leaves the provisional record in
// place and never fails the write.
func TestWatcher_NoMatchKeepsProvisional(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, 2)
	w, b := newWatchedStream(t, c, WatcherOptions{MaxTail: 16})
	prov := b.Identity()

	for i := 0; i < 100; i++ {
		n, err := w.Write([]byte("event: ping\ndata: {}\n\n"))
		require.NoError(t, err)
		require.Equal(t, 22, n)
	}
	require.Equal(t, prov, w.Identity())
	snap, ok := c.Lookup(prov)
	require.True(t, ok)
	require.Equal(t, Provisional, snap.State)
	require.LessOrEqual(t, len(w.tail), 16)
}

// If the stream's record was reaped, the announcement cannot migrate it;
// the watcher logs and carries on.
func TestWatcher_MigrationFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, 2)
	w, b := newWatchedStream(t, c, WatcherOptions{})
	prov := b.Identity()
	c.Close(prov)

	n, err := w.Write([]byte("session_id=late\n"))
	require.NoError(t, err)
	require.Equal(t, 16, n)
	require.Equal(t, prov, w.Identity())
	require.Zero(t, c.Len())
}

func TestWatcher_CustomPattern(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, 2)
	w, _ := newWatchedStream(t, c, WatcherOptions{
		Pattern: regexp.MustCompile(`"sessionId":"([^"]+)"`),
	})

	w.Observe([]byte(`{"sessionId":"s-42","ok":true}`))
	require.Equal(t, "s-42", w.Identity())
}

// Once a stream has its durable identity, other session tokens in its
// output are content. They must not pull another live session's record
// over to this stream.
func TestWatcher_IgnoresOtherSessionTokensAfterMigration(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, 2)
	wb, bb := newWatchedStream(t, c, WatcherOptions{})
	provB := bb.Identity()
	wb.Observe([]byte("data: /messages/?session_id=bbb\n\n"))
	require.Equal(t, "bbb", wb.Identity())
	held, err := c.TryAdmit(context.Background(), "bbb")
	require.NoError(t, err)
	defer held.Release()

	wa, _ := newWatchedStream(t, c, WatcherOptions{})
	wa.Observe([]byte("data: /messages/?session_id=aaa\n\n"))
	wa.Observe([]byte("data: {\"echo\":\"see /messages/?session_id=bbb\"}\n\n"))
	wa.Flush()

	require.Equal(t, "aaa", wa.Identity())
	require.Equal(t, 2, c.Len())
	snapA, ok := c.Lookup("aaa")
	require.True(t, ok)
	require.Equal(t, Migrated, snapA.State)
	snapB, ok := c.Lookup("bbb")
	require.True(t, ok)
	require.Equal(t, provB, snapB.MigratedFrom)
	require.Equal(t, 1, snapB.InFlight)

	// B disconnecting leaves A's record alone.
	require.True(t, c.Close("bbb"))
	require.Equal(t, 1, c.Len())
	_, ok = c.Lookup("aaa")
	require.True(t, ok)
}

// A stream whose last write ends with the token migrates on Flush.
func TestWatcher_FlushActsOnHeldBackToken(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, 2)
	w, b := newWatchedStream(t, c, WatcherOptions{})
	prov := b.Identity()

	w.Observe([]byte("endpoint: /messages/?session_id=last"))
	require.Equal(t, prov, w.Identity(), "token at the end may still be growing")

	w.Flush()
	require.Equal(t, "last", w.Identity())
	_, ok := c.Lookup("last")
	require.True(t, ok)

	w.Flush()
	require.Equal(t, 1, c.Len())
}

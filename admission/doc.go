// Package admission bounds the number of concurrent expensive operations a
// single logical client session may run.
//
// A long-lived stream connection opens a provisional record. Request
// handlers, which run as independent goroutines with no link to the
// stream's context, call TryAdmit with the session identity they resolved
// from their own request (see Resolver). When the stream reveals its
// durable identity in its outgoing data, a Watcher re-keys the record in
// place, so permits held across the switch stay accounted for. A Reaper
// drops records whose owner vanished without a clean disconnect.
//
// Admission never blocks: a session without a free permit is rejected with
// a retry hint.
package admission

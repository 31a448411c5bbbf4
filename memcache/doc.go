// Package memcache is an asynchronous memcached client.
//
// The client maintains one connection per server.  Each connection owns a
// fifo queue drained by a dedicated goroutine with a single request on the
// wire at a time, so replies never need correlation and a request caught on
// a broken socket can be replayed safely after a reconnect.  Keys are
// distributed across servers by a pluggable Selector; values pass through a
// pluggable Serializer and Compressor on the way in and out.
//
// Every command comes in a synchronous and an Async form.  The Async form
// takes a completion callback which runs on the connection's goroutine;
// callbacks must not issue synchronous calls, which the client detects and
// fails instead of deadlocking.
//
// Failures degrade to cache misses.  A dead server completes its queued
// requests with not-found or not-stored defaults rather than blocking the
// application.
package memcache

package memcache

import (
	"io"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/edwingeng/deque/v2"

	"github.com/mdorman/memclient/errors"
)

// engineGoroutines holds the goroutine ids of running connection loops.
// Completion hooks run on these goroutines, so a synchronous wait issued
// from inside a hook would deadlock the connection; the client checks this
// registry and rejects such waits instead.
var engineGoroutines sync.Map

func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]

	// The dump starts with "goroutine <id> [".
	s := strings.TrimPrefix(string(buf), "goroutine ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func onEngineGoroutine() bool {
	_, ok := engineGoroutines.Load(goroutineID())
	return ok
}

// replayable reports whether a round trip failed in a way that implies the
// server closed an idle socket underneath us.  The request was likely never
// seen, so it is safe to reconnect and send it again.
func replayable(err error) bool {
	switch errors.RootError(err) {
	case syscall.EPIPE, syscall.ECONNRESET, io.EOF, io.ErrUnexpectedEOF:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	if netErr, ok := errors.RootError(err).(net.Error); ok && netErr.Timeout() {
		return true
	}
	return false
}

// connection owns all traffic to one server address.  Requests enter a fifo
// queue and a dedicated goroutine drains them one at a time: dial lazily,
// write the request, read the reply, complete.  At most one request is ever
// on the wire, so replies need no correlation and a replay after a broken
// socket can never duplicate a completed command.
type connection struct {
	addr  string
	opts  *Options
	proto Protocol

	mutex sync.Mutex
	cond  *sync.Cond

	queue    *deque.Deque[*Request]
	inFlight *Request

	// Owned by the run goroutine between connect and teardown; the pointer
	// is guarded so disconnect can close the socket from outside.
	ch *channel

	consecutiveTimeouts int
	stopped             bool
}

func newConnection(addr string, opts *Options, proto Protocol) *connection {
	c := &connection{
		addr:  addr,
		opts:  opts,
		proto: proto,
		queue: deque.NewDeque[*Request](),
	}
	c.cond = sync.NewCond(&c.mutex)
	go c.run()
	return c
}

// enqueue appends a request to the connection's queue.  Completion order is
// queue order.
func (c *connection) enqueue(req *Request) {
	c.mutex.Lock()
	if c.stopped {
		c.mutex.Unlock()
		req.failWith(errors.Newf("Connection to %s is shut down", c.addr))
		return
	}
	c.queue.PushBack(req)
	c.mutex.Unlock()
	c.cond.Signal()
}

// disconnect closes the socket and cancels all pending requests with their
// defaults.  The connection stays usable; the next enqueue redials.
func (c *connection) disconnect() {
	c.mutex.Lock()
	ch := c.ch
	c.ch = nil
	c.cancelPendingLocked()
	c.mutex.Unlock()

	if ch != nil {
		ch.conn.Close()
	}
}

// shutdown is a permanent disconnect: pending requests are cancelled and
// the run goroutine exits.  Used when a server is dropped from the set.
func (c *connection) shutdown() {
	c.mutex.Lock()
	c.stopped = true
	ch := c.ch
	c.ch = nil
	c.cancelPendingLocked()
	c.mutex.Unlock()

	if ch != nil {
		ch.conn.Close()
	}
	c.cond.Broadcast()
}

func (c *connection) cancelPendingLocked() {
	if c.inFlight != nil {
		c.inFlight.completeDefault()
		c.inFlight = nil
	}
	for c.queue.Len() > 0 {
		c.queue.PopFront().completeDefault()
	}
}

func (c *connection) run() {
	id := goroutineID()
	engineGoroutines.Store(id, c.addr)
	defer engineGoroutines.Delete(id)

	for {
		req := c.next()
		if req == nil {
			return
		}
		c.process(req)
	}
}

// next blocks until a request is queued, moves it to the in flight slot and
// returns it.  Returns nil on shutdown.
func (c *connection) next() *Request {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for {
		if c.stopped {
			return nil
		}
		if c.queue.Len() > 0 {
			req := c.queue.PopFront()
			c.inFlight = req
			return req
		}
		c.cond.Wait()
	}
}

func (c *connection) process(req *Request) {
	for {
		ch, err := c.ensureConnected()
		if err != nil {
			c.failPending(err)
			return
		}

		c.setDeadlines(ch)
		err = c.proto.RoundTrip(ch, req)
		if err == nil {
			if !ch.validState {
				c.teardown(ch)
			}
			c.finish(req)
			return
		}

		c.teardown(ch)
		if replayable(err) {
			// The server dropped an idle socket.  Redial and resend.
			continue
		}
		c.failPending(err)
		return
	}
}

// ensureConnected returns the live channel, dialing if there is none.
// Timed out dials are retried silently a bounded number of times since a
// busy server sheds connections under load; any other dial error is fatal
// for the queue.
func (c *connection) ensureConnected() (*channel, error) {
	c.mutex.Lock()
	ch := c.ch
	c.mutex.Unlock()
	if ch != nil {
		return ch, nil
	}

	for {
		conn, err := c.opts.Dial("tcp", c.addr, c.opts.ConnectTimeout)
		if err != nil {
			if isTimeout(err) {
				c.consecutiveTimeouts++
				if c.consecutiveTimeouts <= maxConsecutiveTimeouts {
					continue
				}
			}
			c.consecutiveTimeouts = 0
			return nil, errors.Wrapf(
				err, "Failed to connect to %s", c.addr)
		}

		if perr := c.proto.Prepare(conn); perr != nil {
			conn.Close()
			c.consecutiveTimeouts = 0
			return nil, errors.Wrapf(
				perr, "Failed to prepare connection to %s", c.addr)
		}

		ch = newChannel(c.addr, conn)
		c.mutex.Lock()
		c.ch = ch
		c.consecutiveTimeouts = 0
		stopped := c.stopped
		c.mutex.Unlock()

		if stopped {
			conn.Close()
			return nil, errors.Newf(
				"Connection to %s is shut down", c.addr)
		}
		return ch, nil
	}
}

func (c *connection) setDeadlines(ch *channel) {
	if c.opts.ReadTimeout > 0 {
		ch.conn.SetReadDeadline(c.opts.Clock.Now().Add(c.opts.ReadTimeout))
	}
	if c.opts.WriteTimeout > 0 {
		ch.conn.SetWriteDeadline(c.opts.Clock.Now().Add(c.opts.WriteTimeout))
	}
}

func (c *connection) teardown(ch *channel) {
	ch.conn.Close()
	c.mutex.Lock()
	if c.ch == ch {
		c.ch = nil
	}
	c.mutex.Unlock()
}

func (c *connection) finish(req *Request) {
	c.mutex.Lock()
	if c.inFlight == req {
		c.inFlight = nil
	}
	c.mutex.Unlock()
}

// failPending completes the in flight request and everything queued behind
// it with their defaults, logging a single line for the whole batch.
func (c *connection) failPending(err error) {
	c.mutex.Lock()
	failed := 0
	if c.inFlight != nil {
		failed++
	}
	failed += c.queue.Len()
	c.cancelPendingLocked()
	c.mutex.Unlock()

	if failed > 0 {
		c.opts.LogInfo(
			"memcache %s: failing %d pending requests: %s",
			c.addr, failed, err)
	}
}

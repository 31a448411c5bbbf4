package memcache

import (
	"sync"

	"github.com/mdorman/memclient/sync2"
)

type command uint8

const (
	cmdGet command = iota
	cmdSet
	cmdAdd
	cmdReplace
	cmdAppend
	cmdPrepend
	cmdDelete
	cmdIncrement
	cmdDecrement
	cmdFlush
	cmdStat
	cmdVersion
)

var commandNames = map[command]string{
	cmdGet:       "get",
	cmdSet:       "set",
	cmdAdd:       "add",
	cmdReplace:   "replace",
	cmdAppend:    "append",
	cmdPrepend:   "prepend",
	cmdDelete:    "delete",
	cmdIncrement: "incr",
	cmdDecrement: "decr",
	cmdFlush:     "flush_all",
	cmdStat:      "stats",
	cmdVersion:   "version",
}

func (c command) String() string {
	return commandNames[c]
}

func (c command) isStore() bool {
	switch c {
	case cmdSet, cmdAdd, cmdReplace, cmdAppend, cmdPrepend:
		return true
	}
	return false
}

func (c command) isBroadcast() bool {
	switch c {
	case cmdFlush, cmdStat, cmdVersion:
		return true
	}
	return false
}

// Request carries one cache operation through the dispatcher, a connection
// queue and a protocol driver.  It is immutable once submitted.  The
// completion hook runs exactly once: with the protocol's response, with a
// typed error response when the request cannot be dispatched (invalid key
// or value, no server, shut down connection), or with the pre-filled
// default when the connection fails or the server answers with an error
// line.
type Request struct {
	cmd command
	key Key

	// The bytes of the key as written to the wire: namespace + key name.
	wireKey string

	// The application value for store commands; serialized and compressed
	// into payload during submission.
	rawValue interface{}

	payload    *Payload
	delta      uint64
	initial    uint64
	expiration uint32

	// Assigned by the binary driver; round-trips through the server.
	opaque uint32

	defaultResponse Response

	// Set during submission: decompress then deserialize a stored payload.
	decode func(*Payload) (*Payload, interface{}, error)

	done     func(Response)
	doneOnce sync.Once
}

// NewGetRequest builds a get for a single, possibly pre-hashed, key for use
// with Client.Do.
func NewGetRequest(key Key) *Request {
	return &Request{
		cmd:             cmdGet,
		key:             key,
		defaultResponse: NewGetResponse(key.Name, StatusKeyNotFound, 0, nil, nil),
	}
}

// NewStoreRequest builds one of the store commands (set, add, replace) for
// a possibly pre-hashed key.
func NewStoreRequest(
	cmd string,
	key Key,
	value interface{},
	expiration uint32) *Request {

	var c command
	switch cmd {
	case "set":
		c = cmdSet
	case "add":
		c = cmdAdd
	case "replace":
		c = cmdReplace
	default:
		return nil
	}
	return &Request{
		cmd:             c,
		key:             key,
		expiration:      expiration,
		rawValue:        value,
		defaultResponse: NewMutateResponse(key.Name, StatusItemNotStored),
	}
}

// NewAppendRequest builds an append of raw bytes to an existing entry.  The
// value is never serialized or compressed.
func NewAppendRequest(key Key, value []byte) *Request {
	return &Request{
		cmd:             cmdAppend,
		key:             key,
		payload:         &Payload{Data: value},
		defaultResponse: NewMutateResponse(key.Name, StatusItemNotStored),
	}
}

// NewPrependRequest builds a prepend of raw bytes to an existing entry.
// The value is never serialized or compressed.
func NewPrependRequest(key Key, value []byte) *Request {
	return &Request{
		cmd:             cmdPrepend,
		key:             key,
		payload:         &Payload{Data: value},
		defaultResponse: NewMutateResponse(key.Name, StatusItemNotStored),
	}
}

// NewCountRequest builds an increment or decrement.  An expiration of
// 0xffffffff means the counter is not seeded when the key is absent.
func NewCountRequest(
	cmd string,
	key Key,
	delta uint64,
	initial uint64,
	expiration uint32) *Request {

	var c command
	switch cmd {
	case "incr":
		c = cmdIncrement
	case "decr":
		c = cmdDecrement
	default:
		return nil
	}
	return &Request{
		cmd:             c,
		key:             key,
		delta:           delta,
		initial:         initial,
		expiration:      expiration,
		defaultResponse: NewCountResponse(key.Name, StatusKeyNotFound, 0),
	}
}

// NewDeleteRequest builds a delete for a possibly pre-hashed key.
func NewDeleteRequest(key Key) *Request {
	return &Request{
		cmd:             cmdDelete,
		key:             key,
		defaultResponse: NewMutateResponse(key.Name, StatusKeyNotFound),
	}
}

func (r *Request) hasInitial() bool {
	return r.expiration != noCreateExpiration
}

// complete records the final response and invokes the completion hook.
// Extra calls are ignored, which keeps the at-most-once guarantee across
// the failure paths.
func (r *Request) complete(resp Response) {
	r.doneOnce.Do(func() {
		if resp == nil {
			resp = r.defaultResponse
		}
		if r.done != nil {
			r.done(resp)
		}
	})
}

// completeDefault finishes the request with its pre-filled default.
func (r *Request) completeDefault() {
	r.complete(r.defaultResponse)
}

// failWith finishes the request with an error response matching its
// command's response type.
func (r *Request) failWith(err error) {
	switch r.cmd {
	case cmdGet:
		r.complete(NewGetErrorResponse(r.key.Name, err))
	case cmdIncrement, cmdDecrement:
		r.complete(NewCountErrorResponse(r.key.Name, err))
	case cmdStat:
		r.complete(NewStatErrorResponse(err))
	case cmdVersion:
		r.complete(NewVersionErrorResponse(err))
	case cmdFlush:
		r.complete(NewErrorResponse(err))
	default:
		r.complete(NewMutateErrorResponse(r.key.Name, err))
	}
}

// fanIn aggregates child completions: when the counter reaches zero the
// parent hook runs exactly once.
type fanIn struct {
	pending sync2.AtomicInt32
	done    func()
}

func newFanIn(children int, done func()) *fanIn {
	f := &fanIn{done: done}
	f.pending.Set(int32(children))
	return f
}

func (f *fanIn) childDone() {
	if f.pending.Add(-1) == 0 {
		f.done()
	}
}

package memcache

import (
	"sync"

	"github.com/mdorman/memclient/container/set"
	"github.com/mdorman/memclient/errors"
)

// Client is the full memcached command surface.  Every command has a
// synchronous form and an Async form taking a completion callback.  The
// synchronous forms must not be called from inside a completion callback;
// doing so is detected and fails with an error response (an empty map for
// GetMulti, an error for Connect) instead of deadlocking the connection
// that runs the callback.
type Client interface {
	// Get returns the entry for a key.  A missing key yields a response
	// with StatusKeyNotFound and a nil value.
	Get(key string) GetResponse
	GetAsync(key string, done func(GetResponse))

	// GetMulti fetches many keys at once.  The result map only contains
	// the keys that were found; misses and per-server failures are simply
	// absent.
	GetMulti(keys []string) map[string]GetResponse
	GetMultiAsync(keys []string, done func(map[string]GetResponse))

	Set(key string, value interface{}, expiration uint32) MutateResponse
	SetAsync(key string, value interface{}, expiration uint32,
		done func(MutateResponse))
	SetMulti(entries []*Entry) []MutateResponse
	SetMultiAsync(entries []*Entry, done func([]MutateResponse))

	// Add stores only when the key does not exist yet.
	Add(key string, value interface{}, expiration uint32) MutateResponse
	AddAsync(key string, value interface{}, expiration uint32,
		done func(MutateResponse))
	AddMulti(entries []*Entry) []MutateResponse
	AddMultiAsync(entries []*Entry, done func([]MutateResponse))

	// Replace stores only when the key already exists.
	Replace(key string, value interface{}, expiration uint32) MutateResponse
	ReplaceAsync(key string, value interface{}, expiration uint32,
		done func(MutateResponse))
	ReplaceMulti(entries []*Entry) []MutateResponse
	ReplaceMultiAsync(entries []*Entry, done func([]MutateResponse))

	// Append and Prepend splice raw bytes onto an existing value.  The
	// bytes are never serialized or compressed.
	Append(key string, value []byte) MutateResponse
	AppendAsync(key string, value []byte, done func(MutateResponse))
	Prepend(key string, value []byte) MutateResponse
	PrependAsync(key string, value []byte, done func(MutateResponse))

	Delete(key string) MutateResponse
	DeleteAsync(key string, done func(MutateResponse))
	DeleteMulti(keys []string) []MutateResponse
	DeleteMultiAsync(keys []string, done func([]MutateResponse))

	// Increment adds delta to a numeric counter.  When the counter does
	// not exist it is seeded with initValue, unless expiration is
	// 0xffffffff in which case the miss is returned as is.
	Increment(key string, delta uint64, initValue uint64,
		expiration uint32) CountResponse
	IncrementAsync(key string, delta uint64, initValue uint64,
		expiration uint32, done func(CountResponse))
	Decrement(key string, delta uint64, initValue uint64,
		expiration uint32) CountResponse
	DecrementAsync(key string, delta uint64, initValue uint64,
		expiration uint32, done func(CountResponse))

	// Flush expires every entry on every server, after an optional delay
	// in seconds.
	Flush(expiration uint32) Response
	FlushAsync(expiration uint32, done func(Response))

	// Stat collects server statistics, keyed by server address.  statsKey
	// selects a statistics subset and may be empty.
	Stat(statsKey string) StatResponse
	StatAsync(statsKey string, done func(StatResponse))

	// Version collects server version strings, keyed by server address.
	Version() VersionResponse
	VersionAsync(done func(VersionResponse))

	// Do routes a pre-built request, which may carry a pre-hashed key.
	Do(req *Request) Response
	DoAsync(req *Request, done func(Response))

	// SetServers replaces the server set.  Connections to dropped servers
	// are shut down; their pending requests complete with defaults.
	SetServers(servers ...ServerSpec) error

	// Connect eagerly establishes every server connection by driving a
	// version round trip through each queue.
	Connect() error

	// Disconnect drops every socket and cancels pending requests with
	// their defaults.  The client stays usable and reconnects on demand.
	Disconnect()

	// Close shuts the client down permanently.
	Close()

	Namespace() string
	SetNamespace(namespace string)
	HashNamespace() bool
	SetHashNamespace(hash bool)
	CompressThreshold() int
	SetCompressThreshold(threshold int)
	SetKeyTransformer(transform func(key string) string)
}

type client struct {
	opts *Options

	mutex          sync.RWMutex
	namespace      string
	hashNamespace  bool
	keyTransformer func(string) string
	conns          map[string]*connection
}

// New builds a client from options.  The zero value of every option field
// is a usable default, so Options{Servers: ...} suffices.
func New(options Options) (Client, error) {
	opts := options.withDefaults()
	if err := opts.Selector.SetServers(opts.Servers...); err != nil {
		return nil, err
	}

	c := &client{
		opts:           opts,
		namespace:      opts.Namespace,
		hashNamespace:  !opts.DisableNamespaceHashing,
		keyTransformer: opts.KeyTransformer,
		conns:          make(map[string]*connection),
	}
	for _, addr := range opts.Selector.Servers() {
		c.conns[addr] = newConnection(addr, opts, opts.Protocol)
	}
	return c, nil
}

// wireName applies the key transformer and namespace, and returns the wire
// key plus the string that server selection hashes.
func (c *client) wireName(name string) (wireKey string, hashable string) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.keyTransformer != nil {
		name = c.keyTransformer(name)
	}
	wireKey = c.namespace + name
	if c.hashNamespace {
		return wireKey, wireKey
	}
	return wireKey, name
}

func (c *client) connection(addr string) *connection {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.conns[addr]
}

func (c *client) connections() []*connection {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	conns := make([]*connection, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	return conns
}

// submit runs the dispatch pipeline for a single keyed request: transform
// and validate the key, serialize and compress the value, pick a server and
// queue the request there.  Pipeline failures complete the request
// immediately with a typed error response.
func (c *client) submit(req *Request, done func(Response)) {
	req.done = done

	wireKey, hashable := c.wireName(req.key.Name)
	if err := validateKey(wireKey); err != nil {
		req.failWith(err)
		return
	}
	req.wireKey = wireKey

	if req.cmd.isStore() && req.payload == nil {
		payload, err := c.opts.Serializer.Serialize(req.rawValue)
		if err != nil {
			req.failWith(errors.Wrapf(
				err, "Failed to serialize value for key %s", req.key.Name))
			return
		}
		payload, err = c.opts.Compressor.Compress(payload, req.cmd.String())
		if err != nil {
			req.failWith(errors.Wrapf(
				err, "Failed to compress value for key %s", req.key.Name))
			return
		}
		req.payload = payload
	}
	if req.cmd.isStore() {
		if req.payload == nil {
			req.failWith(errors.Newf(
				"Nil value for key %s", req.key.Name))
			return
		}
		if err := validateValue(req.payload.Data); err != nil {
			req.failWith(err)
			return
		}
	}
	req.decode = c.decodePayload

	addr, ok := c.opts.Selector.PickServer(req.key, hashable)
	if !ok {
		req.failWith(errors.Newf(
			"No server available for key %s", req.key.Name))
		return
	}
	conn := c.connection(addr)
	if conn == nil {
		req.failWith(errors.Newf(
			"No connection to %s for key %s", addr, req.key.Name))
		return
	}
	conn.enqueue(req)
}

// decodePayload undoes storage encoding: decompress, then deserialize.
func (c *client) decodePayload(p *Payload) (*Payload, interface{}, error) {
	p, err := c.opts.Compressor.Decompress(p)
	if err != nil {
		return nil, nil, err
	}
	decoded, err := c.opts.Serializer.Deserialize(p)
	if err != nil {
		return nil, nil, err
	}
	return p, decoded, nil
}

// reentrantCheck fails synchronous waits issued from a connection's own
// goroutine, where blocking on the completion channel would deadlock.
func (c *client) reentrantCheck() error {
	if !onEngineGoroutine() {
		return nil
	}
	err := errors.New(
		"Synchronous memcache call from a completion callback; " +
			"use the Async form")
	c.opts.LogError(err)
	return err
}

func (c *client) GetAsync(key string, done func(GetResponse)) {
	c.submit(NewGetRequest(NewKey(key)), func(resp Response) {
		done(resp.(GetResponse))
	})
}

func (c *client) Get(key string) GetResponse {
	if err := c.reentrantCheck(); err != nil {
		return NewGetErrorResponse(key, err)
	}
	result := make(chan GetResponse, 1)
	c.GetAsync(key, func(resp GetResponse) {
		result <- resp
	})
	return <-result
}

func (c *client) GetMultiAsync(
	keys []string,
	done func(map[string]GetResponse)) {

	if len(keys) == 0 {
		done(map[string]GetResponse{})
		return
	}

	results := make([]GetResponse, len(keys))
	fan := newFanIn(len(keys), func() {
		found := make(map[string]GetResponse)
		for i, resp := range results {
			if resp.Status() == StatusNoError {
				found[keys[i]] = resp
			}
		}
		done(found)
	})

	for i, key := range keys {
		i := i
		c.submit(NewGetRequest(NewKey(key)), func(resp Response) {
			results[i] = resp.(GetResponse)
			fan.childDone()
		})
	}
}

func (c *client) GetMulti(keys []string) map[string]GetResponse {
	if err := c.reentrantCheck(); err != nil {
		return map[string]GetResponse{}
	}
	result := make(chan map[string]GetResponse, 1)
	c.GetMultiAsync(keys, func(found map[string]GetResponse) {
		result <- found
	})
	return <-result
}

func (c *client) storeAsync(
	cmd string,
	key string,
	value interface{},
	expiration uint32,
	done func(MutateResponse)) {

	req := NewStoreRequest(cmd, NewKey(key), value, expiration)
	c.submit(req, func(resp Response) {
		done(resp.(MutateResponse))
	})
}

func (c *client) storeSync(
	cmd string,
	key string,
	value interface{},
	expiration uint32) MutateResponse {

	if err := c.reentrantCheck(); err != nil {
		return NewMutateErrorResponse(key, err)
	}
	result := make(chan MutateResponse, 1)
	c.storeAsync(cmd, key, value, expiration, func(resp MutateResponse) {
		result <- resp
	})
	return <-result
}

func (c *client) storeMultiAsync(
	cmd string,
	entries []*Entry,
	done func([]MutateResponse)) {

	if len(entries) == 0 {
		done([]MutateResponse{})
		return
	}

	results := make([]MutateResponse, len(entries))
	fan := newFanIn(len(entries), func() {
		done(results)
	})

	for i, entry := range entries {
		i := i
		req := NewStoreRequest(
			cmd, NewKey(entry.Key), entry.Value, entry.Expiration)
		c.submit(req, func(resp Response) {
			results[i] = resp.(MutateResponse)
			fan.childDone()
		})
	}
}

func (c *client) storeMultiSync(
	cmd string,
	entries []*Entry) []MutateResponse {

	if err := c.reentrantCheck(); err != nil {
		results := make([]MutateResponse, len(entries))
		for i, entry := range entries {
			results[i] = NewMutateErrorResponse(entry.Key, err)
		}
		return results
	}
	result := make(chan []MutateResponse, 1)
	c.storeMultiAsync(cmd, entries, func(resps []MutateResponse) {
		result <- resps
	})
	return <-result
}

func (c *client) Set(
	key string,
	value interface{},
	expiration uint32) MutateResponse {

	return c.storeSync("set", key, value, expiration)
}

func (c *client) SetAsync(
	key string,
	value interface{},
	expiration uint32,
	done func(MutateResponse)) {

	c.storeAsync("set", key, value, expiration, done)
}

func (c *client) SetMulti(entries []*Entry) []MutateResponse {
	return c.storeMultiSync("set", entries)
}

func (c *client) SetMultiAsync(
	entries []*Entry,
	done func([]MutateResponse)) {

	c.storeMultiAsync("set", entries, done)
}

func (c *client) Add(
	key string,
	value interface{},
	expiration uint32) MutateResponse {

	return c.storeSync("add", key, value, expiration)
}

func (c *client) AddAsync(
	key string,
	value interface{},
	expiration uint32,
	done func(MutateResponse)) {

	c.storeAsync("add", key, value, expiration, done)
}

func (c *client) AddMulti(entries []*Entry) []MutateResponse {
	return c.storeMultiSync("add", entries)
}

func (c *client) AddMultiAsync(
	entries []*Entry,
	done func([]MutateResponse)) {

	c.storeMultiAsync("add", entries, done)
}

func (c *client) Replace(
	key string,
	value interface{},
	expiration uint32) MutateResponse {

	return c.storeSync("replace", key, value, expiration)
}

func (c *client) ReplaceAsync(
	key string,
	value interface{},
	expiration uint32,
	done func(MutateResponse)) {

	c.storeAsync("replace", key, value, expiration, done)
}

func (c *client) ReplaceMulti(entries []*Entry) []MutateResponse {
	return c.storeMultiSync("replace", entries)
}

func (c *client) ReplaceMultiAsync(
	entries []*Entry,
	done func([]MutateResponse)) {

	c.storeMultiAsync("replace", entries, done)
}

func (c *client) AppendAsync(
	key string,
	value []byte,
	done func(MutateResponse)) {

	c.submit(NewAppendRequest(NewKey(key), value), func(resp Response) {
		done(resp.(MutateResponse))
	})
}

func (c *client) Append(key string, value []byte) MutateResponse {
	if err := c.reentrantCheck(); err != nil {
		return NewMutateErrorResponse(key, err)
	}
	result := make(chan MutateResponse, 1)
	c.AppendAsync(key, value, func(resp MutateResponse) {
		result <- resp
	})
	return <-result
}

func (c *client) PrependAsync(
	key string,
	value []byte,
	done func(MutateResponse)) {

	c.submit(NewPrependRequest(NewKey(key), value), func(resp Response) {
		done(resp.(MutateResponse))
	})
}

func (c *client) Prepend(key string, value []byte) MutateResponse {
	if err := c.reentrantCheck(); err != nil {
		return NewMutateErrorResponse(key, err)
	}
	result := make(chan MutateResponse, 1)
	c.PrependAsync(key, value, func(resp MutateResponse) {
		result <- resp
	})
	return <-result
}

func (c *client) DeleteAsync(key string, done func(MutateResponse)) {
	c.submit(NewDeleteRequest(NewKey(key)), func(resp Response) {
		done(resp.(MutateResponse))
	})
}

func (c *client) Delete(key string) MutateResponse {
	if err := c.reentrantCheck(); err != nil {
		return NewMutateErrorResponse(key, err)
	}
	result := make(chan MutateResponse, 1)
	c.DeleteAsync(key, func(resp MutateResponse) {
		result <- resp
	})
	return <-result
}

func (c *client) DeleteMultiAsync(
	keys []string,
	done func([]MutateResponse)) {

	if len(keys) == 0 {
		done([]MutateResponse{})
		return
	}

	results := make([]MutateResponse, len(keys))
	fan := newFanIn(len(keys), func() {
		done(results)
	})

	for i, key := range keys {
		i := i
		c.submit(NewDeleteRequest(NewKey(key)), func(resp Response) {
			results[i] = resp.(MutateResponse)
			fan.childDone()
		})
	}
}

func (c *client) DeleteMulti(keys []string) []MutateResponse {
	if err := c.reentrantCheck(); err != nil {
		results := make([]MutateResponse, len(keys))
		for i, key := range keys {
			results[i] = NewMutateErrorResponse(key, err)
		}
		return results
	}
	result := make(chan []MutateResponse, 1)
	c.DeleteMultiAsync(keys, func(resps []MutateResponse) {
		result <- resps
	})
	return <-result
}

func (c *client) countAsync(
	cmd string,
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32,
	done func(CountResponse)) {

	req := NewCountRequest(cmd, NewKey(key), delta, initValue, expiration)
	c.submit(req, func(resp Response) {
		done(resp.(CountResponse))
	})
}

func (c *client) countSync(
	cmd string,
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32) CountResponse {

	if err := c.reentrantCheck(); err != nil {
		return NewCountErrorResponse(key, err)
	}
	result := make(chan CountResponse, 1)
	c.countAsync(cmd, key, delta, initValue, expiration,
		func(resp CountResponse) {
			result <- resp
		})
	return <-result
}

func (c *client) Increment(
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32) CountResponse {

	return c.countSync("incr", key, delta, initValue, expiration)
}

func (c *client) IncrementAsync(
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32,
	done func(CountResponse)) {

	c.countAsync("incr", key, delta, initValue, expiration, done)
}

func (c *client) Decrement(
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32) CountResponse {

	return c.countSync("decr", key, delta, initValue, expiration)
}

func (c *client) DecrementAsync(
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32,
	done func(CountResponse)) {

	c.countAsync("decr", key, delta, initValue, expiration, done)
}

func (c *client) FlushAsync(expiration uint32, done func(Response)) {
	conns := c.connections()
	if len(conns) == 0 {
		done(NewResponse(StatusNoError))
		return
	}

	var mutex sync.Mutex
	status := StatusNoError
	fan := newFanIn(len(conns), func() {
		done(NewResponse(status))
	})

	for _, conn := range conns {
		req := &Request{
			cmd:             cmdFlush,
			expiration:      expiration,
			defaultResponse: NewResponse(StatusInternalError),
			done: func(resp Response) {
				mutex.Lock()
				if status == StatusNoError {
					status = resp.Status()
				}
				mutex.Unlock()
				fan.childDone()
			},
		}
		conn.enqueue(req)
	}
}

func (c *client) Flush(expiration uint32) Response {
	if err := c.reentrantCheck(); err != nil {
		return NewErrorResponse(err)
	}
	result := make(chan Response, 1)
	c.FlushAsync(expiration, func(resp Response) {
		result <- resp
	})
	return <-result
}

func (c *client) StatAsync(statsKey string, done func(StatResponse)) {
	conns := c.connections()
	if len(conns) == 0 {
		done(NewStatResponse(StatusNoError, nil))
		return
	}

	var mutex sync.Mutex
	entries := make(map[string](map[string]string))
	fan := newFanIn(len(conns), func() {
		done(NewStatResponse(StatusNoError, entries))
	})

	for _, conn := range conns {
		req := &Request{
			cmd:             cmdStat,
			key:             NewKey(statsKey),
			wireKey:         statsKey,
			defaultResponse: NewStatResponse(StatusNoError, nil),
			done: func(resp Response) {
				stat := resp.(StatResponse)
				mutex.Lock()
				for addr, serverEntries := range stat.Entries() {
					entries[addr] = serverEntries
				}
				mutex.Unlock()
				fan.childDone()
			},
		}
		conn.enqueue(req)
	}
}

func (c *client) Stat(statsKey string) StatResponse {
	if err := c.reentrantCheck(); err != nil {
		return NewStatErrorResponse(err)
	}
	result := make(chan StatResponse, 1)
	c.StatAsync(statsKey, func(resp StatResponse) {
		result <- resp
	})
	return <-result
}

func (c *client) VersionAsync(done func(VersionResponse)) {
	conns := c.connections()
	if len(conns) == 0 {
		done(NewVersionResponse(StatusNoError, nil))
		return
	}

	var mutex sync.Mutex
	versions := make(map[string]string)
	fan := newFanIn(len(conns), func() {
		done(NewVersionResponse(StatusNoError, versions))
	})

	for _, conn := range conns {
		req := &Request{
			cmd:             cmdVersion,
			defaultResponse: NewVersionResponse(StatusNoError, nil),
			done: func(resp Response) {
				version := resp.(VersionResponse)
				mutex.Lock()
				for addr, v := range version.Versions() {
					versions[addr] = v
				}
				mutex.Unlock()
				fan.childDone()
			},
		}
		conn.enqueue(req)
	}
}

func (c *client) Version() VersionResponse {
	if err := c.reentrantCheck(); err != nil {
		return NewVersionErrorResponse(err)
	}
	result := make(chan VersionResponse, 1)
	c.VersionAsync(func(resp VersionResponse) {
		result <- resp
	})
	return <-result
}

func (c *client) DoAsync(req *Request, done func(Response)) {
	c.submit(req, done)
}

func (c *client) Do(req *Request) Response {
	if err := c.reentrantCheck(); err != nil {
		req.failWith(err)
		return NewErrorResponse(err)
	}
	result := make(chan Response, 1)
	c.DoAsync(req, func(resp Response) {
		result <- resp
	})
	return <-result
}

func (c *client) SetServers(servers ...ServerSpec) error {
	if err := c.opts.Selector.SetServers(servers...); err != nil {
		return err
	}

	c.mutex.Lock()
	current := set.NewSet[string]()
	for addr := range c.conns {
		current.Add(addr)
	}
	wanted := set.NewSet(c.opts.Selector.Servers()...)

	added := wanted.Copy()
	added.Subtract(current)
	removed := current.Copy()
	removed.Subtract(wanted)

	var dropped []*connection
	removed.Do(func(addr string) {
		dropped = append(dropped, c.conns[addr])
		delete(c.conns, addr)
	})
	added.Do(func(addr string) {
		c.conns[addr] = newConnection(addr, c.opts, c.opts.Protocol)
	})
	c.mutex.Unlock()

	for _, conn := range dropped {
		conn.shutdown()
	}
	return nil
}

func (c *client) Connect() error {
	if err := c.reentrantCheck(); err != nil {
		return err
	}
	resp := c.Version()
	if resp.Error() != nil {
		return resp.Error()
	}

	c.mutex.RLock()
	expected := len(c.conns)
	c.mutex.RUnlock()
	if len(resp.Versions()) != expected {
		return errors.Newf(
			"Connected to %d of %d servers",
			len(resp.Versions()), expected)
	}
	return nil
}

func (c *client) Disconnect() {
	for _, conn := range c.connections() {
		conn.disconnect()
	}
}

func (c *client) Close() {
	c.mutex.Lock()
	conns := c.conns
	c.conns = make(map[string]*connection)
	c.mutex.Unlock()

	for _, conn := range conns {
		conn.shutdown()
	}
}

func (c *client) Namespace() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.namespace
}

func (c *client) SetNamespace(namespace string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.namespace = namespace
}

func (c *client) HashNamespace() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.hashNamespace
}

func (c *client) SetHashNamespace(hash bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.hashNamespace = hash
}

func (c *client) CompressThreshold() int {
	return c.opts.Compressor.CompressThreshold()
}

func (c *client) SetCompressThreshold(threshold int) {
	c.opts.Compressor.SetCompressThreshold(threshold)
}

func (c *client) SetKeyTransformer(transform func(key string) string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.keyTransformer = transform
}

package memcache

import (
	"strconv"
	"sync"

	"github.com/mdorman/memclient/errors"
)

// MockClient is an in-memory Client for application tests.  It applies the
// same namespace and serialization pipeline as the real client but keeps
// entries in a map instead of talking to servers.  Expiration values are
// accepted and ignored, except that the 0xffffffff counter expiration still
// stops Increment / Decrement from seeding a missing counter.
type MockClient struct {
	mutex          sync.Mutex
	data           map[string]*Payload
	namespace      string
	hashNamespace  bool
	keyTransformer func(string) string
	serializer     Serializer
	compressor     Compressor
}

func NewMockClient() *MockClient {
	return &MockClient{
		data:          make(map[string]*Payload),
		hashNamespace: true,
		serializer:    &GobSerializer{},
		compressor:    NewGzipCompressor(defaultCompressThreshold),
	}
}

func (c *MockClient) wireName(name string) string {
	if c.keyTransformer != nil {
		name = c.keyTransformer(name)
	}
	return c.namespace + name
}

func (c *MockClient) getHelper(key string) GetResponse {
	payload, ok := c.data[c.wireName(key)]
	if !ok {
		return NewGetResponse(key, StatusKeyNotFound, 0, nil, nil)
	}

	payload, err := c.compressor.Decompress(payload)
	if err != nil {
		return NewGetErrorResponse(key, err)
	}
	decoded, err := c.serializer.Deserialize(payload)
	if err != nil {
		return NewGetErrorResponse(key, err)
	}
	return NewGetResponse(
		key, StatusNoError, payload.Flags, payload.Data, decoded)
}

func (c *MockClient) Get(key string) GetResponse {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.getHelper(key)
}

func (c *MockClient) GetAsync(key string, done func(GetResponse)) {
	done(c.Get(key))
}

func (c *MockClient) GetMulti(keys []string) map[string]GetResponse {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	found := make(map[string]GetResponse)
	for _, key := range keys {
		resp := c.getHelper(key)
		if resp.Status() == StatusNoError {
			found[key] = resp
		}
	}
	return found
}

func (c *MockClient) GetMultiAsync(
	keys []string,
	done func(map[string]GetResponse)) {

	done(c.GetMulti(keys))
}

func (c *MockClient) storeHelper(
	cmd string,
	key string,
	value interface{}) MutateResponse {

	wireKey := c.wireName(key)
	_, exists := c.data[wireKey]
	if cmd == "add" && exists {
		return NewMutateResponse(key, StatusItemNotStored)
	}
	if cmd == "replace" && !exists {
		return NewMutateResponse(key, StatusItemNotStored)
	}

	payload, err := c.serializer.Serialize(value)
	if err != nil {
		return NewMutateErrorResponse(key, err)
	}
	payload, err = c.compressor.Compress(payload, cmd)
	if err != nil {
		return NewMutateErrorResponse(key, err)
	}
	c.data[wireKey] = payload
	return NewMutateResponse(key, StatusNoError)
}

func (c *MockClient) storeMultiHelper(
	cmd string,
	entries []*Entry) []MutateResponse {

	c.mutex.Lock()
	defer c.mutex.Unlock()

	results := make([]MutateResponse, len(entries))
	for i, entry := range entries {
		results[i] = c.storeHelper(cmd, entry.Key, entry.Value)
	}
	return results
}

func (c *MockClient) Set(
	key string,
	value interface{},
	expiration uint32) MutateResponse {

	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.storeHelper("set", key, value)
}

func (c *MockClient) SetAsync(
	key string,
	value interface{},
	expiration uint32,
	done func(MutateResponse)) {

	done(c.Set(key, value, expiration))
}

func (c *MockClient) SetMulti(entries []*Entry) []MutateResponse {
	return c.storeMultiHelper("set", entries)
}

func (c *MockClient) SetMultiAsync(
	entries []*Entry,
	done func([]MutateResponse)) {

	done(c.SetMulti(entries))
}

func (c *MockClient) Add(
	key string,
	value interface{},
	expiration uint32) MutateResponse {

	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.storeHelper("add", key, value)
}

func (c *MockClient) AddAsync(
	key string,
	value interface{},
	expiration uint32,
	done func(MutateResponse)) {

	done(c.Add(key, value, expiration))
}

func (c *MockClient) AddMulti(entries []*Entry) []MutateResponse {
	return c.storeMultiHelper("add", entries)
}

func (c *MockClient) AddMultiAsync(
	entries []*Entry,
	done func([]MutateResponse)) {

	done(c.AddMulti(entries))
}

func (c *MockClient) Replace(
	key string,
	value interface{},
	expiration uint32) MutateResponse {

	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.storeHelper("replace", key, value)
}

func (c *MockClient) ReplaceAsync(
	key string,
	value interface{},
	expiration uint32,
	done func(MutateResponse)) {

	done(c.Replace(key, value, expiration))
}

func (c *MockClient) ReplaceMulti(entries []*Entry) []MutateResponse {
	return c.storeMultiHelper("replace", entries)
}

func (c *MockClient) ReplaceMultiAsync(
	entries []*Entry,
	done func([]MutateResponse)) {

	done(c.ReplaceMulti(entries))
}

func (c *MockClient) concatHelper(
	key string,
	value []byte,
	prepend bool) MutateResponse {

	c.mutex.Lock()
	defer c.mutex.Unlock()

	wireKey := c.wireName(key)
	existing, ok := c.data[wireKey]
	if !ok {
		return NewMutateResponse(key, StatusItemNotStored)
	}
	if existing.Flags&FlagCompressed != 0 {
		return NewMutateErrorResponse(key, errors.Newf(
			"Cannot concatenate onto compressed entry %s", key))
	}

	var combined []byte
	if prepend {
		combined = append(append([]byte{}, value...), existing.Data...)
	} else {
		combined = append(append([]byte{}, existing.Data...), value...)
	}
	c.data[wireKey] = &Payload{Data: combined, Flags: existing.Flags}
	return NewMutateResponse(key, StatusNoError)
}

func (c *MockClient) Append(key string, value []byte) MutateResponse {
	return c.concatHelper(key, value, false)
}

func (c *MockClient) AppendAsync(
	key string,
	value []byte,
	done func(MutateResponse)) {

	done(c.Append(key, value))
}

func (c *MockClient) Prepend(key string, value []byte) MutateResponse {
	return c.concatHelper(key, value, true)
}

func (c *MockClient) PrependAsync(
	key string,
	value []byte,
	done func(MutateResponse)) {

	done(c.Prepend(key, value))
}

func (c *MockClient) deleteHelper(key string) MutateResponse {
	wireKey := c.wireName(key)
	if _, ok := c.data[wireKey]; !ok {
		return NewMutateResponse(key, StatusKeyNotFound)
	}
	delete(c.data, wireKey)
	return NewMutateResponse(key, StatusNoError)
}

func (c *MockClient) Delete(key string) MutateResponse {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.deleteHelper(key)
}

func (c *MockClient) DeleteAsync(key string, done func(MutateResponse)) {
	done(c.Delete(key))
}

func (c *MockClient) DeleteMulti(keys []string) []MutateResponse {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	results := make([]MutateResponse, len(keys))
	for i, key := range keys {
		results[i] = c.deleteHelper(key)
	}
	return results
}

func (c *MockClient) DeleteMultiAsync(
	keys []string,
	done func([]MutateResponse)) {

	done(c.DeleteMulti(keys))
}

func (c *MockClient) countHelper(
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32,
	decrement bool) CountResponse {

	c.mutex.Lock()
	defer c.mutex.Unlock()

	wireKey := c.wireName(key)
	existing, ok := c.data[wireKey]
	if !ok {
		if expiration == noCreateExpiration {
			return NewCountResponse(key, StatusKeyNotFound, 0)
		}
		c.data[wireKey] = &Payload{
			Data: strconv.AppendUint(nil, initValue, 10),
		}
		return NewCountResponse(key, StatusNoError, initValue)
	}

	count, err := strconv.ParseUint(string(existing.Data), 10, 64)
	if err != nil {
		return NewCountResponse(
			key, StatusIncrDecrOnNonNumericValue, 0)
	}

	if decrement {
		// Decrementing below zero pins the counter at zero.
		if delta > count {
			count = 0
		} else {
			count -= delta
		}
	} else {
		count += delta
	}
	c.data[wireKey] = &Payload{
		Data: strconv.AppendUint(nil, count, 10),
	}
	return NewCountResponse(key, StatusNoError, count)
}

func (c *MockClient) Increment(
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32) CountResponse {

	return c.countHelper(key, delta, initValue, expiration, false)
}

func (c *MockClient) IncrementAsync(
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32,
	done func(CountResponse)) {

	done(c.Increment(key, delta, initValue, expiration))
}

func (c *MockClient) Decrement(
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32) CountResponse {

	return c.countHelper(key, delta, initValue, expiration, true)
}

func (c *MockClient) DecrementAsync(
	key string,
	delta uint64,
	initValue uint64,
	expiration uint32,
	done func(CountResponse)) {

	done(c.Decrement(key, delta, initValue, expiration))
}

func (c *MockClient) Flush(expiration uint32) Response {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]*Payload)
	return NewResponse(StatusNoError)
}

func (c *MockClient) FlushAsync(expiration uint32, done func(Response)) {
	done(c.Flush(expiration))
}

func (c *MockClient) Stat(statsKey string) StatResponse {
	return NewStatResponse(
		StatusNoError,
		map[string](map[string]string){
			"mock:11211": {"curr_items": strconv.Itoa(c.Len())},
		})
}

func (c *MockClient) StatAsync(statsKey string, done func(StatResponse)) {
	done(c.Stat(statsKey))
}

func (c *MockClient) Version() VersionResponse {
	return NewVersionResponse(
		StatusNoError,
		map[string]string{"mock:11211": "0.0.0"})
}

func (c *MockClient) VersionAsync(done func(VersionResponse)) {
	done(c.Version())
}

func (c *MockClient) Do(req *Request) Response {
	resp := c.doHelper(req)
	req.complete(resp)
	return resp
}

func (c *MockClient) DoAsync(req *Request, done func(Response)) {
	resp := c.doHelper(req)
	req.complete(resp)
	done(resp)
}

func (c *MockClient) doHelper(req *Request) Response {
	switch req.cmd {
	case cmdGet:
		return c.Get(req.key.Name)
	case cmdSet, cmdAdd, cmdReplace:
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return c.storeHelper(req.cmd.String(), req.key.Name, req.rawValue)
	case cmdAppend:
		return c.Append(req.key.Name, req.payload.Data)
	case cmdPrepend:
		return c.Prepend(req.key.Name, req.payload.Data)
	case cmdDelete:
		return c.Delete(req.key.Name)
	case cmdIncrement:
		return c.Increment(
			req.key.Name, req.delta, req.initial, req.expiration)
	case cmdDecrement:
		return c.Decrement(
			req.key.Name, req.delta, req.initial, req.expiration)
	case cmdFlush:
		return c.Flush(req.expiration)
	case cmdStat:
		return c.Stat(req.key.Name)
	case cmdVersion:
		return c.Version()
	}
	return NewErrorResponse(errors.Newf("Unsupported command %s", req.cmd))
}

func (c *MockClient) SetServers(servers ...ServerSpec) error {
	return nil
}

func (c *MockClient) Connect() error {
	return nil
}

func (c *MockClient) Disconnect() {
}

func (c *MockClient) Close() {
}

func (c *MockClient) Namespace() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.namespace
}

func (c *MockClient) SetNamespace(namespace string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.namespace = namespace
}

func (c *MockClient) HashNamespace() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.hashNamespace
}

func (c *MockClient) SetHashNamespace(hash bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.hashNamespace = hash
}

func (c *MockClient) CompressThreshold() int {
	return c.compressor.CompressThreshold()
}

func (c *MockClient) SetCompressThreshold(threshold int) {
	c.compressor.SetCompressThreshold(threshold)
}

func (c *MockClient) SetKeyTransformer(transform func(key string) string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.keyTransformer = transform
}

// Len returns the number of stored entries, for test assertions.
func (c *MockClient) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.data)
}

var _ Client = &MockClient{}

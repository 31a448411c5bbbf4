package memcache

import (
	"net"
	"time"

	"github.com/mdorman/memclient/dlog"
	"github.com/mdorman/memclient/time2"
)

// Options configures a client.  The zero value of every field selects a
// usable default, so Options{Servers: ...} is a complete configuration.
type Options struct {
	// Cache servers in selection order.  A spec without a port gets the
	// standard memcached port.  Weight scales a server's share of the key
	// space; zero counts as one.
	Servers []ServerSpec

	// Namespace is prepended to every key name on the wire.
	Namespace string

	// By default the namespaced key is hashed for server selection, so all
	// clients sharing a namespace agree on placement.  Setting this hashes
	// the bare key name instead.
	DisableNamespaceHashing bool

	// Minimum stored value size in bytes before gzip is attempted.  Zero
	// selects the built-in default; a negative threshold disables
	// compression entirely.
	CompressThreshold int

	// KeyTransformer rewrites a key name before the namespace is applied.
	KeyTransformer func(key string) string

	Serializer Serializer
	Compressor Compressor
	Selector   Selector
	Protocol   Protocol

	// ConnectTimeout bounds a single dial attempt.
	ConnectTimeout time.Duration

	// Read and write deadlines applied per request round trip.  Zero means
	// no deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Dial overrides the tcp dialer.
	Dial func(network string, addr string, timeout time.Duration) (net.Conn, error)

	Clock time2.Clock

	// Hooks for the client's own diagnostics.
	LogError func(err error)
	LogInfo  func(format string, args ...interface{})
}

// withDefaults returns a copy of the options with every unset field filled
// in.  The original is never modified.
func (o *Options) withDefaults() *Options {
	opts := *o
	if opts.Serializer == nil {
		opts.Serializer = &GobSerializer{}
	}
	if opts.Compressor == nil {
		threshold := opts.CompressThreshold
		switch {
		case threshold == 0:
			threshold = defaultCompressThreshold
		case threshold < 0:
			threshold = 0
		}
		opts.Compressor = NewGzipCompressor(threshold)
	}
	if opts.Selector == nil {
		opts.Selector = NewRingSelector()
	}
	if opts.Protocol == nil {
		opts.Protocol = NewTextProtocol()
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.Dial == nil {
		opts.Dial = net.DialTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time2.DefaultClock
	}
	if opts.LogError == nil {
		opts.LogError = func(err error) {
			dlog.Errorf("memcache: %s", err)
		}
	}
	if opts.LogInfo == nil {
		opts.LogInfo = dlog.Infof
	}
	return &opts
}

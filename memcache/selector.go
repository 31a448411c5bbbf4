package memcache

import (
	"hash/crc32"
	"hash/fnv"
	"net"
	"sync"

	jump "github.com/dgryski/go-jump"

	"github.com/mdorman/memclient/errors"
)

// ServerSpec names one cache server and its share of the key space.  A zero
// weight counts as one.
type ServerSpec struct {
	Addr   string
	Weight int
}

// Selector maps a key to one configured server.  hashable is the string the
// selector hashes for normal keys: the wire key, with the client namespace
// included or not depending on configuration.  Pre-hashed keys bypass the
// hash and address a bucket directly.
//
// Selectors perform no liveness checks and never rehash around a failed
// server.
type Selector interface {
	SetServers(servers ...ServerSpec) error
	PickServer(key Key, hashable string) (addr string, ok bool)
	Servers() []string
}

// Appends the default memcached port when the spec carries none.
func normalizeAddr(addr string) (string, error) {
	if addr == "" {
		return "", errors.New("Server address is empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, defaultPort), nil
	}
	return addr, nil
}

func buildBuckets(servers []ServerSpec) ([]string, []string, error) {
	buckets := make([]string, 0, len(servers))
	addrs := make([]string, 0, len(servers))
	for _, spec := range servers {
		addr, err := normalizeAddr(spec.Addr)
		if err != nil {
			return nil, nil, err
		}
		weight := spec.Weight
		if weight == 0 {
			weight = 1
		}
		if weight < 0 {
			return nil, nil, errors.Newf(
				"Invalid weight %d for server %s", weight, addr)
		}
		addrs = append(addrs, addr)
		for i := 0; i < weight; i++ {
			buckets = append(buckets, addr)
		}
	}
	return buckets, addrs, nil
}

// RingSelector is the traditional weighted selector: a ring of buckets with
// each server repeated weight times, indexed by crc32 of the hashable key.
type RingSelector struct {
	mutex   sync.RWMutex
	buckets []string
	addrs   []string
}

func NewRingSelector() *RingSelector {
	return &RingSelector{}
}

func (s *RingSelector) SetServers(servers ...ServerSpec) error {
	buckets, addrs, err := buildBuckets(servers)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.buckets = buckets
	s.addrs = addrs
	return nil
}

func (s *RingSelector) PickServer(key Key, hashable string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.buckets) == 0 {
		return "", false
	}

	var idx int
	if key.Prehashed() {
		idx = key.HashIndex % len(s.buckets)
	} else {
		idx = int(crc32.ChecksumIEEE([]byte(hashable)) %
			uint32(len(s.buckets)))
	}
	return s.buckets[idx], true
}

func (s *RingSelector) Servers() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := make([]string, len(s.addrs))
	copy(res, s.addrs)
	return res
}

// JumpSelector distributes keys over the same weighted bucket list with
// Lamping and Veach's jump consistent hash, which moves fewer keys than the
// ring when the server list changes.
type JumpSelector struct {
	mutex   sync.RWMutex
	buckets []string
	addrs   []string
}

func NewJumpSelector() *JumpSelector {
	return &JumpSelector{}
}

func (s *JumpSelector) SetServers(servers ...ServerSpec) error {
	buckets, addrs, err := buildBuckets(servers)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.buckets = buckets
	s.addrs = addrs
	return nil
}

func (s *JumpSelector) PickServer(key Key, hashable string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.buckets) == 0 {
		return "", false
	}

	var idx int
	if key.Prehashed() {
		idx = key.HashIndex % len(s.buckets)
	} else {
		h := fnv.New64a()
		_, _ = h.Write([]byte(hashable))
		idx = int(jump.Hash(h.Sum64(), len(s.buckets)))
	}
	return s.buckets[idx], true
}

func (s *JumpSelector) Servers() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := make([]string, len(s.addrs))
	copy(res, s.addrs)
	return res
}
